// Package idp acquires access tokens from the identity provider without user
// interaction.
package idp

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config describes the identity provider application.
type Config struct {
	ClientID     string
	ClientSecret string
	// BackendClientID names the API application; scopes default to it.
	BackendClientID string
	TenantID        string
	// Authority overrides the authority derived from TenantID.
	Authority string
	// TokenURL overrides the token endpoint derived from the authority.
	TokenURL string
}

// Configured reports whether silent acquisition can be attempted.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.tokenURL() != ""
}

// DefaultScopes returns the scope of the backend API,
// "api://{backend client id}/access_as_user".
func (c Config) DefaultScopes() []string {
	id := c.BackendClientID
	if id == "" {
		id = c.ClientID
	}
	if id == "" {
		return nil
	}
	return []string{"api://" + id + "/access_as_user"}
}

func (c Config) authority() string {
	if c.Authority != "" {
		return strings.TrimRight(c.Authority, "/")
	}
	if c.TenantID != "" {
		return "https://login.microsoftonline.com/" + c.TenantID
	}
	return ""
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	if a := c.authority(); a != "" {
		return a + "/oauth2/v2.0/token"
	}
	return ""
}

// ClientCredentials obtains tokens with the OAuth2 client credentials grant
// and caches them per scope set until they expire.
type ClientCredentials struct {
	cfg        Config
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

// NewClientCredentials returns a token source for cfg. A nil httpClient uses
// http.DefaultClient.
func NewClientCredentials(cfg Config, httpClient *http.Client) *ClientCredentials {
	return &ClientCredentials{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     make(map[string]*oauth2.Token),
	}
}

// AcquireTokenSilent returns a cached or newly issued access token for
// scopes, or "" when the provider is not configured.
func (c *ClientCredentials) AcquireTokenSilent(ctx context.Context, scopes []string) (string, error) {
	if !c.cfg.Configured() {
		return "", nil
	}
	if len(scopes) == 0 {
		scopes = c.cfg.DefaultScopes()
	}
	key := scopeKey(scopes)

	c.mu.Lock()
	tok := c.tokens[key]
	c.mu.Unlock()
	if tok.Valid() {
		return tok.AccessToken, nil
	}

	cc := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.tokenURL(),
		Scopes:       scopes,
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client credentials token: %w", err)
	}

	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	return tok.AccessToken, nil
}

func scopeKey(scopes []string) string {
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	return strings.Join(sorted, " ")
}

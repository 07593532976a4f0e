// Package apiclient sends requests to the Slowfall API with the stored bearer
// token, refreshing it once on 401 and retrying the request with the new one.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

// Default endpoint paths, relative to the API prefix.
const (
	DefaultRefreshPath = "web-auth/refresh"
	DefaultLoginPath   = "web-auth/login"
)

const defaultRefreshTimeout = 10 * time.Second

// TokenStore is the token holder the client reads and updates.
// *tokenstore.Store implements it.
type TokenStore interface {
	GetToken(ctx context.Context) string
	SetToken(ctx context.Context, token string)
	ClearToken(ctx context.Context)
	GetRefreshToken(ctx context.Context) string
	SetRefreshToken(ctx context.Context, token string)
	ClearRefreshToken(ctx context.Context)
}

// SilentTokenSource obtains an access token without user interaction.
// An empty token with a nil error means none is available.
type SilentTokenSource interface {
	AcquireTokenSilent(ctx context.Context, scopes []string) (string, error)
}

// Doer executes HTTP requests. *retry.Client implements it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f DoerFunc) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// Observer is told about each step of the refresh cycle.
type Observer interface {
	AccessTokenRejected()
	RefreshOK()
	RefreshFailed(err error)
	TokenRefreshedRetrying()
}

type noopObserver struct{}

func (noopObserver) AccessTokenRejected()    {}
func (noopObserver) RefreshOK()              {}
func (noopObserver) RefreshFailed(error)     {}
func (noopObserver) TokenRefreshedRetrying() {}

// Credentials controls whether cookies are attached to and accepted from a request.
type Credentials string

const (
	// CredentialsInclude sends cookies to any host. It is the default.
	CredentialsInclude    Credentials = "include"
	CredentialsSameOrigin Credentials = "same-origin"
	CredentialsOmit       Credentials = "omit"
)

// RequestOptions describes a request passed to FetchWithAuth.
type RequestOptions struct {
	Method      string
	Header      http.Header
	Body        io.Reader
	Credentials Credentials
}

// Config configures a Client.
type Config struct {
	// Origin resolves relative request URLs, e.g. "http://localhost:8080".
	Origin string
	// APIBaseURL is the configured API base; see APIPrefix.
	APIBaseURL  string
	RefreshPath string
	LoginPath   string
	// Scopes are requested from the SilentTokenSource.
	Scopes         []string
	RefreshTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the default retrying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithSilentTokenSource enables silent token acquisition when the store is empty.
func WithSilentTokenSource(s SilentTokenSource) Option {
	return func(c *Client) { c.silent = s }
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCookieJar replaces the default in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// Client is an authenticated HTTP client for the Slowfall API.
type Client struct {
	cfg      Config
	origin   *url.URL
	store    TokenStore
	doer     Doer
	jar      http.CookieJar
	silent   SilentTokenSource
	observer Observer
	logger   *slog.Logger

	refreshGroup singleflight.Group
}

// New creates a Client that keeps its tokens in store.
func New(cfg Config, store TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("apiclient: token store is required")
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}

	c := &Client{
		cfg:      cfg,
		store:    store,
		observer: noopObserver{},
		logger:   slog.Default(),
	}
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("apiclient: invalid origin: %w", err)
		}
		c.origin = u
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.doer == nil {
		rc, err := retry.NewClient()
		if err != nil {
			return nil, fmt.Errorf("apiclient: create retry client: %w", err)
		}
		c.doer = rc
	}
	if c.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("apiclient: create cookie jar: %w", err)
		}
		c.jar = jar
	}
	return c, nil
}

// URL returns the absolute URL a request for input is sent to.
func (c *Client) URL(input string) (string, error) {
	u, err := c.resolve(input)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FetchWithAuth sends a request with the current access token.
//
// A 401 triggers one shared refresh. If it fails the original 401 response is
// returned with its body intact; if it succeeds the request is sent once more
// and that response is returned whatever its status. An error is returned only
// when the first request cannot be built or sent.
func (c *Client) FetchWithAuth(ctx context.Context, input string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	target, err := c.resolve(input)
	if err != nil {
		return nil, err
	}
	var body []byte
	if opts.Body != nil {
		if body, err = io.ReadAll(opts.Body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	token := c.accessToken(ctx)
	resp, err := c.send(ctx, target, opts, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	c.observer.AccessTokenRejected()
	if err := bufferBody(resp); err != nil {
		c.logger.Debug("read rejected response body", "error", err)
	}
	if !c.refresh(ctx, token) {
		return resp, nil
	}

	c.observer.TokenRefreshedRetrying()
	retried, err := c.send(ctx, target, opts, body, c.accessToken(ctx))
	if err != nil {
		c.logger.Debug("retry after refresh failed", "url", target.Redacted(), "error", err)
		if ctx.Err() == nil {
			c.clearTokens(ctx)
		}
		return resp, nil
	}
	return retried, nil
}

// accessToken returns the stored token, falling back to silent acquisition.
// An acquired token is written to the store.
func (c *Client) accessToken(ctx context.Context) string {
	if token := c.store.GetToken(ctx); token != "" {
		return token
	}
	if c.silent == nil {
		return ""
	}
	token, err := c.silent.AcquireTokenSilent(ctx, c.cfg.Scopes)
	if err != nil {
		c.logger.Debug("silent token acquisition failed", "error", err)
		return ""
	}
	if token != "" {
		c.store.SetToken(ctx, token)
	}
	return token
}

func (c *Client) send(
	ctx context.Context,
	target *url.URL,
	opts *RequestOptions,
	body []byte,
	token string,
) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range opts.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, opts.Credentials)
}

// do sends req, attaching and capturing cookies when creds allow it for the
// request's URL.
func (c *Client) do(req *http.Request, creds Credentials) (*http.Response, error) {
	withCookies := c.cookiesAllowed(creds, req.URL)
	if withCookies {
		for _, ck := range c.jar.Cookies(req.URL) {
			req.AddCookie(ck)
		}
	}
	resp, err := c.doer.DoWithContext(req.Context(), req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if withCookies {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			c.jar.SetCookies(req.URL, cookies)
		}
	}
	return resp, nil
}

func (c *Client) cookiesAllowed(creds Credentials, u *url.URL) bool {
	switch creds {
	case CredentialsOmit:
		return false
	case CredentialsSameOrigin:
		return c.origin != nil &&
			u.Scheme == c.origin.Scheme &&
			u.Host == c.origin.Host
	default:
		return true
	}
}

func (c *Client) resolve(input string) (*url.URL, error) {
	u, err := url.Parse(NormalizeURL(input, c.cfg.APIBaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", input, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.origin == nil {
		return nil, fmt.Errorf("relative request URL %q needs a configured origin", input)
	}
	return c.origin.ResolveReference(u), nil
}

func (c *Client) clearTokens(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	c.store.ClearToken(ctx)
	c.store.ClearRefreshToken(ctx)
}

// bufferBody replaces resp.Body with an in-memory copy so it can still be read
// after the connection is reused.
func bufferBody(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return err
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// tokenResponse is the body returned by the login and refresh endpoints.
// Fields are decoded loosely so a wrongly typed value is reported rather than
// failing the whole decode.
type tokenResponse struct {
	AccessToken  any `json:"access_token"`
	RefreshToken any `json:"refresh_token"`
	TokenType    any `json:"token_type"`
}

type tokenPair struct {
	access  string
	refresh string
}

// parseTokenResponse validates a login or refresh body.
func parseTokenResponse(body []byte) (tokenPair, error) {
	var raw tokenResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return tokenPair{}, fmt.Errorf("failed to parse token response: %w", err)
	}

	access, ok := raw.AccessToken.(string)
	if !ok {
		return tokenPair{}, errors.New("access_token is missing or not a string")
	}
	if access == "" {
		return tokenPair{}, errors.New("access_token is empty")
	}

	// Token type is optional, but if present it must be Bearer.
	if raw.TokenType != nil {
		tokenType, _ := raw.TokenType.(string)
		if tokenType != "Bearer" && tokenType != "bearer" {
			return tokenPair{}, fmt.Errorf("unexpected token_type: %v (expected Bearer)", raw.TokenType)
		}
	}

	refresh, _ := raw.RefreshToken.(string)
	return tokenPair{access: access, refresh: refresh}, nil
}

// refresh runs the shared refresh for a request rejected while carrying
// rejected, and reports whether a retry is worthwhile. Concurrent callers share
// one refresh request. The refresh itself is not cancelled with ctx; a caller
// whose ctx ends only stops waiting for it.
func (c *Client) refresh(ctx context.Context, rejected string) bool {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
		defer cancel()

		// A refresh that settled just before this one already replaced the
		// rejected token.
		if current := c.store.GetToken(rctx); current != "" && current != rejected {
			return nil, nil
		}
		if err := c.refreshTokens(rctx); err != nil {
			c.logger.Debug("token refresh failed", "error", err)
			c.clearTokens(rctx)
			c.observer.RefreshFailed(err)
			return nil, err
		}
		c.observer.RefreshOK()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err == nil
	case <-ctx.Done():
		return false
	}
}

// refreshTokens posts to the refresh endpoint and stores the new tokens.
// The refresh token is sent only when one is cached; otherwise the server may
// still refresh from its session cookie.
func (c *Client) refreshTokens(ctx context.Context) error {
	target, err := c.resolve(c.cfg.RefreshPath)
	if err != nil {
		return err
	}

	var body io.Reader
	refreshToken := c.store.GetRefreshToken(ctx)
	if refreshToken != "" {
		payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	pair, err := c.exchange(req)
	if err != nil {
		return err
	}

	c.store.SetToken(ctx, pair.access)
	if pair.refresh != "" {
		c.store.SetRefreshToken(ctx, pair.refresh)
	}
	return nil
}

// exchange sends a login or refresh request and parses the token response.
// Non-2xx statuses are returned as *oauth2.RetrieveError.
func (c *Client) exchange(req *http.Request) (tokenPair, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, CredentialsInclude)
	if err != nil {
		return tokenPair{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenPair{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenPair{}, &oauth2.RetrieveError{Response: resp, Body: body}
	}

	pair, err := parseTokenResponse(body)
	if err != nil {
		return tokenPair{}, fmt.Errorf("invalid token response: %w", err)
	}
	return pair, nil
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ErrInvalidCredentials is returned by Login when the server rejects the
// username or password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Login exchanges a username and password for tokens and stores them.
func (c *Client) Login(ctx context.Context, username, password string) error {
	target, err := c.resolve(c.cfg.LoginPath)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, target.String(), bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	pair, err := c.exchange(req)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil &&
			(rErr.Response.StatusCode == http.StatusUnauthorized ||
				rErr.Response.StatusCode == http.StatusForbidden) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("login failed: %w", err)
	}

	c.store.SetToken(ctx, pair.access)
	if pair.refresh != "" {
		c.store.SetRefreshToken(ctx, pair.refresh)
	} else {
		c.store.ClearRefreshToken(ctx)
	}
	return nil
}

// Logout forgets both tokens.
func (c *Client) Logout(ctx context.Context) {
	c.clearTokens(ctx)
}

// Package slowfall is a typed client for the Slowfall skydiving operations
// API: airports, aircraft, people and jumps.
package slowfall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-authgate/slowfall-cli/apiclient"
)

// Sentinel errors matched by *APIError through errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx response.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Fetcher sends authenticated requests. *apiclient.Client implements it.
type Fetcher interface {
	FetchWithAuth(ctx context.Context, input string, opts *apiclient.RequestOptions) (*http.Response, error)
}

// API groups the backend operations.
type API struct {
	f Fetcher
}

// New returns an API sending requests through f.
func New(f Fetcher) *API {
	return &API{f: f}
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (a *API) call(ctx context.Context, op, method, path string, in, out any) error {
	opts := &apiclient.RequestOptions{
		Method:      method,
		Header:      http.Header{"Accept": {"application/json"}},
		Credentials: apiclient.CredentialsInclude,
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		opts.Header.Set("Content-Type", "application/json")
		opts.Body = bytes.NewReader(payload)
	}

	resp, err := a.f.FetchWithAuth(ctx, path, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", op, err)
	}
	return nil
}

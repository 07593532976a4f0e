package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, status int, calls *atomic.Int32, scopes *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if scopes != nil {
			scopes.Store(r.PostForm.Get("scope"))
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"Bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfig_DefaultScopes(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"backend id preferred", Config{ClientID: "spa", BackendClientID: "api"}, []string{"api://api/access_as_user"}},
		{"falls back to client id", Config{ClientID: "spa"}, []string{"api://spa/access_as_user"}},
		{"nothing configured", Config{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DefaultScopes(); !slices.Equal(got, tt.want) {
				t.Errorf("DefaultScopes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_TokenURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{TokenURL: "https://idp/token", TenantID: "t"}, "https://idp/token"},
		{"authority", Config{Authority: "https://idp.example.com/tenant/"}, "https://idp.example.com/tenant/oauth2/v2.0/token"},
		{"tenant", Config{TenantID: "contoso"}, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token"},
		{"none", Config{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.tokenURL(); got != tt.want {
				t.Errorf("tokenURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientCredentials_Unconfigured(t *testing.T) {
	src := NewClientCredentials(Config{ClientID: "only-id"}, nil)
	tok, err := src.AcquireTokenSilent(context.Background(), nil)
	if err != nil || tok != "" {
		t.Errorf("AcquireTokenSilent() = %q, %v; want empty, nil", tok, err)
	}
}

func TestClientCredentials_CachesPerScopeSet(t *testing.T) {
	var calls atomic.Int32
	var scope atomic.Value
	srv := tokenServer(t, http.StatusOK, &calls, &scope)

	src := NewClientCredentials(Config{
		ClientID:        "spa",
		ClientSecret:    "secret",
		BackendClientID: "backend",
		TokenURL:        srv.URL,
	}, srv.Client())
	ctx := context.Background()

	for range 2 {
		tok, err := src.AcquireTokenSilent(ctx, nil)
		if err != nil {
			t.Fatalf("AcquireTokenSilent() error = %v", err)
		}
		if tok != "cc-token" {
			t.Errorf("token = %q, want cc-token", tok)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("token endpoint calls = %d, want 1", n)
	}
	if got := scope.Load().(string); got != "api://backend/access_as_user" {
		t.Errorf("scope = %q", got)
	}

	if _, err := src.AcquireTokenSilent(ctx, []string{"b", "a"}); err != nil {
		t.Fatalf("AcquireTokenSilent() error = %v", err)
	}
	if _, err := src.AcquireTokenSilent(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("AcquireTokenSilent() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("token endpoint calls = %d, want 2 after a second scope set", n)
	}
}

func TestClientCredentials_Error(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusUnauthorized, &calls, nil)

	src := NewClientCredentials(Config{
		ClientID:     "spa",
		ClientSecret: "wrong",
		TokenURL:     srv.URL,
	}, srv.Client())

	tok, err := src.AcquireTokenSilent(context.Background(), nil)
	if err == nil {
		t.Fatal("AcquireTokenSilent() error = nil, want error")
	}
	if tok != "" {
		t.Errorf("token = %q, want empty on error", tok)
	}
}

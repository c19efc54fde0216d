package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sharedcal/internal/config"
)

// testConfig returns a file-backed configuration rooted in a temp dir whose
// token endpoint is tokenURL.
func testConfig(t *testing.T, tokenURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		OAuth: config.OAuthConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8080/oauth/callback",
			AuthURL:      "https://accounts.example.com/o/oauth2/auth",
			TokenURL:     tokenURL,
		},
		Calendar: config.CalendarConfig{
			BaseURL:        "http://127.0.0.1:1/calendar/v3",
			DefaultID:      "primary",
			RequestTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{
			Type:            config.StorageTypeFile,
			Dir:             dir,
			TokenFile:       filepath.Join(dir, "tokens.json"),
			IdempotencyFile: filepath.Join(dir, "idempotency.json"),
			StateFile:       filepath.Join(dir, "state.json"),
			LockTimeout:     5 * time.Second,
		},
		Idempotency: config.IdempotencyConfig{TTL: 24 * time.Hour},
		Server:      config.ServerConfig{Transport: config.TransportStdio},
	}
}

func newTestServerContext(t *testing.T, cfg config.Config) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

// newTokenEndpoint serves a fixed authorization code exchange response.
func newTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/calendar"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServerContext_FileBackend(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/token")
	sc := newTestServerContext(t, cfg)

	require.NotNil(t, sc.Service())
	require.NotNil(t, sc.Tokens())
	require.NotNil(t, sc.Bootstrap())
	assert.Equal(t, "primary", sc.Service().DefaultCalendarID())
	assert.Equal(t, cfg.Storage.TokenFile, sc.Stores().Tokens.Location())
	assert.Equal(t, cfg.Storage.IdempotencyFile, sc.Stores().Idempotency.Location())
	assert.Equal(t, cfg.Storage.StateFile, sc.Stores().State.Location())
	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.AuditLogger())
	assert.NotNil(t, sc.Logger())

	status, err := sc.Service().CredentialStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.HasRefreshToken)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestServerContext(t, testConfig(t, "http://127.0.0.1:1/token"))

	assert.False(t, sc.IsShutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())

	require.NoError(t, sc.Shutdown(), "second shutdown is a no-op")
}

func TestNewServerContext_InvalidStorage(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Storage.Type = "s3" },
			wantErr: "unsupported storage type",
		},
		{
			name: "valkey without address",
			mutate: func(c *config.Config) {
				c.Storage.Type = config.StorageTypeValkey
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1/token")
			tt.mutate(&cfg)

			sc, err := NewServerContext(context.Background(), cfg, Options{})
			require.Error(t, err)
			assert.Nil(t, sc)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rahulunni73/authclient/pkg/authclient"
	"github.com/stretchr/testify/require"
)

// backend is a minimal login/refresh/data server.
func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "access-0", "refreshToken": "refresh-0", "expiresIn": 3600,
		})
	})
	mux.HandleFunc("GET /api/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-0" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []string{"a", "b"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) Config {
	return Config{
		Env:       "test",
		LogLevel:  "error",
		LogFormat: "text",
		Backend:   BackendConfig{BaseURL: baseURL, RefreshPath: "/api/auth/refresh"},
		Timeouts:  TimeoutConfig{HTTP: 5 * time.Second, Refresh: 5 * time.Second},
	}
}

func TestNew_MemoryStore(t *testing.T) {
	srv := backend(t)
	app, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	ctx := context.Background()
	c := app.Client()
	require.True(t, c.ClientInitInfo().IsConfigured)

	login := c.Authenticate(ctx, "", "/api/auth/login", "alice", "pw")
	require.False(t, login.IsError, login.ErrorMessage)

	res := c.Get(ctx, "", "/api/items", authclient.RequestConfig{})
	require.False(t, res.IsError, res.ErrorMessage)
	require.Equal(t, []any{"a", "b"}, res.Data)
}

func TestNew_SqliteStoreSurvivesRestart(t *testing.T) {
	srv := backend(t)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "master.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("a-master-key"), 0o600))

	cfg := testConfig(srv.URL)
	cfg.Store = StoreConfig{Path: filepath.Join(dir, "session.db"), MasterKeyPath: keyPath}

	first, err := New(cfg)
	require.NoError(t, err)
	login := first.Client().Authenticate(context.Background(), "", "/api/auth/login", "alice", "pw")
	require.False(t, login.IsError, login.ErrorMessage)
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, second.Close()) })

	info, err := second.Client().TokenInfo(context.Background())
	require.NoError(t, err)
	require.True(t, info.HasAccessToken)
	require.True(t, info.HasRefreshToken)
	require.False(t, info.IsExpired)
}

func TestNew_RejectsBackendConfig(t *testing.T) {
	cfg := testConfig("")
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNew_MissingMasterKeyFile(t *testing.T) {
	cfg := testConfig("https://api.example.test")
	cfg.Store = StoreConfig{
		Path:          filepath.Join(t.TempDir(), "session.db"),
		MasterKeyPath: filepath.Join(t.TempDir(), "absent.key"),
	}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestApplication_RunServesMetrics(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(srv.URL)
	cfg.Keeper = KeeperConfig{Interval: time.Hour, Lead: time.Minute}

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	h := app.metricsMux()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","version":"`+BuildVersion+`","checks":{"store":"memory"}}`, rec.Body.String())

	_ = app.Client().Get(context.Background(), "", "/api/items", authclient.RequestConfig{SkipAuth: true})

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `authclient_requests_total{method="GET",outcome="error",status="401"} 1`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

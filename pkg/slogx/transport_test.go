package slogx_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rahulunni73/authclient/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestLoggingTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := &http.Client{Transport: slogx.NewLoggingTransport(nil, logger)}

	ctx := slogx.WithRequestID(context.Background(), logger, "req-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/items", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer super-secret")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	require.Contains(t, out, `"msg":"http_request"`)
	require.Contains(t, out, `"req_id":"req-123"`)
	require.Contains(t, out, `"path":"/v1/items"`)
	require.Contains(t, out, `"status":418`)
	require.NotContains(t, out, "super-secret")
}

func TestLoggingTransportError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	client := &http.Client{Transport: slogx.NewLoggingTransport(nil, logger)}

	_, err := client.Get("http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	require.Contains(t, buf.String(), "http_request_failed")
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "authclient", Level: "warn", Format: "text", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "service=authclient")
}

package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	testBaseURL    = "https://api.example.test"
	testClientID   = "mobile-app"
	testPassPhrase = "correct horse battery staple"
	loginPath      = "/api/auth/login"
	logoutPath     = "/api/auth/logout"
	dataPath       = "/api/data"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBackend routes requests by path and records every call.
type fakeBackend struct {
	mu       sync.Mutex
	routes   map[string]func(ctx context.Context, req *Request) (*Response, error)
	calls    map[string]int
	requests []*Request
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		routes: make(map[string]func(context.Context, *Request) (*Response, error)),
		calls:  make(map[string]int),
	}
}

func (b *fakeBackend) handle(path string, fn func(ctx context.Context, req *Request) (*Response, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[path] = fn
}

func (b *fakeBackend) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.calls[u.Path]++
	b.requests = append(b.requests, req)
	fn := b.routes[u.Path]
	b.mu.Unlock()

	if fn == nil {
		return jsonResponse(http.StatusNotFound, map[string]any{"message": "not found"}), nil
	}
	return fn(ctx, req)
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *fakeBackend) last(path string) *Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if u, err := url.Parse(b.requests[i].URL); err == nil && u.Path == path {
			return b.requests[i]
		}
	}
	return nil
}

func jsonResponse(status int, body any) *Response {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return &Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       data,
	}
}

func plainConfig() ClientConfig {
	return ClientConfig{BaseURL: testBaseURL}
}

func encryptedConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           testBaseURL,
		EncryptionEnabled: true,
		ClientID:          testClientID,
		PassPhrase:        testPassPhrase,
	}
}

func newTestClient(t *testing.T, backend Transport, clock Clock, cfg ClientConfig, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithTransport(backend), WithClock(clock)}, opts...)
	c := NewClient(opts...)
	res := c.Initialize(cfg)
	require.True(t, res.IsConfigured, res.Message)
	return c
}

func seedSession(t *testing.T, c *Client, access, refresh string, accessExp, refreshExp *time.Time) {
	t.Helper()
	err := c.session.Store(context.Background(), TokenPair{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessExpiry:  accessExp,
		RefreshExpiry: refreshExp,
	})
	require.NoError(t, err)
}

func at(t time.Time) *time.Time { return &t }

// rotatingRefresh answers refresh calls with "access-<n>" and "refresh-<n>".
func rotatingRefresh() func(context.Context, *Request) (*Response, error) {
	var (
		mu sync.Mutex
		n  int
	)
	return func(_ context.Context, _ *Request) (*Response, error) {
		mu.Lock()
		n++
		cur := n
		mu.Unlock()
		return jsonResponse(http.StatusOK, map[string]any{
			"accessToken":  fmt.Sprintf("access-%d", cur),
			"refreshToken": fmt.Sprintf("refresh-%d", cur),
			"expiresIn":    3600,
		}), nil
	}
}

func bearer(req *Request) string {
	return req.Header.Get("Authorization")
}

// decryptBody opens a {"encryptedContent": ...} request body.
func decryptBody(t *testing.T, body []byte) string {
	t.Helper()
	enc := gjson.GetBytes(body, envelopeField)
	require.True(t, enc.Exists(), "body is not enveloped: %s", body)
	plain, err := cryptox.DecryptEnvelope(enc.String(), testPassPhrase)
	require.NoError(t, err)
	return plain
}

// envelopedResponse wraps body the way an encrypting backend answers.
func envelopedResponse(t *testing.T, status int, body any) *Response {
	t.Helper()
	plain, err := json.Marshal(body)
	require.NoError(t, err)
	sealed, err := cryptox.EncryptEnvelope(string(plain), testPassPhrase)
	require.NoError(t, err)
	return jsonResponse(status, map[string]string{envelopeField: sealed})
}

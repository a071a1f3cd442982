package authclient

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rahulunni73/authclient/pkg/slogx"
)

// Client is the authenticated HTTP client. It is safe for concurrent use;
// all operations share one TokenSession.
type Client struct {
	cfg atomic.Pointer[ClientConfig]

	session    *TokenSession
	transport  Transport
	normalizer Normalizer
	registry   *registry
	clock      Clock
	logger     *slog.Logger
	observer   Observer
}

type options struct {
	store          SecretStore
	transport      Transport
	clock          Clock
	logger         *slog.Logger
	observer       Observer
	refreshTimeout time.Duration
	badToken       *BadTokenPolicy
}

// Option configures NewClient.
type Option func(*options)

// WithStore sets where tokens are persisted. Defaults to a MemoryStore.
func WithStore(s SecretStore) Option { return func(o *options) { o.store = s } }

// WithTransport sets the HTTP transport. Defaults to NewHTTPTransport(nil).
func WithTransport(t Transport) Option { return func(o *options) { o.transport = t } }

// WithHTTPClient sends requests through client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.transport = NewHTTPTransport(client) }
}

func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithObserver(obs Observer) Option { return func(o *options) { o.observer = obs } }

// WithRefreshTimeout bounds each refresh round trip.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

// WithBadTokenPolicy replaces DefaultBadTokenPolicy.
func WithBadTokenPolicy(p BadTokenPolicy) Option {
	return func(o *options) { o.badToken = &p }
}

// NewClient builds a client. It must be initialized before use.
func NewClient(opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}
	if o.transport == nil {
		o.transport = NewHTTPTransport(nil)
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	if o.logger == nil {
		o.logger = slogx.Discard()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	policy := DefaultBadTokenPolicy()
	if o.badToken != nil {
		policy = *o.badToken
	}

	c := &Client{
		transport:  o.transport,
		normalizer: Normalizer{BadToken: policy},
		registry:   newRegistry(),
		clock:      o.clock,
		logger:     o.logger,
		observer:   o.observer,
	}
	c.session = newTokenSession(o.store, o.clock, o.logger, o.observer, o.refreshTimeout)
	c.session.refresher = c.refreshTokens
	return c
}

// Initialize validates and installs cfg. A rejected config leaves the
// previous one in place.
func (c *Client) Initialize(cfg ClientConfig) ClientInitResult {
	if reason := cfg.validate(); reason != "" {
		c.logger.Warn("client configuration rejected", "reason", reason)
		return ClientInitResult{IsConfigured: c.cfg.Load() != nil, Message: reason}
	}

	cfg = cfg.normalized()
	c.cfg.Store(&cfg)
	c.logger.Info("client initialized",
		"base_url", cfg.BaseURL,
		"encryption", cfg.EncryptionEnabled,
		"refresh_path", cfg.RefreshPath,
	)
	return ClientInitResult{
		IsConfigured:      true,
		Message:           "client initialized",
		BaseURL:           cfg.BaseURL,
		EncryptionEnabled: cfg.EncryptionEnabled,
	}
}

// ClientInitInfo reports the installed configuration without secrets.
func (c *Client) ClientInitInfo() ClientInitResult {
	cfg := c.cfg.Load()
	if cfg == nil {
		return ClientInitResult{Message: ErrNotConfigured.Message}
	}
	return ClientInitResult{
		IsConfigured:      true,
		Message:           "client initialized",
		BaseURL:           cfg.BaseURL,
		EncryptionEnabled: cfg.EncryptionEnabled,
	}
}

// Session exposes the token session, for background refreshers.
func (c *Client) Session() *TokenSession { return c.session }

// TokenInfo describes the current session.
func (c *Client) TokenInfo(ctx context.Context) (TokenInfo, error) {
	return c.session.Info(ctx)
}

// InvalidateAccessToken marks the access token expired so the next request
// refreshes it.
func (c *Client) InvalidateAccessToken(ctx context.Context) error {
	return c.session.Invalidate(ctx)
}

// ClearAllTokens wipes the session without contacting the server.
func (c *Client) ClearAllTokens(ctx context.Context) error {
	return c.session.Clear(ctx)
}

// CancelRequest aborts the operations running under id. The shared refresh,
// if any, keeps running.
func (c *Client) CancelRequest(id string) bool {
	ok := c.registry.cancel(id)
	if ok {
		c.logger.Info("request cancelled", "req_id", id)
	}
	return ok
}

// CancelAllRequests aborts every running operation and returns the count.
func (c *Client) CancelAllRequests() int {
	n := c.registry.cancelAll()
	if n > 0 {
		c.logger.Info("requests cancelled", "count", n)
	}
	return n
}

// config returns the installed configuration.
func (c *Client) config() (ClientConfig, bool) {
	cfg := c.cfg.Load()
	if cfg == nil {
		return ClientConfig{}, false
	}
	return *cfg, true
}

// begin prepares the context of one public operation: registered for
// cancellation under id, tagged for logging and bounded by timeout.
func (c *Client) begin(ctx context.Context, id string, timeout time.Duration) (context.Context, func()) {
	ctx, id, done := c.registry.begin(ctx, id)
	ctx = slogx.WithRequestID(ctx, c.logger, id)
	if timeout <= 0 {
		return ctx, done
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		done()
	}
}

// refreshTokens is the TokenSession refresher: a POST to the refresh
// endpoint through the pipeline, without auth and without 401 retry.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (TokenPair, error) {
	cfg, ok := c.config()
	if !ok {
		return TokenPair{}, ErrNotConfigured
	}

	payload := map[string]string{"refreshToken": refreshToken}
	if cfg.EncryptionEnabled {
		payload["clientId"] = cfg.ClientID
	}
	body, err := marshalBody(payload)
	if err != nil {
		return TokenPair{}, err
	}

	out := c.execute(ctx, cfg, &call{
		method:       http.MethodPost,
		endpoint:     cfg.RefreshPath,
		body:         body,
		authEndpoint: true,
	})
	if out.err != nil {
		return TokenPair{}, out.err
	}
	if out.resp.IsError {
		failure := RefreshFailed(out.resp.HTTPStatusCode, out.resp.ErrorMessage)
		if out.resp.HTTPStatusCode >= http.StatusInternalServerError {
			failure.Err = ServerError(out.resp.HTTPStatusCode, out.resp.ErrorMessage)
		}
		return TokenPair{}, failure
	}

	pair := extractTokens(payloadJSON(out.resp.Data), c.clock.Now())
	if pair.AccessToken == "" {
		failure := RefreshFailed(out.resp.HTTPStatusCode, "refresh response did not contain an access token")
		failure.Err = ErrMalformedResponse
		return TokenPair{}, failure
	}
	return pair, nil
}

// Package httpx holds outbound HTTP plumbing shared by the client transports.
package httpx

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultClientLimit keeps a single client from hammering its backend when
// the host app fires many calls at once. 10 requests per second, burst 20.
// Override with: RATELIMIT_CLIENT_REQUESTS, RATELIMIT_CLIENT_WINDOW_SEC, RATELIMIT_CLIENT_BURST
var DefaultClientLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Second,
	Burst:             20,
}

func init() {
	DefaultClientLimit = ParseRateLimitFromEnv("CLIENT", DefaultClientLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_CLIENT_REQUESTS, RATELIMIT_CLIENT_WINDOW_SEC, RATELIMIT_CLIENT_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// Limit converts the config into a token-bucket rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// RateLimitTransport delays outbound requests so each destination host sees
// at most the configured rate. Requests wait for a token rather than fail;
// a cancelled request context aborts the wait.
type RateLimitTransport struct {
	Next http.RoundTripper

	limit    rate.Limit
	burst    int
	limiters sync.Map // map[string]*rate.Limiter keyed by host
}

// NewRateLimitTransport wraps next (http.DefaultTransport when nil).
func NewRateLimitTransport(next http.RoundTripper, config RateLimitConfig) *RateLimitTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitTransport{
		Next:  next,
		limit: config.Limit(),
		burst: burst,
	}
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.Next.RoundTrip(req)
}

// limiter retrieves or creates the limiter for host.
func (t *RateLimitTransport) limiter(host string) *rate.Limiter {
	if limiter, ok := t.limiters.Load(host); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := t.limiters.LoadOrStore(host, rate.NewLimiter(t.limit, t.burst))
	return actual.(*rate.Limiter)
}

// Package metrics exports client events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahulunni73/authclient/pkg/authclient"
)

const namespace = "authclient"

var _ authclient.Observer = (*Collector)(nil)

// Collector implements authclient.Observer on top of Prometheus metrics.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	retriesTotal    prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them on reg. A nil reg uses
// a fresh private registry.
func NewCollector(reg *prometheus.Registry) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests completed by the client",
			},
			[]string{"method", "status", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of client requests in seconds, including refresh and retry",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Total number of token refresh round trips",
			},
			[]string{"result"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_refresh_duration_seconds",
				Help:      "Duration of token refresh round trips in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unauthorized_retries_total",
				Help:      "Total number of requests retried after a 401",
			},
		),
		gatherer: reg,
	}

	for _, m := range []prometheus.Collector{
		c.requestsTotal,
		c.requestDuration,
		c.refreshTotal,
		c.refreshDuration,
		c.retriesTotal,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) RequestCompleted(method string, resp *authclient.NormalizedResponse, duration time.Duration) {
	status, outcome := "0", "error"
	if resp != nil {
		status = strconv.Itoa(resp.HTTPStatusCode)
		if !resp.IsError {
			outcome = "success"
		}
	}
	c.requestsTotal.WithLabelValues(method, status, outcome).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) RefreshCompleted(err error, duration time.Duration) {
	c.refreshTotal.WithLabelValues(refreshResult(err)).Inc()
	c.refreshDuration.Observe(duration.Seconds())
}

func (c *Collector) RetriedAfterUnauthorized() {
	c.retriesTotal.Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// refreshResult maps a refresh error to a bounded label value.
func refreshResult(err error) string {
	if err == nil {
		return "success"
	}
	var e *authclient.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "unknown"
}

package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single transport call of the default transport.
const DefaultHTTPTimeout = 30 * time.Second

// Request is one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs HTTP calls. It returns an error only when no response
// was received; any status code is a successful Send.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests with a *http.Client.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport wraps client. A nil client gets a default with
// DefaultHTTPTimeout.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPTransport{Client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, newError(KindInvalidRequest, 0, "failed to create request", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// classifyTransportError maps a failed Send onto the client error taxonomy.
func classifyTransportError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCancelled, 0, ErrCancelled.Message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindRequestTimeout, http.StatusRequestTimeout, ErrRequestTimeout.Message, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return newError(KindRequestTimeout, http.StatusRequestTimeout, ErrRequestTimeout.Message, err)
	default:
		return newError(KindNetworkUnavailable, 0, ErrNetworkUnavailable.Message, err)
	}
}

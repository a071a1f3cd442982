package authclient

import (
	"context"
	"net/http"
)

// Get performs an authenticated GET. endpoint is relative to the base URL or
// absolute.
func (c *Client) Get(ctx context.Context, id, endpoint string, rc RequestConfig) *NormalizedResponse {
	return c.request(ctx, id, http.MethodGet, endpoint, nil, rc)
}

// Post performs an authenticated POST. body is JSON encoded unless it is
// already []byte, json.RawMessage or a string.
func (c *Client) Post(ctx context.Context, id, endpoint string, body any, rc RequestConfig) *NormalizedResponse {
	return c.request(ctx, id, http.MethodPost, endpoint, body, rc)
}

// Put performs an authenticated PUT.
func (c *Client) Put(ctx context.Context, id, endpoint string, body any, rc RequestConfig) *NormalizedResponse {
	return c.request(ctx, id, http.MethodPut, endpoint, body, rc)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, id, endpoint string, rc RequestConfig) *NormalizedResponse {
	return c.request(ctx, id, http.MethodDelete, endpoint, nil, rc)
}

func (c *Client) request(ctx context.Context, id, method, endpoint string, body any, rc RequestConfig) *NormalizedResponse {
	cfg, ok := c.config()
	if !ok {
		return errorResponse(ErrNotConfigured)
	}

	data, err := marshalBody(body)
	if err != nil {
		return errorResponse(err)
	}

	ctx, done := c.begin(ctx, id, rc.Timeout)
	defer done()

	return c.execute(ctx, cfg, &call{
		method:         method,
		endpoint:       endpoint,
		body:           data,
		headers:        rc.Headers,
		requiresAuth:   !rc.SkipAuth,
		skipEncryption: rc.SkipEncryption,
	}).resp
}

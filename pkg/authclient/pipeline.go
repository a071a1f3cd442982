package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/rahulunni73/authclient/pkg/slogx"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// call describes one logical request through the pipeline.
type call struct {
	method   string
	endpoint string
	body     []byte

	// contentType of body, application/json when empty.
	contentType string
	headers     map[string]string

	requiresAuth bool

	// authEndpoint calls are never retried after a 401.
	authEndpoint bool

	// sensitiveField is encrypted in place with the client id instead of
	// wrapping the whole body.
	sensitiveField string

	skipEncryption bool

	// opaqueBody is sent as is, never encrypted (multipart uploads).
	opaqueBody bool

	binary bool
}

// outcome is the pipeline result. raw is the last response received, nil
// when the transport never answered. err is set when the call failed before
// a response could be normalized.
type outcome struct {
	resp *NormalizedResponse
	raw  *Response
	err  *Error
}

func failed(err error) outcome {
	e := asError(err)
	return outcome{resp: errorResponse(e), err: e}
}

// execute runs c and reports it to the observer.
func (cl *Client) execute(ctx context.Context, cfg ClientConfig, c *call) outcome {
	start := time.Now()
	out := cl.roundTrip(ctx, cfg, c)
	cl.observer.RequestCompleted(c.method, out.resp, time.Since(start))
	return out
}

// roundTrip sends c, refreshing and resending at most once on a 401, so the
// transport is called at most twice.
func (cl *Client) roundTrip(ctx context.Context, cfg ClientConfig, c *call) outcome {
	log := slogx.FromContextOr(ctx, cl.logger)

	body, err := prepareBody(cfg, c)
	if err != nil {
		log.Error("failed to encrypt request body", "endpoint", c.endpoint, "error", err)
		return failed(err)
	}

	var token string
	if c.requiresAuth {
		if token, err = cl.session.ValidAccessToken(ctx); err != nil {
			return failed(err)
		}
	}

	nc := NormalizeContext{
		EncryptionEnabled: cfg.EncryptionEnabled,
		PassPhrase:        cfg.PassPhrase,
		ExpectEncrypted:   cfg.EncryptionEnabled && c.requiresAuth && !c.skipEncryption && !c.binary,
		Binary:            c.binary,
	}

	for attempt := 0; ; attempt++ {
		raw, err := cl.transport.Send(ctx, buildRequest(ctx, cfg, c, body, token))
		if err != nil {
			e := classifyTransportError(err)
			log.Warn("request failed", "method", c.method, "endpoint", c.endpoint, "kind", e.Kind)
			return failed(e)
		}

		resp := cl.normalizer.Normalize(raw.StatusCode, raw.Body, nc)
		if resp.HTTPStatusCode != http.StatusUnauthorized || !c.requiresAuth || c.authEndpoint {
			return outcome{resp: resp, raw: raw}
		}
		if attempt > 0 {
			log.Warn("request still unauthorized after refresh", "method", c.method, "endpoint", c.endpoint)
			return outcome{resp: errorResponse(ErrUnauthorized), raw: raw, err: ErrUnauthorized}
		}

		cl.observer.RetriedAfterUnauthorized()
		log.Info("request unauthorized, refreshing token", "method", c.method, "endpoint", c.endpoint)
		if token, err = cl.session.refresh(ctx, token); err != nil {
			return failed(err)
		}
	}
}

// prepareBody applies request encryption. Binary and bodiless calls are sent
// unchanged.
func prepareBody(cfg ClientConfig, c *call) ([]byte, error) {
	if len(c.body) == 0 || c.binary || c.opaqueBody || c.skipEncryption || !cfg.EncryptionEnabled {
		return c.body, nil
	}
	if c.sensitiveField != "" {
		return encryptField(c.body, c.sensitiveField, cfg.ClientID)
	}
	return wrapEnvelope(c.body, cfg.PassPhrase)
}

// encryptField replaces the string at path with its envelope. The rest of
// the body stays readable by the backend.
func encryptField(body []byte, path, key string) ([]byte, error) {
	field := gjson.GetBytes(body, path)
	if !field.Exists() {
		return body, nil
	}
	sealed, err := cryptox.EncryptEnvelope(field.String(), key)
	if err != nil {
		return nil, fromCryptoError(err)
	}
	out, err := sjson.SetBytes(body, path, sealed)
	if err != nil {
		return nil, newError(KindEncryptionFailed, 0, ErrEncryptionFailed.Message, err)
	}
	return out, nil
}

// wrapEnvelope turns body into {"encryptedContent": envelope}.
func wrapEnvelope(body []byte, passPhrase string) ([]byte, error) {
	sealed, err := cryptox.EncryptEnvelope(string(body), passPhrase)
	if err != nil {
		return nil, fromCryptoError(err)
	}
	out, err := json.Marshal(map[string]string{envelopeField: sealed})
	if err != nil {
		return nil, newError(KindEncryptionFailed, 0, ErrEncryptionFailed.Message, err)
	}
	return out, nil
}

func buildRequest(ctx context.Context, cfg ClientConfig, c *call, body []byte, token string) *Request {
	h := header(c.headers)
	if len(body) > 0 && h.Get("Content-Type") == "" {
		h.Set("Content-Type", orDefault(c.contentType, "application/json"))
	}
	if h.Get("Accept") == "" && !c.binary {
		h.Set("Accept", "application/json")
	}
	if id := requestIDFrom(ctx); id != "" {
		h.Set("X-Request-ID", id)
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &Request{
		Method: c.method,
		URL:    cfg.resolve(c.endpoint),
		Header: h,
		Body:   body,
	}
}

// marshalBody encodes a caller supplied body. []byte and json.RawMessage are
// sent as is, strings are assumed to be JSON text.
func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, newError(KindInvalidRequest, http.StatusBadRequest, "request body is not JSON encodable", err)
		}
		return data, nil
	}
}

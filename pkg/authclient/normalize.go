package authclient

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/tidwall/gjson"
)

// Error codes produced by the normalizer itself. Codes sent by the backend
// are passed through unchanged.
const (
	CodeEncryptionRequired = "ENCRYPTION_REQUIRED_BUT_MISSING"
	CodeBadToken           = "BAD_TOKEN"
	CodeBusinessError      = "BUSINESS_ERROR"
	CodeHTTPError          = "HTTP_ERROR"
)

// envelopeField is the JSON field carrying an encrypted body.
const envelopeField = "encryptedContent"

// maxErrorText caps how much of a non-JSON error body ends up in a message.
const maxErrorText = 512

// NormalizeContext tells the normalizer how the response was requested.
type NormalizeContext struct {
	EncryptionEnabled bool
	PassPhrase        string

	// ExpectEncrypted is set when the backend always envelopes this answer;
	// a plain body then is checked against the bad-token policy.
	ExpectEncrypted bool

	// Binary marks download responses: the body is not JSON and is never
	// decrypted.
	Binary bool
}

// Normalizer maps raw HTTP answers into NormalizedResponse values.
type Normalizer struct {
	BadToken BadTokenPolicy
}

// Normalize never fails: every outcome, including undecryptable bodies, is
// expressed in the returned response.
func (n Normalizer) Normalize(status int, body []byte, nc NormalizeContext) *NormalizedResponse {
	if nc.Binary {
		return n.normalizeBinary(status, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return statusOnly(status)
	}
	if !gjson.ValidBytes(trimmed) {
		return plainText(status, string(trimmed))
	}

	root := gjson.ParseBytes(trimmed)
	if root.IsObject() {
		if enc := root.Get(envelopeField); enc.Exists() {
			if !nc.EncryptionEnabled || nc.PassPhrase == "" {
				return &NormalizedResponse{
					IsError:        true,
					HTTPStatusCode: status,
					ErrorMessage:   "received an encrypted response but encryption is not configured",
					ErrorCode:      CodeEncryptionRequired,
				}
			}

			if enc.Type != gjson.String || !cryptox.IsEnvelope(enc.Str) {
				return &NormalizedResponse{
					IsError:        true,
					HTTPStatusCode: status,
					ErrorMessage:   "response envelope is malformed",
					ErrorCode:      CodeEncryptionRequired,
				}
			}

			plaintext, err := cryptox.DecryptEnvelope(enc.Str, nc.PassPhrase)
			if err != nil {
				return &NormalizedResponse{
					IsError:        true,
					HTTPStatusCode: status,
					ErrorMessage:   "failed to decrypt response",
					ErrorCode:      CodeEncryptionRequired,
				}
			}

			decrypted := strings.TrimSpace(plaintext)
			if !gjson.Valid(decrypted) {
				return plainText(status, decrypted)
			}
			root = gjson.Parse(decrypted)
		} else if nc.ExpectEncrypted && n.isBadToken(root) {
			reason := ReasonBadToken
			return &NormalizedResponse{
				IsError:        true,
				HTTPStatusCode: http.StatusUnauthorized,
				ErrorMessage:   orDefault(messageOf(root), "bad token"),
				ErrorCode:      CodeBadToken,
				ErrorReason:    &reason,
			}
		}
	}

	return n.classify(status, root)
}

// classify handles a plain (or decrypted) JSON body.
func (n Normalizer) classify(status int, root gjson.Result) *NormalizedResponse {
	resp := &NormalizedResponse{
		HTTPStatusCode: status,
		Data:           payloadOf(root),
	}

	message := messageOf(root)
	if r := root.Get("errorReason"); r.Type == gjson.Number {
		reason := int(r.Int())
		resp.ErrorReason = &reason
	}

	logicalFailure := root.Get("success").Type == gjson.False || root.Get("error").Type == gjson.True
	if isSuccessStatus(status) && !logicalFailure {
		resp.Message = orDefault(message, http.StatusText(status))
		return resp
	}

	resp.IsError = true
	resp.ErrorMessage = orDefault(message, http.StatusText(status))
	resp.Message = resp.ErrorMessage
	resp.ErrorCode = codeOf(root)
	if resp.ErrorCode == "" {
		resp.ErrorCode = defaultErrorCode(status, logicalFailure)
	}
	return resp
}

// normalizeBinary treats the body as opaque on success. Error bodies are
// parsed when they happen to be JSON; parse failures are swallowed.
func (n Normalizer) normalizeBinary(status int, body []byte) *NormalizedResponse {
	if isSuccessStatus(status) {
		return &NormalizedResponse{HTTPStatusCode: status, Message: http.StatusText(status)}
	}

	trimmed := bytes.TrimSpace(body)
	if gjson.ValidBytes(trimmed) && len(trimmed) > 0 {
		return n.classify(status, gjson.ParseBytes(trimmed))
	}
	return plainText(status, string(trimmed))
}

func (n Normalizer) isBadToken(root gjson.Result) bool {
	var reason *int
	if r := root.Get("errorReason"); r.Type == gjson.Number {
		v := int(r.Int())
		reason = &v
	}
	return n.BadToken.matches(reason, messageOf(root))
}

// errorResponse converts an error into a terminal NormalizedResponse.
func errorResponse(err error) *NormalizedResponse {
	e := asError(err)
	return &NormalizedResponse{
		IsError:        true,
		HTTPStatusCode: e.StatusCode,
		Message:        e.Message,
		ErrorMessage:   e.Message,
		ErrorCode:      string(e.Kind),
	}
}

func statusOnly(status int) *NormalizedResponse {
	if isSuccessStatus(status) {
		return &NormalizedResponse{HTTPStatusCode: status, Message: http.StatusText(status)}
	}
	text := http.StatusText(status)
	return &NormalizedResponse{
		IsError:        true,
		HTTPStatusCode: status,
		Message:        text,
		ErrorMessage:   text,
		ErrorCode:      defaultErrorCode(status, false),
	}
}

func plainText(status int, text string) *NormalizedResponse {
	if isSuccessStatus(status) {
		return &NormalizedResponse{HTTPStatusCode: status, Message: http.StatusText(status), Data: text}
	}
	text = truncateText(text, maxErrorText)
	msg := orDefault(text, http.StatusText(status))
	return &NormalizedResponse{
		IsError:        true,
		HTTPStatusCode: status,
		Message:        msg,
		ErrorMessage:   msg,
		ErrorCode:      defaultErrorCode(status, false),
	}
}

// truncateText cuts text to at most limit bytes without splitting a rune.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// payloadOf returns the "data" or "apiResponse" member when present,
// otherwise the whole body.
func payloadOf(root gjson.Result) any {
	if root.IsObject() {
		for _, key := range []string{"data", "apiResponse"} {
			if v := root.Get(key); v.Exists() {
				return v.Value()
			}
		}
	}
	return root.Value()
}

func messageOf(root gjson.Result) string {
	if !root.IsObject() {
		return ""
	}
	if msg := firstString(root, "message", "errorMessage", "error_description"); msg != "" {
		return msg
	}
	if e := root.Get("error"); e.Type == gjson.String {
		return e.String()
	}
	return ""
}

func codeOf(root gjson.Result) string {
	if !root.IsObject() {
		return ""
	}
	if code := firstString(root, "errorCode", "code"); code != "" {
		return code
	}
	if e := root.Get("error"); e.Type == gjson.String {
		return e.String()
	}
	return ""
}

// firstString returns the first non-empty value among paths. Numeric codes
// are returned in their textual form.
func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := root.Get(p)
		if (v.Type == gjson.String || v.Type == gjson.Number) && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func defaultErrorCode(status int, logicalFailure bool) string {
	switch {
	case logicalFailure && isSuccessStatus(status):
		return CodeBusinessError
	case status == http.StatusUnauthorized:
		return string(KindUnauthorized)
	case status == http.StatusRequestTimeout:
		return string(KindRequestTimeout)
	case status >= 500:
		return string(KindServerError)
	default:
		return CodeHTTPError
	}
}

func isSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

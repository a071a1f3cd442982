package authclient

import (
	"net/http"
	"time"
)

// ============================================================================
// Session
// ============================================================================

// TokenPair is the session held by TokenSession. Both tokens are set or both
// are empty.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  *time.Time
	RefreshExpiry *time.Time
}

// IsZero reports whether the pair holds no session.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// TokenInfo describes the current session without exposing the tokens.
type TokenInfo struct {
	HasAccessToken  bool       `json:"hasAccessToken"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	IsExpired       bool       `json:"isExpired"`
	ExpirationDate  *time.Time `json:"expirationDate,omitempty"`
}

// ============================================================================
// Results
// ============================================================================

// NormalizedResponse is the uniform result of every HTTP operation.
type NormalizedResponse struct {
	IsError        bool   `json:"isError"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Message        string `json:"message,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	ErrorReason    *int   `json:"errorReason,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// Login status values for AuthResult. Backend errorReason values are passed
// through unchanged when present.
const (
	LoginStatusSuccess = 0
	LoginStatusFailed  = 1
)

// AuthResult is returned by the authenticate and logout operations.
type AuthResult struct {
	LoginStatus    int    `json:"loginStatus"`
	IsError        bool   `json:"isError"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Message        string `json:"message,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// FileResult is returned by the upload and download operations.
type FileResult struct {
	IsError        bool   `json:"isError"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Message        string `json:"message,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	FilePath       string `json:"filePath,omitempty"`
	Base64Data     string `json:"base64Data,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	Size           int64  `json:"size,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// ============================================================================
// Requests
// ============================================================================

// RequestConfig carries per-call options for Get, Post and downloads.
type RequestConfig struct {
	// Headers are added to the outbound request.
	Headers map[string]string

	// SkipAuth sends the request without an Authorization header and without
	// refresh-and-retry.
	SkipAuth bool

	// SkipEncryption sends the body in plaintext even when encryption is
	// enabled; the response is still decrypted if it arrives enveloped.
	SkipEncryption bool

	// Timeout bounds this call; zero means no extra bound.
	Timeout time.Duration
}

// FileUpload describes a multipart upload.
type FileUpload struct {
	// FilePath is the local file to send.
	FilePath string

	// FieldName is the multipart field of the file part, "file" when empty.
	FieldName string

	// FileName overrides the file name sent to the server.
	FileName string

	// ContentType of the file part; guessed from the extension when empty.
	ContentType string

	// Metadata is sent as additional form fields.
	Metadata map[string]string

	Headers map[string]string
}

// header converts a string map into http.Header.
func header(values map[string]string) http.Header {
	h := make(http.Header, len(values)+2)
	for k, v := range values {
		h.Set(k, v)
	}
	return h
}

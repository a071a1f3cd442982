package authclient

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Plain(t *testing.T) {
	t.Parallel()

	n := Normalizer{BadToken: DefaultBadTokenPolicy()}

	tests := []struct {
		name    string
		status  int
		body    string
		isError bool
		code    string
		message string
		data    any
	}{
		{
			name:    "success with data",
			status:  http.StatusOK,
			body:    `{"success":true,"message":"fetched","data":{"id":7}}`,
			message: "fetched",
			data:    map[string]any{"id": float64(7)},
		},
		{
			name:   "success with apiResponse",
			status: http.StatusOK,
			body:   `{"apiResponse":[1,2]}`,
			data:   []any{float64(1), float64(2)},
		},
		{
			name:   "success without envelope member",
			status: http.StatusCreated,
			body:   `{"id":"abc"}`,
			data:   map[string]any{"id": "abc"},
		},
		{
			name:    "business error",
			status:  http.StatusOK,
			body:    `{"success":false,"errorCode":"P1000","message":"Insufficient balance"}`,
			isError: true,
			code:    "P1000",
			message: "Insufficient balance",
		},
		{
			name:    "business error without code",
			status:  http.StatusOK,
			body:    `{"error":true,"errorMessage":"rejected"}`,
			isError: true,
			code:    CodeBusinessError,
			message: "rejected",
		},
		{
			name:    "oauth style error",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"expired"}`,
			isError: true,
			code:    "invalid_grant",
			message: "expired",
		},
		{
			name:    "numeric code",
			status:  http.StatusConflict,
			body:    `{"code":409,"message":"duplicate"}`,
			isError: true,
			code:    "409",
			message: "duplicate",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"message":"boom"}`,
			isError: true,
			code:    string(KindServerError),
			message: "boom",
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    ``,
			isError: true,
			code:    string(KindUnauthorized),
			message: "Unauthorized",
		},
		{
			name:    "empty success",
			status:  http.StatusNoContent,
			body:    ``,
			message: "No Content",
		},
		{
			name:    "plain text success",
			status:  http.StatusOK,
			body:    `pong`,
			message: "OK",
			data:    "pong",
		},
		{
			name:    "plain text error",
			status:  http.StatusNotFound,
			body:    `no such route`,
			isError: true,
			code:    CodeHTTPError,
			message: "no such route",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := n.Normalize(tt.status, []byte(tt.body), NormalizeContext{})
			require.Equal(t, tt.isError, resp.IsError)
			require.Equal(t, tt.status, resp.HTTPStatusCode)
			require.Equal(t, tt.code, resp.ErrorCode)
			if tt.isError {
				require.Equal(t, tt.message, resp.ErrorMessage)
				return
			}
			if tt.message != "" {
				require.Equal(t, tt.message, resp.Message)
			}
			require.Equal(t, tt.data, resp.Data)
		})
	}

	t.Run("long error text is truncated", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusBadGateway, []byte(strings.Repeat("x", 2000)), NormalizeContext{})
		require.Len(t, resp.ErrorMessage, maxErrorText)
	})

	t.Run("truncation keeps multibyte runes whole", func(t *testing.T) {
		t.Parallel()
		body := strings.Repeat("a", maxErrorText-1) + "é" + strings.Repeat("b", 10)
		resp := n.Normalize(http.StatusBadGateway, []byte(body), NormalizeContext{})
		require.True(t, utf8.ValidString(resp.ErrorMessage))
		require.Equal(t, strings.Repeat("a", maxErrorText-1), resp.ErrorMessage)
	})

	t.Run("error reason is passed through", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusForbidden, []byte(`{"errorReason":3,"message":"locked"}`), NormalizeContext{})
		require.NotNil(t, resp.ErrorReason)
		require.Equal(t, 3, *resp.ErrorReason)
	})
}

func TestNormalizer_Encrypted(t *testing.T) {
	t.Parallel()

	n := Normalizer{BadToken: DefaultBadTokenPolicy()}
	nc := NormalizeContext{EncryptionEnabled: true, PassPhrase: testPassPhrase, ExpectEncrypted: true}

	seal := func(t *testing.T, plain, pass string) []byte {
		t.Helper()
		env, err := cryptox.EncryptEnvelope(plain, pass)
		require.NoError(t, err)
		return []byte(`{"encryptedContent":"` + env + `"}`)
	}

	t.Run("decrypts and classifies", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, seal(t, `{"data":{"ok":true}}`, testPassPhrase), nc)
		require.False(t, resp.IsError)
		require.Equal(t, map[string]any{"ok": true}, resp.Data)
	})

	t.Run("decrypted business error", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, seal(t, `{"success":false,"errorCode":"P2000","message":"limit"}`, testPassPhrase), nc)
		require.True(t, resp.IsError)
		require.Equal(t, "P2000", resp.ErrorCode)
	})

	t.Run("wrong pass phrase", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, seal(t, `{"data":1}`, "other"), nc)
		require.True(t, resp.IsError)
		require.Equal(t, CodeEncryptionRequired, resp.ErrorCode)
		require.Equal(t, http.StatusOK, resp.HTTPStatusCode)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		t.Parallel()
		for _, body := range []string{
			`{"encryptedContent":"not-an-envelope"}`,
			`{"encryptedContent":42}`,
		} {
			resp := n.Normalize(http.StatusOK, []byte(body), nc)
			require.True(t, resp.IsError, body)
			require.Equal(t, CodeEncryptionRequired, resp.ErrorCode, body)
			require.Equal(t, "response envelope is malformed", resp.ErrorMessage, body)
		}
	})

	t.Run("encrypted answer without encryption configured", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, seal(t, `{"data":1}`, testPassPhrase), NormalizeContext{})
		require.True(t, resp.IsError)
		require.Equal(t, CodeEncryptionRequired, resp.ErrorCode)
	})

	t.Run("bad token by reason", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, []byte(`{"errorReason":4}`), nc)
		require.True(t, resp.IsError)
		require.Equal(t, http.StatusUnauthorized, resp.HTTPStatusCode)
		require.Equal(t, CodeBadToken, resp.ErrorCode)
		require.Equal(t, ReasonBadToken, *resp.ErrorReason)
	})

	t.Run("bad token by message", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, []byte(`{"message":"token expired"}`), nc)
		require.Equal(t, http.StatusUnauthorized, resp.HTTPStatusCode)
		require.Equal(t, "token expired", resp.ErrorMessage)
	})

	t.Run("bad token only when encryption is expected", func(t *testing.T) {
		t.Parallel()
		plain := nc
		plain.ExpectEncrypted = false
		resp := n.Normalize(http.StatusOK, []byte(`{"message":"Bad token"}`), plain)
		require.False(t, resp.IsError)
		require.Equal(t, http.StatusOK, resp.HTTPStatusCode)
	})

	t.Run("custom policy", func(t *testing.T) {
		t.Parallel()
		custom := Normalizer{BadToken: BadTokenPolicy{Reasons: []int{99}}}
		resp := custom.Normalize(http.StatusOK, []byte(`{"errorReason":4,"message":"Bad token"}`), nc)
		require.NotEqual(t, http.StatusUnauthorized, resp.HTTPStatusCode)

		resp = custom.Normalize(http.StatusOK, []byte(`{"errorReason":99}`), nc)
		require.Equal(t, http.StatusUnauthorized, resp.HTTPStatusCode)
	})

	t.Run("plain answer that is not a bad token", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, []byte(`{"data":"plain"}`), nc)
		require.False(t, resp.IsError)
		require.Equal(t, "plain", resp.Data)
	})
}

func TestNormalizer_Binary(t *testing.T) {
	t.Parallel()

	n := Normalizer{BadToken: DefaultBadTokenPolicy()}
	nc := NormalizeContext{Binary: true, EncryptionEnabled: true, PassPhrase: testPassPhrase}

	t.Run("success body is opaque", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusOK, []byte{0x89, 'P', 'N', 'G', 0x00}, nc)
		require.False(t, resp.IsError)
		require.Nil(t, resp.Data)
	})

	t.Run("json error", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusNotFound, []byte(`{"message":"missing file"}`), nc)
		require.True(t, resp.IsError)
		require.Equal(t, "missing file", resp.ErrorMessage)
	})

	t.Run("binary error body does not fail", func(t *testing.T) {
		t.Parallel()
		resp := n.Normalize(http.StatusInternalServerError, []byte{0xff, 0xfe}, nc)
		require.True(t, resp.IsError)
		require.Equal(t, http.StatusInternalServerError, resp.HTTPStatusCode)
	})
}

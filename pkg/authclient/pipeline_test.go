package authclient

import (
	"encoding/json"
	"testing"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestPrepareBody(t *testing.T) {
	t.Parallel()

	body := []byte(`{"username":"alice","password":"pw","nested":{"x":1}}`)

	t.Run("plain config leaves body untouched", func(t *testing.T) {
		t.Parallel()
		out, err := prepareBody(plainConfig(), &call{body: body})
		require.NoError(t, err)
		require.Equal(t, body, out)
	})

	t.Run("sensitive field only", func(t *testing.T) {
		t.Parallel()
		out, err := prepareBody(encryptedConfig(), &call{body: body, sensitiveField: "password"})
		require.NoError(t, err)

		require.Equal(t, "alice", gjson.GetBytes(out, "username").String())
		require.Equal(t, int64(1), gjson.GetBytes(out, "nested.x").Int())
		plain, err := cryptox.DecryptEnvelope(gjson.GetBytes(out, "password").String(), testClientID)
		require.NoError(t, err)
		require.Equal(t, "pw", plain)
	})

	t.Run("missing sensitive field", func(t *testing.T) {
		t.Parallel()
		out, err := prepareBody(encryptedConfig(), &call{body: []byte(`{"username":"alice"}`), sensitiveField: "password"})
		require.NoError(t, err)
		require.JSONEq(t, `{"username":"alice"}`, string(out))
	})

	t.Run("whole body envelope", func(t *testing.T) {
		t.Parallel()
		out, err := prepareBody(encryptedConfig(), &call{body: body})
		require.NoError(t, err)

		var wire map[string]string
		require.NoError(t, json.Unmarshal(out, &wire))
		require.Len(t, wire, 1)
		plain, err := cryptox.DecryptEnvelope(wire[envelopeField], testPassPhrase)
		require.NoError(t, err)
		require.JSONEq(t, string(body), plain)
	})

	t.Run("binary, opaque and skipped bodies are sent as is", func(t *testing.T) {
		t.Parallel()
		for _, c := range []*call{
			{body: body, binary: true},
			{body: body, opaqueBody: true},
			{body: body, skipEncryption: true},
		} {
			out, err := prepareBody(encryptedConfig(), c)
			require.NoError(t, err)
			require.Equal(t, body, out)
		}
	})

	t.Run("no body", func(t *testing.T) {
		t.Parallel()
		out, err := prepareBody(encryptedConfig(), &call{})
		require.NoError(t, err)
		require.Nil(t, out)
	})
}

func TestMarshalBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "bytes", in: []byte(`{"a":1}`), want: `{"a":1}`},
		{name: "raw message", in: json.RawMessage(`[1]`), want: `[1]`},
		{name: "string", in: `{"b":2}`, want: `{"b":2}`},
		{name: "struct", in: struct {
			Name string `json:"name"`
		}{Name: "x"}, want: `{"name":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := marshalBody(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(out))
		})
	}

	t.Run("unencodable", func(t *testing.T) {
		t.Parallel()
		_, err := marshalBody(map[string]any{"ch": make(chan int)})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestClientConfigResolve(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig{BaseURL: testBaseURL}.normalized()
	require.Equal(t, testBaseURL+"/api/x", cfg.resolve("/api/x"))
	require.Equal(t, testBaseURL+"/api/x", cfg.resolve("api/x"))
	require.Equal(t, "http://other/x", cfg.resolve("http://other/x"))
}

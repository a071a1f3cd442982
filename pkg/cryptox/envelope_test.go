package cryptox_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		plaintext  string
		passphrase string
	}{
		{"empty plaintext", "", "pass"},
		{"json body", `{"username":"alice","password":"secret"}`, "shared-passphrase"},
		{"unicode", "héllo wörld ✓", "pässwörd"},
		{"long", strings.Repeat("abcdef0123456789", 512), "p"},
		{"empty passphrase", "data", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			envelope, err := cryptox.EncryptEnvelope(tt.plaintext, tt.passphrase)
			require.NoError(t, err)
			require.True(t, cryptox.IsEnvelope(envelope))

			decrypted, err := cryptox.DecryptEnvelope(envelope, tt.passphrase)
			require.NoError(t, err)
			require.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEnvelopeSegmentSizes(t *testing.T) {
	t.Parallel()

	envelope, err := cryptox.EncryptEnvelope("hello", "pass")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 4)

	sizes := []int{cryptox.EnvelopeSaltSize, cryptox.EnvelopeNonceSize, len("hello"), cryptox.EnvelopeTagSize}
	for i, part := range parts {
		raw, err := base64.StdEncoding.DecodeString(part)
		require.NoError(t, err)
		require.Len(t, raw, sizes[i], "segment %d", i)
	}
}

func TestEnvelopeIsNonDeterministic(t *testing.T) {
	t.Parallel()

	a, err := cryptox.EncryptEnvelope("same", "pass")
	require.NoError(t, err)
	b, err := cryptox.EncryptEnvelope("same", "pass")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "fresh salt and nonce per call")
}

func TestDecryptEnvelopeWrongPassphrase(t *testing.T) {
	t.Parallel()

	envelope, err := cryptox.EncryptEnvelope("secret", "right")
	require.NoError(t, err)

	out, err := cryptox.DecryptEnvelope(envelope, "wrong")
	require.ErrorIs(t, err, cryptox.ErrDecryptionFailed)
	require.Empty(t, out)
}

func TestDecryptEnvelopeTampered(t *testing.T) {
	t.Parallel()

	envelope, err := cryptox.EncryptEnvelope("original plaintext", "pass")
	require.NoError(t, err)

	for _, segment := range []int{2, 3} {
		parts := strings.Split(envelope, ":")
		raw, err := base64.StdEncoding.DecodeString(parts[segment])
		require.NoError(t, err)

		for i := range raw {
			tampered := make([]byte, len(raw))
			copy(tampered, raw)
			tampered[i] ^= 0x01

			mutated := make([]string, len(parts))
			copy(mutated, parts)
			mutated[segment] = base64.StdEncoding.EncodeToString(tampered)

			out, err := cryptox.DecryptEnvelope(strings.Join(mutated, ":"), "pass")
			require.ErrorIs(t, err, cryptox.ErrDecryptionFailed, "segment %d byte %d", segment, i)
			require.Empty(t, out)
		}
	}
}

func TestDecryptEnvelopeInvalidFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envelope string
	}{
		{"empty", ""},
		{"three segments", "a:b:c"},
		{"five segments", "a:b:c:d:e"},
		{"plain text", "not an envelope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cryptox.DecryptEnvelope(tt.envelope, "pass")
			require.ErrorIs(t, err, cryptox.ErrInvalidEnvelopeFormat)
		})
	}
}

func TestDecryptEnvelopeMalformedSegments(t *testing.T) {
	t.Parallel()

	envelope, err := cryptox.EncryptEnvelope("x", "pass")
	require.NoError(t, err)
	parts := strings.Split(envelope, ":")

	t.Run("bad base64", func(t *testing.T) {
		bad := []string{parts[0], "!!!", parts[2], parts[3]}
		_, err := cryptox.DecryptEnvelope(strings.Join(bad, ":"), "pass")
		require.ErrorIs(t, err, cryptox.ErrDecryptionFailed)
	})

	t.Run("short salt", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("short"))
		bad := []string{short, parts[1], parts[2], parts[3]}
		_, err := cryptox.DecryptEnvelope(strings.Join(bad, ":"), "pass")
		require.ErrorIs(t, err, cryptox.ErrDecryptionFailed)
	})

	t.Run("truncated tag", func(t *testing.T) {
		tag, err := base64.StdEncoding.DecodeString(parts[3])
		require.NoError(t, err)
		bad := []string{parts[0], parts[1], parts[2], base64.StdEncoding.EncodeToString(tag[:8])}
		_, err = cryptox.DecryptEnvelope(strings.Join(bad, ":"), "pass")
		require.ErrorIs(t, err, cryptox.ErrDecryptionFailed)
	})
}

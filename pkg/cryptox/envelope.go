package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Envelope parameters shared with the backend. Changing any of these breaks
// compatibility with previously issued envelopes.
const (
	EnvelopeSaltSize   = 32
	EnvelopeNonceSize  = 12
	EnvelopeTagSize    = 16
	EnvelopeKeySize    = 32
	EnvelopeIterations = 15000

	envelopeSeparator = ":"
	envelopeSegments  = 4
)

var (
	// ErrInvalidEnvelopeFormat is returned when an envelope does not have
	// exactly four colon separated segments.
	ErrInvalidEnvelopeFormat = errors.New("cryptox: invalid envelope format")

	// ErrEncryptionFailed is returned when the crypto provider fails while sealing.
	ErrEncryptionFailed = errors.New("cryptox: encryption failed")

	// ErrDecryptionFailed is returned for malformed segments or a failed
	// authentication tag check.
	ErrDecryptionFailed = errors.New("cryptox: decryption failed")
)

// EncryptEnvelope encrypts plaintext with a key derived from passphrase and
// returns the envelope "salt:nonce:ciphertext:tag", every segment standard
// base64. A fresh salt and nonce are drawn on each call, so two envelopes of
// the same plaintext never compare equal.
func EncryptEnvelope(plaintext, passphrase string) (string, error) {
	salt := make([]byte, EnvelopeSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%w: failed to generate salt: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, EnvelopeNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryptionFailed, err)
	}

	gcm, err := envelopeAEAD(passphrase, salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	// Seal returns ciphertext||tag, the wire format keeps them apart.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-EnvelopeTagSize], sealed[len(sealed)-EnvelopeTagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(tag),
	}, envelopeSeparator), nil
}

// DecryptEnvelope reverses EncryptEnvelope. It fails closed: no plaintext is
// returned unless the authentication tag verifies.
func DecryptEnvelope(envelope, passphrase string) (string, error) {
	parts := strings.Split(strings.TrimSpace(envelope), envelopeSeparator)
	if len(parts) != envelopeSegments {
		return "", fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidEnvelopeFormat, envelopeSegments, len(parts))
	}

	salt, err := decodeSegment("salt", parts[0], EnvelopeSaltSize)
	if err != nil {
		return "", err
	}
	nonce, err := decodeSegment("nonce", parts[1], EnvelopeNonceSize)
	if err != nil {
		return "", err
	}
	ciphertext, err := decodeSegment("ciphertext", parts[2], -1)
	if err != nil {
		return "", err
	}
	tag, err := decodeSegment("tag", parts[3], EnvelopeTagSize)
	if err != nil {
		return "", err
	}

	gcm, err := envelopeAEAD(passphrase, salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// IsEnvelope reports whether s has the shape of an envelope. It does not
// attempt decryption.
func IsEnvelope(s string) bool {
	return strings.Count(s, envelopeSeparator) == envelopeSegments-1
}

// deriveEnvelopeKey runs PBKDF2-HMAC-SHA256 over the passphrase.
func deriveEnvelopeKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, EnvelopeIterations, EnvelopeKeySize, sha256.New)
}

func envelopeAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveEnvelopeKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithTagSize(block, EnvelopeTagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

// decodeSegment decodes one base64 segment. size < 0 disables the length check.
func decodeSegment(name, s string, size int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed %s segment: %v", ErrDecryptionFailed, name, err)
	}
	if size >= 0 && len(b) != size {
		return nil, fmt.Errorf("%w: %s segment has %d bytes, want %d", ErrDecryptionFailed, name, len(b), size)
	}
	return b, nil
}

package authclient

import (
	"context"
	"maps"
	"sync"
)

// Secret store keys holding the session.
const (
	KeyAccessToken        = "access_token"
	KeyRefreshToken       = "refresh_token"
	KeyAccessTokenExpiry  = "access_token_expiry"
	KeyRefreshTokenExpiry = "refresh_token_expiry"
)

// sessionKeys lists every key owned by the token session.
var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyAccessTokenExpiry, KeyRefreshTokenExpiry}

// SecretStore provides durable, secure storage for session secrets.
// Implementations can use the OS keychain, encrypted preferences, a database
// or memory. Every method must be safe for concurrent use and atomic per key.
type SecretStore interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
}

// BatchSetter is implemented by stores that can write and delete several
// keys atomically. The session uses it so a token pair is never observed
// half-written.
type BatchSetter interface {
	// SetMany stores every entry in set and deletes every key in del, all or
	// nothing.
	SetMany(ctx context.Context, set map[string]string, del []string) error
}

// StoreError indicates a secret storage failure.
type StoreError struct {
	Operation string // "get", "set", "delete", "clear"
	Key       string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " secret"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Cause }

// MemoryStore is an in-process SecretStore. Values do not survive restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	return nil
}

func (s *MemoryStore) SetMany(_ context.Context, set map[string]string, del []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range del {
		delete(s.values, key)
	}
	maps.Copy(s.values, set)
	return nil
}

// Snapshot returns a copy of the stored values.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

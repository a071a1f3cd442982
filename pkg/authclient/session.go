package authclient

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/rahulunni73/authclient/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

const (
	// ExpirySkew is how long before its expiry an access token stops being
	// handed out.
	ExpirySkew = 30 * time.Second

	// DefaultRefreshTimeout bounds one refresh round trip. The refresh runs
	// detached from the caller that started it, so it needs its own limit.
	DefaultRefreshTimeout = 30 * time.Second

	refreshFlightKey = "refresh"
)

// Clock abstracts time for expiry checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// refreshFunc performs the refresh round trip for refreshToken and returns
// the new pair. It reports failures as *Error.
type refreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// TokenSession owns the token pair. The pair is cached in memory and written
// through to the SecretStore; at most one refresh is in flight at a time and
// every concurrent caller shares its outcome.
type TokenSession struct {
	store          SecretStore
	clock          Clock
	logger         *slog.Logger
	observer       Observer
	refreshTimeout time.Duration
	refresher      refreshFunc

	mu     sync.RWMutex
	pair   TokenPair
	loaded bool
	// gen increments whenever the session is replaced or cleared, so a
	// refresh that started before a logout cannot resurrect the session.
	gen uint64

	flight singleflight.Group
}

func newTokenSession(store SecretStore, clock Clock, logger *slog.Logger, observer Observer, refreshTimeout time.Duration) *TokenSession {
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	return &TokenSession{
		store:          store,
		clock:          clock,
		logger:         logger,
		observer:       observer,
		refreshTimeout: refreshTimeout,
	}
}

// ValidAccessToken returns the access token if it is valid for at least
// ExpirySkew more, otherwise refreshes. A token without a known expiry is
// treated as expired.
func (s *TokenSession) ValidAccessToken(ctx context.Context) (string, error) {
	pair, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	if pair.AccessToken != "" && s.fresh(pair) {
		return pair.AccessToken, nil
	}
	return s.refresh(ctx, pair.AccessToken)
}

// Refresh obtains a new access token, joining an in-flight refresh if one
// exists.
func (s *TokenSession) Refresh(ctx context.Context) (string, error) {
	pair, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	return s.refresh(ctx, pair.AccessToken)
}

// refresh runs the single-flight refresh. stale is the access token the
// caller considers unusable; if another refresh already replaced it with a
// valid token, that token is returned without a network call.
//
// The flight is detached from ctx: a caller that gives up returns its own
// context error while the refresh completes for everyone else.
func (s *TokenSession) refresh(ctx context.Context, stale string) (string, error) {
	ch := s.flight.DoChan(refreshFlightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		return s.doRefresh(fctx, stale)
	})

	select {
	case <-ctx.Done():
		return "", classifyTransportError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *TokenSession) doRefresh(ctx context.Context, stale string) (string, error) {
	log := slogx.FromContextOr(ctx, s.logger)

	pair, gen, err := s.reload(ctx)
	if err != nil {
		return "", err
	}

	if pair.AccessToken != "" && pair.AccessToken != stale && s.fresh(pair) {
		return pair.AccessToken, nil
	}
	if pair.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	now := s.clock.Now()
	if pair.RefreshExpiry != nil && !now.Before(*pair.RefreshExpiry) {
		log.Info("refresh token expired, clearing session", "refresh_expiry", pair.RefreshExpiry.UTC())
		if err := s.Clear(ctx); err != nil {
			log.Error("failed to clear expired session", "error", err)
		}
		return "", ErrRefreshTokenExpired
	}

	if s.refresher == nil {
		return "", ErrNotConfigured
	}

	start := time.Now()
	next, err := s.refresher(ctx, pair.RefreshToken)
	s.observer.RefreshCompleted(err, time.Since(start))
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindRefreshFailed && e.StatusCode == 401 {
			log.Info("refresh token rejected, clearing session")
			if clearErr := s.Clear(ctx); clearErr != nil {
				log.Error("failed to clear rejected session", "error", clearErr)
			}
		} else {
			log.Warn("token refresh failed, keeping session", "error", err)
		}
		return "", err
	}

	// Backends that do not rotate refresh tokens only return an access token.
	if next.RefreshToken == "" {
		next.RefreshToken = pair.RefreshToken
		next.RefreshExpiry = pair.RefreshExpiry
	}

	stored, err := s.storeIfGen(ctx, next, gen)
	if err != nil {
		return "", err
	}
	if !stored {
		log.Info("session changed during refresh, discarding refreshed tokens")
		return "", ErrNoRefreshToken
	}

	log.Info("access token refreshed", "token_fp", cryptox.LogFingerprint(next.AccessToken))
	return next.AccessToken, nil
}

// Store replaces the session with pair. Old tokens are discarded, not merged.
func (s *TokenSession) Store(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, pair); err != nil {
		return err
	}
	s.pair, s.loaded = pair, true
	s.gen++
	return nil
}

// storeIfGen stores pair only if the session generation is still gen.
func (s *TokenSession) storeIfGen(ctx context.Context, pair TokenPair, gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false, nil
	}
	if err := s.persist(ctx, pair); err != nil {
		return false, err
	}
	s.pair, s.loaded = pair, true
	return true, nil
}

// Invalidate forces the access token to read as expired. The refresh token
// is kept, so the next request exercises the refresh path.
func (s *TokenSession) Invalidate(ctx context.Context) error {
	pair, err := s.current(ctx)
	if err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return nil
	}

	past := s.clock.Now().Add(-time.Second)
	pair.AccessExpiry = &past

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setKey(ctx, KeyAccessTokenExpiry, formatEpoch(past)); err != nil {
		return err
	}
	s.pair.AccessExpiry = &past
	return nil
}

// Clear wipes the session from memory and the store.
func (s *TokenSession) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair, s.loaded = TokenPair{}, true
	s.gen++
	if err := s.store.Clear(ctx); err != nil {
		return newError(KindStorage, 0, ErrStorage.Message, &StoreError{Operation: "clear", Cause: err})
	}
	return nil
}

// Info describes the session without exposing tokens.
func (s *TokenSession) Info(ctx context.Context) (TokenInfo, error) {
	pair, err := s.current(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{
		HasAccessToken:  pair.AccessToken != "",
		HasRefreshToken: pair.RefreshToken != "",
		IsExpired:       pair.AccessToken == "" || !s.fresh(pair),
	}
	if pair.AccessExpiry != nil {
		exp := pair.AccessExpiry.UTC()
		info.ExpirationDate = &exp
	}
	return info, nil
}

// snapshot returns the current pair.
func (s *TokenSession) snapshot(ctx context.Context) (TokenPair, error) {
	return s.current(ctx)
}

// fresh reports whether the access token is valid for at least ExpirySkew.
func (s *TokenSession) fresh(pair TokenPair) bool {
	if pair.AccessExpiry == nil {
		return false
	}
	return s.clock.Now().Add(ExpirySkew).Before(*pair.AccessExpiry)
}

// current returns the cached pair, loading it from the store on first use.
func (s *TokenSession) current(ctx context.Context) (TokenPair, error) {
	s.mu.RLock()
	if s.loaded {
		pair := s.pair
		s.mu.RUnlock()
		return pair, nil
	}
	s.mu.RUnlock()

	pair, _, err := s.reload(ctx)
	return pair, err
}

// reload re-reads the pair from the store and returns it with the session
// generation it belongs to.
func (s *TokenSession) reload(ctx context.Context) (TokenPair, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.read(ctx)
	if err != nil {
		return TokenPair{}, s.gen, err
	}
	s.pair, s.loaded = pair, true
	return pair, s.gen, nil
}

func (s *TokenSession) read(ctx context.Context) (TokenPair, error) {
	values := make(map[string]string, len(sessionKeys))
	for _, key := range sessionKeys {
		v, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return TokenPair{}, newError(KindStorage, 0, ErrStorage.Message, &StoreError{Operation: "get", Key: key, Cause: err})
		}
		if ok {
			values[key] = v
		}
	}

	pair := TokenPair{
		AccessToken:   values[KeyAccessToken],
		RefreshToken:  values[KeyRefreshToken],
		AccessExpiry:  parseEpoch(values[KeyAccessTokenExpiry]),
		RefreshExpiry: parseEpoch(values[KeyRefreshTokenExpiry]),
	}

	// A half-present session is no session.
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, nil
	}
	return pair, nil
}

// persist writes pair to the store atomically when the store supports it.
// Callers hold s.mu.
func (s *TokenSession) persist(ctx context.Context, pair TokenPair) error {
	set := map[string]string{
		KeyAccessToken:  pair.AccessToken,
		KeyRefreshToken: pair.RefreshToken,
	}
	var del []string
	if pair.AccessExpiry != nil {
		set[KeyAccessTokenExpiry] = formatEpoch(*pair.AccessExpiry)
	} else {
		del = append(del, KeyAccessTokenExpiry)
	}
	if pair.RefreshExpiry != nil {
		set[KeyRefreshTokenExpiry] = formatEpoch(*pair.RefreshExpiry)
	} else {
		del = append(del, KeyRefreshTokenExpiry)
	}

	if batch, ok := s.store.(BatchSetter); ok {
		if err := batch.SetMany(ctx, set, del); err != nil {
			return newError(KindStorage, 0, ErrStorage.Message, &StoreError{Operation: "set", Cause: err})
		}
		return nil
	}

	for key, value := range set {
		if err := s.setKey(ctx, key, value); err != nil {
			return err
		}
	}
	for _, key := range del {
		if err := s.store.Delete(ctx, key); err != nil {
			return newError(KindStorage, 0, ErrStorage.Message, &StoreError{Operation: "delete", Key: key, Cause: err})
		}
	}
	return nil
}

func (s *TokenSession) setKey(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return newError(KindStorage, 0, ErrStorage.Message, &StoreError{Operation: "set", Key: key, Cause: err})
	}
	return nil
}

func formatEpoch(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func parseEpoch(s string) *time.Time {
	if s == "" {
		return nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

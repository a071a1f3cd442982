package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoExpiry  = errors.New("jwtx: token has no exp claim")
)

// Claims are the claims the client cares about when it holds a token it did
// not issue. Signature verification is the server's job; the client only
// needs to know when to stop trusting a token.
type Claims struct {
	jwt.RegisteredClaims

	// Session ID, when the issuer sets one
	SID string `json:"sid,omitempty"`
}

// ParseUnverified decodes the claims of a compact JWT without checking its
// signature.
func ParseUnverified(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return &claims, nil
}

// ExpiresAt returns the exp claim of token. Opaque (non-JWT) tokens return
// ErrMalformed, JWTs without exp return ErrNoExpiry.
func ExpiresAt(token string) (time.Time, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time.UTC(), nil
}

// ExpiredWithLeeway reports whether token has expired at now, treating it as
// expired leeway early. Tokens whose expiry cannot be read count as expired.
func ExpiredWithLeeway(token string, now time.Time, leeway time.Duration) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !now.Add(leeway).Before(exp)
}

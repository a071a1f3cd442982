package authclient

import (
	"encoding/json"
	"time"

	"github.com/rahulunni73/authclient/pkg/jwtx"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field names accepted for tokens and expiries in authenticate and refresh
// answers, in lookup order.
var (
	accessTokenFields   = []string{"accessToken", "access_token", "token"}
	refreshTokenFields  = []string{"refreshToken", "refresh_token"}
	accessExpiryFields  = []string{"accessTokenExpiry", "expiresAt", "expires_at"}
	accessTTLFields     = []string{"expiresIn", "expires_in"}
	refreshExpiryFields = []string{"refreshTokenExpiry", "refreshExpiresAt", "refresh_expires_at"}
	refreshTTLFields    = []string{"refreshExpiresIn", "refresh_expires_in"}
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// payloadJSON re-encodes normalized data for gjson probing.
func payloadJSON(data any) gjson.Result {
	if data == nil {
		return gjson.Result{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(b)
}

// extractTokens reads a token pair from an authenticate or refresh answer.
// Explicit expiry fields win; otherwise the JWT exp claim is used; otherwise
// the expiry is left absent.
func extractTokens(root gjson.Result, now time.Time) TokenPair {
	pair := TokenPair{
		AccessToken:  firstString(root, accessTokenFields...),
		RefreshToken: firstString(root, refreshTokenFields...),
	}
	pair.AccessExpiry = resolveExpiry(root, pair.AccessToken, accessExpiryFields, accessTTLFields, now)
	pair.RefreshExpiry = resolveExpiry(root, pair.RefreshToken, refreshExpiryFields, refreshTTLFields, now)
	return pair
}

func resolveExpiry(root gjson.Result, token string, absolute, relative []string, now time.Time) *time.Time {
	for _, p := range absolute {
		if t, ok := parseTimeValue(root.Get(p)); ok {
			return &t
		}
	}
	for _, p := range relative {
		if v := root.Get(p); v.Type == gjson.Number && v.Int() > 0 {
			t := now.Add(time.Duration(v.Int()) * time.Second)
			return &t
		}
	}
	if token == "" {
		return nil
	}
	if exp, err := jwtx.ExpiresAt(token); err == nil {
		return &exp
	}
	return nil
}

// parseTimeValue accepts epoch seconds, epoch milliseconds or RFC 3339.
func parseTimeValue(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= epochMillisThreshold {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// withoutTokens returns data with token fields removed, so results handed
// to callers never carry the session secrets.
func withoutTokens(data any) any {
	root := payloadJSON(data)
	if !root.IsObject() {
		return data
	}

	raw := root.Raw
	for _, group := range [][]string{accessTokenFields, refreshTokenFields} {
		for _, p := range group {
			if !gjson.Get(raw, p).Exists() {
				continue
			}
			if out, err := sjson.Delete(raw, p); err == nil {
				raw = out
			}
		}
	}
	return gjson.Parse(raw).Value()
}

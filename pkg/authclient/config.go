package authclient

import (
	"slices"
	"strings"
)

// DefaultRefreshPath is used when ClientConfig.RefreshPath is empty.
const DefaultRefreshPath = "/api/auth/refresh"

// ReasonBadToken is the backend errorReason meaning the presented token was
// rejected.
const ReasonBadToken = 4

// ClientConfig is fixed at Initialize time. ClientID keys the envelope of the
// password (or id token) field of authenticate requests only; PassPhrase keys
// every other request and response envelope.
type ClientConfig struct {
	BaseURL           string `json:"baseUrl"`
	EncryptionEnabled bool   `json:"encryptionEnabled"`
	ClientID          string `json:"clientId"`
	PassPhrase        string `json:"-"`

	// RefreshPath is the refresh endpoint, relative to BaseURL or absolute.
	RefreshPath string `json:"refreshPath,omitempty"`
}

// ClientInitResult reports whether Initialize accepted the configuration.
type ClientInitResult struct {
	IsConfigured      bool   `json:"isConfigured"`
	Message           string `json:"message"`
	BaseURL           string `json:"baseUrl,omitempty"`
	EncryptionEnabled bool   `json:"encryptionEnabled"`
}

// validate returns the reason the config is unusable, or "" when it is fine.
func (c ClientConfig) validate() string {
	if strings.TrimSpace(c.BaseURL) == "" {
		return "baseUrl is required"
	}
	if c.EncryptionEnabled {
		if c.ClientID == "" {
			return "clientId is required when encryption is enabled"
		}
		if c.PassPhrase == "" {
			return "passPhrase is required when encryption is enabled"
		}
	}
	return ""
}

// normalized trims the base URL and fills defaults.
func (c ClientConfig) normalized() ClientConfig {
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	return c
}

// resolve builds a complete URL from an endpoint that may be absolute or a
// path relative to BaseURL.
func (c ClientConfig) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.BaseURL + endpoint
}

// BadTokenPolicy recognises backend answers that mean "your token was
// rejected" even though they arrive with a 2xx status and without the
// encryption envelope. Matching responses are treated as 401.
type BadTokenPolicy struct {
	Reasons  []int
	Messages []string
}

// DefaultBadTokenPolicy matches errorReason 4 and the backend's bad-token
// messages.
func DefaultBadTokenPolicy() BadTokenPolicy {
	return BadTokenPolicy{
		Reasons:  []int{ReasonBadToken},
		Messages: []string{"Bad token", "Invalid token", "Token expired"},
	}
}

func (p BadTokenPolicy) matches(reason *int, message string) bool {
	if reason != nil && slices.Contains(p.Reasons, *reason) {
		return true
	}
	if message == "" {
		return false
	}
	return slices.ContainsFunc(p.Messages, func(m string) bool {
		return strings.EqualFold(m, strings.TrimSpace(message))
	})
}

package auth

import (
	"crypto/subtle"

	"pdfgen/internal/domain"
)

// Authorizer accepts the shared secret and, when a token table is
// configured, any token it lists.
type Authorizer struct {
	apiKey string
	tokens *Tokens
}

// NewAuthorizer builds an Authorizer. Both apiKey and tokens are optional;
// with neither set every request is accepted.
func NewAuthorizer(apiKey string, tokens *Tokens) *Authorizer {
	return &Authorizer{apiKey: apiKey, tokens: tokens}
}

// Enabled reports whether requests need a key at all.
func (a *Authorizer) Enabled() bool {
	return a != nil && (a.apiKey != "" || a.tokens != nil)
}

// Check validates key. The shared secret wins over the token table so the
// service stays reachable while tokens are still loading.
func (a *Authorizer) Check(key string) error {
	if !a.Enabled() {
		return nil
	}
	if key == "" {
		return domain.ErrInvalidAPIKey
	}
	if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
		return nil
	}
	if a.tokens == nil {
		return domain.ErrInvalidAPIKey
	}
	if !a.tokens.Ready() {
		return domain.ErrTokenStoreNotReady
	}
	if !a.tokens.Valid(key) {
		return domain.ErrInvalidAPIKey
	}
	return nil
}

// RateLimit returns the per-interval limit of key, 0 for the shared secret
// and unknown keys.
func (a *Authorizer) RateLimit(key string) int {
	if a == nil || a.tokens == nil {
		return 0
	}
	return a.tokens.RateLimit(key)
}

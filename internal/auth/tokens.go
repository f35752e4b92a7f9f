package auth

import "sync"

// Tokens is the in-memory copy of the API token table. Each token maps to
// its per-interval request limit; 0 means unlimited.
type Tokens struct {
	mu    sync.RWMutex
	cache map[string]int
}

// NewTokens returns an empty, not yet loaded token cache.
func NewTokens() *Tokens {
	return &Tokens{}
}

// Replace swaps the cached token list for a copy of m.
func (t *Tokens) Replace(m map[string]int) {
	cache := make(map[string]int, len(m))
	for k, v := range m {
		cache[k] = v
	}
	t.mu.Lock()
	t.cache = cache
	t.mu.Unlock()
}

// Ready returns true once the cache has been loaded at least once.
func (t *Tokens) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache != nil
}

// Valid checks whether token is in the cached list.
func (t *Tokens) Valid(token string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.cache[token]
	return ok
}

// RateLimit returns the limit for token, 0 for unknown tokens.
func (t *Tokens) RateLimit(token string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache[token]
}

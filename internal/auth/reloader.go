package auth

import (
	"context"
	"time"

	"pdfgen/internal/infra/logging"
)

// Reloader keeps a Tokens cache in sync with a Repository.
type Reloader struct {
	repo     Repository
	tokens   *Tokens
	interval time.Duration
}

// NewReloader refreshes tokens from repo every interval once started.
func NewReloader(repo Repository, tokens *Tokens, interval time.Duration) *Reloader {
	return &Reloader{repo: repo, tokens: tokens, interval: interval}
}

// LoadOnce replaces the cache with the repository content. On error the
// previous cache stays in place.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	m, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.tokens.Replace(m)
	logging.Debug("API tokens loaded", "count", len(m))
	return nil
}

// Start reloads in the background until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err.Error())
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

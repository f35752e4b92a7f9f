package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfgen/internal/domain"
	"pdfgen/internal/infra/logging"
)

const (
	keyPrefix  = "pdfcache:"
	defaultTTL = time.Minute
	opTimeout  = time.Second
)

// Entry is a cached render.
type Entry struct {
	PDF   []byte `json:"pdf"`
	Pages int    `json:"pages,omitempty"`
}

// PDFCache stores finished PDFs in Redis keyed on what was rendered.
// A nil *PDFCache is a valid, disabled cache.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache backed by rdb, or nil when rdb is nil.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key hashes source (the decoded HTML or the URL) together with every option
// that changes the output. responseFormat and fileName only shape the HTTP
// response, so they are left out.
func Key(source string, req *domain.PdfDocumentRequest) string {
	opts := *req
	opts.ResponseFormat = nil
	opts.FileName = nil
	raw, _ := json.Marshal(opts)

	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write(raw)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for key, or nil on a miss. Redis failures are logged
// and reported as a miss.
func (p *PDFCache) Get(ctx context.Context, key string) *Entry {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err.Error())
		return nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logging.Warn("Dropping unreadable cache entry", "key", key, "error", err.Error())
		return nil
	}
	logging.Info("PDF cache hit", "key", key)
	return &e
}

// Set stores e under key for the configured TTL.
func (p *PDFCache) Set(ctx context.Context, key string, e Entry) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err.Error())
	}
}

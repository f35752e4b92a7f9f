package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"

	"pdfgen/internal/auth"
	"pdfgen/internal/config"
	"pdfgen/internal/domain"
	"pdfgen/internal/infra/logging"
)

// APIKeyLocal is the fiber.Ctx local holding an accepted API key.
const APIKeyLocal = "api_key"

// Chain holds the shared state of the global middleware: the limiter storage
// and one limiter per distinct token limit.
type Chain struct {
	cfg   config.Config
	authz *auth.Authorizer
	store fiber.Storage

	tokenLimiters struct {
		sync.RWMutex
		handlers map[int]fiber.Handler
	}
}

// NewChain builds a Chain. A nil store selects NewStorage(cfg).
func NewChain(cfg config.Config, authz *auth.Authorizer, store fiber.Storage) *Chain {
	if store == nil {
		store = NewStorage(cfg)
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "API_KEY"
	}
	return &Chain{cfg: cfg, authz: authz, store: store}
}

// NewStorage returns Redis-backed limiter storage, or memory storage when
// Redis is not configured or unreachable.
func NewStorage(cfg config.Config) (store fiber.Storage) {
	if cfg.Cache.RedisHost == "" {
		return memoryStorage.New()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
			store = memoryStorage.New()
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Cache.RedisHost},
		Database: cfg.Cache.RateLimitDB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	return store
}

// Register attaches the global middleware to app.
func Register(app *fiber.App, cfg config.Config, authz *auth.Authorizer) {
	NewChain(cfg, authz, nil).Register(app)
}

// Register attaches cors, request ids, the health probe, API key checks,
// rate limiting and request logging, in that order.
func (m *Chain) Register(app *fiber.App) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/health",
		ReadinessEndpoint: "/ops/ready",
	}))

	app.Use(m.KeyAuth())
	app.Use(m.TokenRateLimit())

	if m.cfg.RateLimiter.EnableUserLimiter || m.cfg.RateLimiter.UserLimit > 0 {
		app.Use(m.UserRateLimit())
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

// exempt lets the browser fetch previews and lets probes reach /ops without a key.
func (m *Chain) exempt(c *fiber.Ctx) bool {
	if !m.authz.Enabled() {
		return true
	}
	switch c.Method() {
	case fiber.MethodOptions, fiber.MethodGet, fiber.MethodHead:
		return true
	}
	return false
}

// KeyAuth checks the configured API key header on mutating routes.
func (m *Chain) KeyAuth() fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + m.cfg.Auth.Header,
		ContextKey: APIKeyLocal,
		Next:       m.exempt,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if err := m.authz.Check(key); err != nil {
				return false, err
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may hand over a nil error.
			status := fiber.StatusUnauthorized
			msg := domain.ErrInvalidAPIKey.Error()
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
				msg = err.Error()
			} else if errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey) {
				msg = "missing api key"
			}
			logging.Warn("Request rejected", "path", c.Path(), "status", status, "message", msg)
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": msg,
				},
			})
		},
	})
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    fiber.StatusTooManyRequests,
			"message": "Too Many Requests",
		},
	})
}

func (m *Chain) tokenLimiter(limit int) fiber.Handler {
	m.tokenLimiters.RLock()
	h, ok := m.tokenLimiters.handlers[limit]
	m.tokenLimiters.RUnlock()
	if ok {
		return h
	}

	h = limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        m.cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           m.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			token, _ := c.Locals(APIKeyLocal).(string)
			return "token:" + token
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "limit", limit, "path", c.Path())
			return tooManyRequests(c)
		},
	})

	m.tokenLimiters.Lock()
	defer m.tokenLimiters.Unlock()
	if existing, ok := m.tokenLimiters.handlers[limit]; ok {
		return existing
	}
	if m.tokenLimiters.handlers == nil {
		m.tokenLimiters.handlers = make(map[int]fiber.Handler)
	}
	m.tokenLimiters.handlers[limit] = h
	return h
}

// TokenRateLimit applies the per-token limit of the accepted API key.
func (m *Chain) TokenRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals(APIKeyLocal).(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := m.authz.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		return m.tokenLimiter(limit)(c)
	}
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// UserRateLimit limits anonymous callers by IP and user agent. Requests that
// carry an accepted API key are left to TokenRateLimit.
func (m *Chain) UserRateLimit() fiber.Handler {
	if m.cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               m.cfg.RateLimiter.UserLimit,
		Expiration:        m.cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           m.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "user:" + clientKey(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		if token, ok := c.Locals(APIKeyLocal).(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgen/internal/auth"
	"pdfgen/internal/config"
)

type memStore struct {
	sync.RWMutex
	m map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()
	return s.m[key], nil
}

func (s *memStore) Set(key string, val []byte, _ time.Duration) error {
	s.Lock()
	s.m[key] = val
	s.Unlock()
	return nil
}

func (s *memStore) Delete(key string) error {
	s.Lock()
	delete(s.m, key)
	s.Unlock()
	return nil
}

func (s *memStore) Reset() error {
	s.Lock()
	s.m = make(map[string][]byte)
	s.Unlock()
	return nil
}

func (s *memStore) Close() error { return nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RateLimiter.Interval = time.Hour
	return cfg
}

func newApp(cfg config.Config, authz *auth.Authorizer) *fiber.App {
	app := fiber.New()
	NewChain(cfg, authz, newMemStore()).Register(app)
	app.Post("/from-url", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/:documentId", func(c *fiber.Ctx) error { return c.SendString("preview") })
	return app
}

func post(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/from-url", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "1.2.3.4:5678"
	if key != "" {
		req.Header.Set("API_KEY", key)
	}
	return req
}

func TestRegister_AddsHealthAndRequestID(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, nil)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	healthResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ops/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, healthResp.StatusCode)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestKeyAuth_DisabledPassesEverything(t *testing.T) {
	app := newApp(testConfig(), auth.NewAuthorizer("", nil))
	resp, err := app.Test(post(""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestKeyAuth_SharedSecret(t *testing.T) {
	app := newApp(testConfig(), auth.NewAuthorizer("s3cret", nil))

	tests := []struct {
		name string
		key  string
		code int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "nope", fiber.StatusUnauthorized},
		{"right", "s3cret", fiber.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(post(tc.key))
			require.NoError(t, err)
			assert.Equal(t, tc.code, resp.StatusCode)
			if tc.code == fiber.StatusUnauthorized {
				var body struct {
					Error struct {
						Code    int    `json:"code"`
						Message string `json:"message"`
					} `json:"error"`
				}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, fiber.StatusUnauthorized, body.Error.Code)
				assert.NotEmpty(t, body.Error.Message)
			}
		})
	}
}

func TestKeyAuth_PreviewsAreExempt(t *testing.T) {
	app := newApp(testConfig(), auth.NewAuthorizer("s3cret", nil))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/2b1f0e4e-0000-4000-8000-000000000000", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestKeyAuth_TokenStoreNotReady(t *testing.T) {
	app := newApp(testConfig(), auth.NewAuthorizer("", auth.NewTokens()))
	resp, err := app.Test(post("tok"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestTokenRateLimit(t *testing.T) {
	tokens := auth.NewTokens()
	tokens.Replace(map[string]int{"tok": 2})
	app := newApp(testConfig(), auth.NewAuthorizer("", tokens))

	for i := 0; i < 2; i++ {
		resp, err := app.Test(post("tok"), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
	}
	resp, err := app.Test(post("tok"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestUserRateLimit_TokenOverridesUserLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 2

	tokens := auth.NewTokens()
	tokens.Replace(map[string]int{"tok": 100})
	app := fiber.New()
	chain := NewChain(cfg, auth.NewAuthorizer("", tokens), newMemStore())
	app.Use(func(c *fiber.Ctx) error {
		if key := c.Get("API_KEY"); key != "" {
			c.Locals(APIKeyLocal, key)
		}
		return c.Next()
	})
	app.Use(chain.TokenRateLimit())
	app.Use(chain.UserRateLimit())
	app.Post("/from-url", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(post(""), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(post(""), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(post("tok"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNewStorage_FallsBackToMemory(t *testing.T) {
	assert.NotNil(t, NewStorage(config.Config{}))
}

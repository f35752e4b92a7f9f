package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgen/internal/auth"
	"pdfgen/internal/config"
	"pdfgen/internal/conversion"
	"pdfgen/internal/infra/artifacts"
	"pdfgen/internal/render"
)

type page struct{ url string }

func (p *page) Navigate(_ context.Context, url string) error { p.url = url; return nil }
func (p *page) EmulateScreenMedia(context.Context) error { return nil }
func (p *page) ContentHeight(context.Context) (float64, error) { return 100, nil }
func (p *page) Close() error { return nil }
func (p *page) PrintToPDF(context.Context, *render.PrintParams) ([]byte, error) {
	return []byte("%PDF-1.7 server"), nil
}

func minimalConfig() config.Config {
	cfg := config.Default()
	cfg.Server.PreviewBaseURL = "http://127.0.0.1:8080"
	cfg.Limits.MaxHTMLBytes = 1024 * 1024
	cfg.Limits.MaxPDFBytes = 5 * 1024 * 1024
	cfg.Cache.PDFCacheEnabled = false
	return cfg
}

func newApp(t *testing.T, cfg config.Config, authz *auth.Authorizer) (*fiber.App, *artifacts.Store, *page) {
	t.Helper()
	store, err := artifacts.NewStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	pg := &page{}
	src := render.PageSourceFunc(func(context.Context) (render.Page, error) { return pg, nil })
	svc := conversion.NewService(store, render.NewPipeline(src, render.NewBuilder(cfg.PDF.PaperSizes), 0), false)
	app := New(Deps{
		Config:         cfg,
		Service:        svc,
		Store:          store,
		Authorizer:     authz,
		LimiterStorage: memoryStorage.New(),
	})
	return app, store, pg
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	app, _, _ := newApp(t, minimalConfig(), nil)

	for _, path := range []string{"/", "/ops/health", "/ops/browser"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "application/json")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/not-a-document", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNew_HTMLRoundTripThroughPreview(t *testing.T) {
	app, store, pg := newApp(t, minimalConfig(), auth.NewAuthorizer("s3cret", nil))

	body := `{"encodedTemplate":"` + base64.StdEncoding.EncodeToString([]byte("<h1>Hi</h1>")) + `","responseFormat":"BASE64"}`
	req := httptest.NewRequest(http.MethodPost, "/from-base64", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("API_KEY", "s3cret")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out["encodedFile"])

	// The page was pointed at the preview route, which serves the stored
	// HTML without a key.
	require.True(t, strings.HasPrefix(pg.url, "http://127.0.0.1:8080/"))
	id := strings.TrimPrefix(pg.url, "http://127.0.0.1:8080/")
	assert.True(t, artifacts.ValidID(id))

	preview, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, preview.StatusCode)
	raw, _ := io.ReadAll(preview.Body)
	assert.Equal(t, "<h1>Hi</h1>", string(raw))

	_, err = store.ReadHTML(id)
	assert.NoError(t, err)
}

func TestNew_RequiresAPIKeyForConversions(t *testing.T) {
	app, _, _ := newApp(t, minimalConfig(), auth.NewAuthorizer("s3cret", nil))

	req := httptest.NewRequest(http.MethodPost, "/from-url", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

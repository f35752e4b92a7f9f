package handlers

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pdfgen/internal/config"
	"pdfgen/internal/conversion"
	"pdfgen/internal/domain"
	"pdfgen/internal/infra/artifacts"
	"pdfgen/internal/infra/cache"
	"pdfgen/internal/infra/chrome"
	"pdfgen/internal/infra/logging"
)

// PageCountHeader carries the page count of a verified or cached PDF.
const PageCountHeader = "X-Page-Count"

// BrowserStats is the part of the browser session the ops endpoint reads.
type BrowserStats interface {
	Stats() chrome.Stats
}

// Deps bundles what the PDF handlers need.
type Deps struct {
	Config  config.Config
	Service *conversion.Service
	Store   *artifacts.Store
	Cache   *cache.PDFCache
	Browser BrowserStats
}

// PDFHandler serves conversions, previews and browser stats.
type PDFHandler struct {
	cfg     config.Config
	svc     *conversion.Service
	store   *artifacts.Store
	cache   *cache.PDFCache
	browser BrowserStats
}

// NewPDFHandler creates a PDFHandler. A nil cache disables caching.
func NewPDFHandler(d Deps) *PDFHandler {
	pdfCache := d.Cache
	if !d.Config.Cache.PDFCacheEnabled {
		pdfCache = nil
	}
	return &PDFHandler{
		cfg:     d.Config,
		svc:     d.Service,
		store:   d.Store,
		cache:   pdfCache,
		browser: d.Browser,
	}
}

// HandleFromBase64 renders a base64 encoded HTML document.
func (h *PDFHandler) HandleFromBase64(c *fiber.Ctx) error {
	var req domain.HTMLRequest
	if err := h.decode(c, &req); err != nil {
		return err
	}

	limit := h.cfg.Limits.MaxHTMLBytes
	html, decodeErr := domain.DecodeBase64(req.EncodedTemplate)
	if decodeErr == nil && limit > 0 && len(html) > limit {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "HTML input exceeds "+strconv.Itoa(limit)+" bytes")
	}
	if err := req.Validate(limit); err != nil {
		return err
	}

	key := cache.Key(string(html), &req.PdfDocumentRequest)
	if e := h.cache.Get(c.UserContext(), key); e != nil {
		return h.respond(c, &req.PdfDocumentRequest, e.PDF, e.Pages)
	}

	// Renders run to completion even if the client goes away.
	artifact, err := h.svc.FromHTML(context.Background(), &req, h.cfg.Server.PreviewBaseURL)
	if err != nil {
		return err
	}
	return h.deliver(c, key, artifact)
}

// HandleFromURL renders the page at the requested URL.
func (h *PDFHandler) HandleFromURL(c *fiber.Ctx) error {
	var req domain.URLRequest
	if err := h.decode(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	key := cache.Key(req.URL, &req.PdfDocumentRequest)
	if e := h.cache.Get(c.UserContext(), key); e != nil {
		return h.respond(c, &req.PdfDocumentRequest, e.PDF, e.Pages)
	}

	artifact, err := h.svc.FromURL(context.Background(), &req)
	if err != nil {
		return err
	}
	return h.deliver(c, key, artifact)
}

func (h *PDFHandler) decode(c *fiber.Ctx, out interface{}) error {
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Request body is required")
	}
	if err := c.App().Config().JSONDecoder(body, out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body: "+err.Error())
	}
	return nil
}

// deliver consumes the artifact, enforces the output size limit and caches the result.
func (h *PDFHandler) deliver(c *fiber.Ctx, key string, artifact *domain.RenderedArtifact) error {
	pdf, err := h.store.Consume(artifact.Path)
	if err != nil {
		return err
	}
	if limit := h.cfg.Limits.MaxPDFBytes; limit > 0 && len(pdf) > limit {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}

	h.cache.Set(c.UserContext(), key, cache.Entry{PDF: pdf, Pages: artifact.Pages})

	logging.Info("PDF generated",
		"document_id", artifact.ID,
		"filename", artifact.FileName,
		"bytes", len(pdf),
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)
	return h.send(c, artifact.Format, artifact.FileName, pdf, artifact.Pages)
}

// CachedFileName names a cached PDF when the request has no fileName. Cache hits
// skip rendering, so there is no document id or preview behind them.
const CachedFileName = "document.pdf"

// respond answers a cache hit.
func (h *PDFHandler) respond(c *fiber.Ctx, req *domain.PdfDocumentRequest, pdf []byte, pages int) error {
	fileName := CachedFileName
	if req.FileName != nil {
		fileName = *req.FileName
	}
	return h.send(c, req.ResponseFormatOrDefault(), fileName, pdf, pages)
}

func (h *PDFHandler) send(c *fiber.Ctx, format domain.ResponseFormat, fileName string, pdf []byte, pages int) error {
	if pages > 0 {
		c.Set(PageCountHeader, strconv.Itoa(pages))
	}
	if format == domain.ResponseFormatBase64 {
		return c.JSON(fiber.Map{"encodedFile": base64.StdEncoding.EncodeToString(pdf)})
	}
	c.Attachment(fileName)
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(pdf)
}

// HandlePreview serves the HTML stored for a document id. The browser loads
// HTML documents through this route.
func (h *PDFHandler) HandlePreview(c *fiber.Ctx) error {
	html, err := h.store.ReadHTML(c.Params("documentId"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/html; charset=utf-8")
	return c.Send(html)
}

// HandleBrowserStats exposes basic observability for the browser session.
func (h *PDFHandler) HandleBrowserStats(c *fiber.Ctx) error {
	if h.browser == nil {
		return c.JSON(fiber.Map{
			"enabled":      false,
			"open_pages":   0,
			"pages_opened": 0,
			"timeout_secs": h.cfg.PDF.TimeoutSecs,
		})
	}
	s := h.browser.Stats()
	return c.JSON(fiber.Map{
		"enabled":      s.Enabled,
		"open_pages":   s.OpenPages,
		"pages_opened": s.PagesOpened,
		"profile_dir":  s.ProfileDir,
		"started_at":   s.StartedAt.Format(time.RFC3339),
		"timeout_secs": h.cfg.PDF.TimeoutSecs,
	})
}

// HandleWelcome answers the root route.
func HandleWelcome(c *fiber.Ctx) error {
	return c.SendString("pdfgen: POST /from-base64 or /from-url to render a PDF")
}

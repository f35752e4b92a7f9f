package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"pdfgen/internal/auth"
	"pdfgen/internal/config"
	"pdfgen/internal/conversion"
	"pdfgen/internal/http/handlers"
	"pdfgen/internal/http/middleware"
	"pdfgen/internal/infra/artifacts"
	"pdfgen/internal/infra/cache"
)

// Deps is everything the HTTP layer is built from.
type Deps struct {
	Config     config.Config
	Service    *conversion.Service
	Store      *artifacts.Store
	Cache      *cache.PDFCache
	Browser    handlers.BrowserStats
	Authorizer *auth.Authorizer
	// LimiterStorage overrides the rate limiter storage; nil picks Redis or memory.
	LimiterStorage fiber.Storage
}

// New creates and configures the fiber app.
func New(d Deps) *fiber.App {
	bodyLimit := d.Config.Server.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          handlers.ErrorHandler,
	})

	middleware.NewChain(d.Config, d.Authorizer, d.LimiterStorage).Register(app)
	RegisterRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers. The preview route is last so it
// cannot shadow the fixed paths.
func RegisterRoutes(app *fiber.App, d Deps) {
	h := handlers.NewPDFHandler(handlers.Deps{
		Config:  d.Config,
		Service: d.Service,
		Store:   d.Store,
		Cache:   d.Cache,
		Browser: d.Browser,
	})

	app.Get("/", handlers.HandleWelcome)
	app.Post("/from-base64", h.HandleFromBase64)
	app.Post("/from-url", h.HandleFromURL)

	ops := app.Group("/ops")
	ops.Get("/browser", h.HandleBrowserStats)
	ops.Get("/monitor", monitor.New())

	app.Get("/:documentId", h.HandlePreview)
}

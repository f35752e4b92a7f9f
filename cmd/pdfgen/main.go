package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pdfgen/internal/auth"
	"pdfgen/internal/config"
	"pdfgen/internal/conversion"
	"pdfgen/internal/http/server"
	"pdfgen/internal/infra/artifacts"
	"pdfgen/internal/infra/cache"
	"pdfgen/internal/infra/chrome"
	"pdfgen/internal/infra/logging"
	"pdfgen/internal/render"
)

const browserDrainTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Error("Service stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	session, err := chrome.NewSession(cfg)
	if err != nil {
		return err
	}

	store, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		_ = session.Shutdown(context.Background())
		return err
	}

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		defer rdb.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idleConnsClosed := make(chan struct{})
	go store.RunJanitor(cfg.Artifacts.PreviewTTL, cfg.Artifacts.CleanupInterval, idleConnsClosed)

	pipeline := render.NewPipeline(
		session.Pages(),
		render.NewBuilder(cfg.PDF.PaperSizes),
		time.Duration(cfg.PDF.TimeoutSecs)*time.Second,
	)

	app := server.New(server.Deps{
		Config:     cfg,
		Service:    conversion.NewService(store, pipeline, cfg.PDF.VerifyOutput),
		Store:      store,
		Cache:      cache.New(rdb, cfg.Cache.PDFCacheTTL),
		Browser:    session,
		Authorizer: newAuthorizer(ctx, cfg),
	})

	startServer(app, cfg, idleConnsClosed)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), browserDrainTimeout)
	defer drainCancel()
	if err := session.Shutdown(drainCtx); err != nil {
		logging.Error("Browser shutdown failed", "error", err.Error())
	}
	return nil
}

// newAuthorizer loads the token table when one is configured and keeps it
// fresh until ctx is done.
func newAuthorizer(ctx context.Context, cfg config.Config) *auth.Authorizer {
	if !cfg.Auth.Postgres.Enabled() {
		return auth.NewAuthorizer(cfg.Auth.APIKey, nil)
	}

	tokens := auth.NewTokens()
	repo := auth.NewPostgresRepository(cfg.Auth.Postgres)
	reloader := auth.NewReloader(repo, tokens, cfg.Auth.RefreshInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err.Error())
	}
	reloader.Start(ctx)
	go func() {
		<-ctx.Done()
		_ = repo.Close()
	}()
	return auth.NewAuthorizer(cfg.Auth.APIKey, tokens)
}

// startServer starts the Fiber app and blocks until a shutdown signal arrives.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err.Error())
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err.Error())
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}

package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"pdfgen/internal/domain"
	"pdfgen/internal/infra/logging"
)

// Page is a single render surface inside the shared browser context.
type Page interface {
	HeightMeasurer
	Navigate(ctx context.Context, url string) error
	EmulateScreenMedia(ctx context.Context) error
	PrintToPDF(ctx context.Context, params *PrintParams) ([]byte, error)
	Close() error
}

// PageSource hands out fresh pages.
type PageSource interface {
	NewPage(ctx context.Context) (Page, error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc func(ctx context.Context) (Page, error)

// NewPage calls f.
func (f PageSourceFunc) NewPage(ctx context.Context) (Page, error) {
	return f(ctx)
}

// Job describes one render.
type Job struct {
	URL        string
	Request    *domain.PdfDocumentRequest
	OutputPath string
}

// Pipeline runs navigate, emulate, delay, build and capture on a fresh page.
type Pipeline struct {
	pages   PageSource
	builder *Builder
	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPipeline builds a Pipeline. timeout bounds a whole render; 0 disables it.
func NewPipeline(pages PageSource, builder *Builder, timeout time.Duration) *Pipeline {
	return &Pipeline{
		pages:   pages,
		builder: builder,
		timeout: timeout,
		sleep:   sleepContext,
	}
}

// Render writes the PDF for job to job.OutputPath and returns that path.
// The page is closed on every path; the browser and its context are not touched.
func (p *Pipeline) Render(ctx context.Context, job Job) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	pg, err := p.pages.NewPage(ctx)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := pg.Close(); cerr != nil {
			logging.Warn("Closing page failed", "error", cerr.Error())
		}
	}()

	if err := pg.Navigate(ctx, job.URL); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrNavigation, job.URL, err)
	}

	if err := pg.EmulateScreenMedia(ctx); err != nil {
		return "", fmt.Errorf("%w: emulate screen media: %w", domain.ErrRender, err)
	}

	if delay := renderDelay(job.Request); delay > 0 {
		if err := p.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	opts, err := p.builder.Build(ctx, job.Request, pg)
	if err != nil {
		return "", fmt.Errorf("%w: build options: %w", domain.ErrRender, err)
	}
	opts.Path = job.OutputPath

	params, err := opts.PrintParams(p.builder.papers)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRender, err)
	}

	buf, err := pg.PrintToPDF(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: print to pdf: %w", domain.ErrRender, err)
	}
	if err := os.WriteFile(opts.Path, buf, 0o600); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", domain.ErrRender, opts.Path, err)
	}

	logging.Debug("PDF captured", "url", job.URL, "path", opts.Path, "bytes", len(buf))
	return opts.Path, nil
}

func renderDelay(req *domain.PdfDocumentRequest) time.Duration {
	if req.PageRenderDelay == nil || *req.PageRenderDelay <= 0 {
		return 0
	}
	return time.Duration(*req.PageRenderDelay) * time.Millisecond
}

// sleepContext suspends only the calling render.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

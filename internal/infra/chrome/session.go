package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"

	"pdfgen/internal/config"
	"pdfgen/internal/domain"
	"pdfgen/internal/infra/logging"
	"pdfgen/internal/render"
)

// Session owns one Chrome process and one browser context for the lifetime of
// the service. Every render gets its own tab inside that context, so tabs share
// cookies and storage; requests are not isolated from each other.
type Session struct {
	cfg        config.Config
	profileDir string

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// scopeCtx holds the shared browser context and the keep-alive tab.
	scopeCtx    context.Context
	scopeCancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	once     sync.Once

	open      atomic.Int64
	opened    atomic.Int64
	startedAt time.Time
}

// Stats is a point-in-time view of the session.
type Stats struct {
	Enabled     bool
	OpenPages   int64
	PagesOpened int64
	ProfileDir  string
	StartedAt   time.Time
}

// NewSession launches Chrome, opens the shared browser context and parks a
// blank tab in it so the process stays warm between requests. Any failure is
// reported as domain.ErrStartup.
func NewSession(cfg config.Config) (*Session, error) {
	if cfg.PDF.ChromePath != "" {
		if _, err := exec.LookPath(cfg.PDF.ChromePath); err != nil {
			return nil, fmt.Errorf("%w: chrome binary: %w", domain.ErrStartup, err)
		}
	}
	return start(cfg)
}

func start(cfg config.Config) (*Session, error) {
	profileDir, err := createProfileDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStartup, err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:           cfg,
		profileDir:    profileDir,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	if err := s.launch(time.Duration(cfg.PDF.LaunchTimeoutSecs) * time.Second); err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: %w", domain.ErrStartup, err)
	}

	s.startedAt = time.Now()
	logging.Info("Browser session started", "profile_dir", profileDir, "chrome_path", cfg.PDF.ChromePath)
	return s, nil
}

// abortTimeout bounds the release of a browser that never came up.
const abortTimeout = 5 * time.Second

// abort releases a session whose launch failed. The browser context is only
// cancelled once: when no process was started, a second wait on the chromedp
// cancel funcs never returns.
func (s *Session) abort() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = chromedp.Cancel(s.browserCtx)
		s.allocCancel()
	}()

	select {
	case <-done:
	case <-time.After(abortTimeout):
		logging.Warn("Browser did not release in time", "profile_dir", s.profileDir)
	}

	if err := os.RemoveAll(s.profileDir); err != nil {
		logging.Warn("Removing profile dir failed", "profile_dir", s.profileDir, "error", err.Error())
	}
}

type launched struct {
	ctx    context.Context
	cancel context.CancelFunc
	err    error
}

func (s *Session) launch(timeout time.Duration) error {
	done := make(chan launched, 1)
	go func() {
		// The first Run allocates the browser and must get the chromedp
		// context itself: a derived timeout context would kill the process.
		if err := chromedp.Run(s.browserCtx); err != nil {
			done <- launched{err: fmt.Errorf("start browser: %w", err)}
			return
		}
		scopeCtx, scopeCancel := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
		if err := chromedp.Run(scopeCtx, chromedp.Navigate("about:blank")); err != nil {
			scopeCancel()
			done <- launched{err: fmt.Errorf("open browser context: %w", err)}
			return
		}
		done <- launched{ctx: scopeCtx, cancel: scopeCancel}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		s.scopeCtx, s.scopeCancel = res.ctx, res.cancel
		return nil
	case <-expired:
		go func() {
			if res := <-done; res.cancel != nil {
				res.cancel()
			}
		}()
		return fmt.Errorf("browser did not start within %s", timeout)
	}
}

// NewPage opens a tab in the shared browser context. It fails with
// domain.ErrSessionClosed once Shutdown has begun.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	s.mu.RLock()
	if s.closed || s.scopeCtx == nil {
		s.mu.RUnlock()
		return nil, domain.ErrSessionClosed
	}
	s.inflight.Add(1)
	s.mu.RUnlock()

	tabCtx, cancel := chromedp.NewContext(s.scopeCtx)

	// As with the browser, the tab is created by a Run on its own context.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		s.inflight.Done()
		return nil, fmt.Errorf("create tab: %w", err)
	}

	s.open.Add(1)
	s.opened.Add(1)
	return &Page{
		ctx:    tabCtx,
		cancel: cancel,
		release: func() {
			s.open.Add(-1)
			s.inflight.Done()
		},
	}, nil
}

// Pages exposes the session as a render.PageSource.
func (s *Session) Pages() render.PageSource {
	return render.PageSourceFunc(func(ctx context.Context) (render.Page, error) {
		p, err := s.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Shutdown waits for in-flight pages until ctx is done, then closes the
// browser context, the browser and the profile directory. Only the first call
// does any work.
func (s *Session) Shutdown(ctx context.Context) error {
	err := ErrAlreadyShutdown
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			logging.Warn("Abandoning in-flight pages", "open_pages", s.open.Load())
		}

		err = s.teardown()
		logging.Info("Browser session closed", "pages_opened", s.opened.Load())
	})
	return err
}

// ErrAlreadyShutdown is returned by every Shutdown call after the first.
var ErrAlreadyShutdown = errors.New("browser session already shut down")

func (s *Session) teardown() error {
	var errs []error
	if s.scopeCtx != nil {
		if err := chromedp.Cancel(s.scopeCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close browser context: %w", err))
		}
		s.scopeCancel()
	}
	if s.browserCtx != nil {
		if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.profileDir != "" {
		if err := os.RemoveAll(s.profileDir); err != nil {
			errs = append(errs, fmt.Errorf("remove profile dir: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats reports open and total pages.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	return Stats{
		Enabled:     !closed && s.scopeCtx != nil,
		OpenPages:   s.open.Load(),
		PagesOpened: s.opened.Load(),
		ProfileDir:  s.profileDir,
		StartedAt:   s.startedAt,
	}
}

func allocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "chrome-profile-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}

// IsSessionInterrupted reports errors caused by a dead tab, browser or context
// rather than by the page being rendered. Only the root causes of err are
// inspected, so text added by wrappers (a URL, say) never matches.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrSessionClosed) ||
		errors.Is(err, chromedp.ErrChannelClosed) ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) {
		return true
	}
	for _, cause := range rootCauses(err) {
		msg := strings.ToLower(cause.Error())
		if strings.Contains(msg, "target closed") || strings.Contains(msg, "websocket") {
			return true
		}
	}
	return false
}

func rootCauses(err error) []error {
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		var out []error
		for _, inner := range e.Unwrap() {
			out = append(out, rootCauses(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			return rootCauses(inner)
		}
	}
	return []error{err}
}

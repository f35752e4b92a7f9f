package chrome

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pdfgen/internal/render"
)

// Page is one tab of the shared browser context, used for a single render.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	release func()

	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the tab. Tab actions must run on a context derived
// from the tab, so the caller's deadline and cancellation are grafted on.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%w: %w", cerr, err)
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

// EmulateScreenMedia makes the page honour screen stylesheets while printing.
func (p *Page) EmulateScreenMedia(ctx context.Context) error {
	return p.run(ctx, emulation.SetEmulatedMedia().WithMedia("screen"))
}

// ContentHeight returns document.body.scrollHeight in CSS pixels.
func (p *Page) ContentHeight(ctx context.Context) (float64, error) {
	var height float64
	if err := p.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

// PrintToPDF sends Page.printToPDF with params and returns the decoded document.
func (p *Page) PrintToPDF(ctx context.Context, params *render.PrintParams) ([]byte, error) {
	var res page.PrintToPDFReturns
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdp.Execute(ctx, page.CommandPrintToPDF, params, &res)
	}))
	if err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, fmt.Errorf("decode pdf data: %w", err)
	}
	return buf, nil
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if p.ctx != nil {
			p.closeErr = chromedp.Cancel(p.ctx)
		}
		if p.cancel != nil {
			p.cancel()
		}
		if p.release != nil {
			p.release()
		}
	})
	return p.closeErr
}

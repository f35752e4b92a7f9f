package render

import (
	"context"
	"fmt"

	"pdfgen/internal/config"
	"pdfgen/internal/domain"
)

const (
	defaultScale       = 1.0
	defaultPaperWidth  = 8.5
	defaultPaperHeight = 11.0
)

// HeightMeasurer reports the rendered content height of the current page in pixels.
type HeightMeasurer interface {
	ContentHeight(ctx context.Context) (float64, error)
}

// Margin holds per-side page margins as length strings. A nil side means 0.
type Margin struct {
	Top    *string
	Bottom *string
	Left   *string
	Right  *string
}

// Options is the resolved set of print parameters for one capture.
type Options struct {
	Path string

	Scale               float64
	Outline             bool
	PrintBackground     bool
	Tagged              bool
	PreferCSSPageSize   bool
	DisplayHeaderFooter bool
	Landscape           bool

	HeaderTemplate *string
	FooterTemplate *string

	Width      *string
	Height     *string
	Format     *string
	PageRanges *string

	// Margin is nil when no margin field was provided; the engine default applies.
	Margin *Margin
}

// Builder turns validated requests into Options.
type Builder struct {
	papers map[string]config.PaperSize
}

// NewBuilder returns a Builder resolving formats against papers.
func NewBuilder(papers map[string]config.PaperSize) *Builder {
	if len(papers) == 0 {
		papers = config.DefaultPaperSizes()
	}
	return &Builder{papers: papers}
}

// Build resolves req into Options. m is only consulted in single-page mode.
func (b *Builder) Build(ctx context.Context, req *domain.PdfDocumentRequest, m HeightMeasurer) (*Options, error) {
	opts := &Options{
		Scale:               defaultScale,
		Outline:             domain.BoolValue(req.Outline),
		PrintBackground:     domain.BoolValue(req.PrintBackground),
		Tagged:              domain.BoolValue(req.Tagged),
		PreferCSSPageSize:   domain.BoolValue(req.PreferCSSPageSize),
		DisplayHeaderFooter: domain.BoolValue(req.DisplayHeaderFooter),
		Landscape:           domain.BoolValue(req.Landscape),
		Width:               req.Width,
		Format:              req.Format,
		PageRanges:          req.PageRanges,
	}
	if req.Scale != nil {
		opts.Scale = *req.Scale
	}

	var err error
	if opts.HeaderTemplate, err = decodeTemplate(req.HeaderTemplate); err != nil {
		return nil, fmt.Errorf("header template: %w", err)
	}
	if opts.FooterTemplate, err = decodeTemplate(req.FooterTemplate); err != nil {
		return nil, fmt.Errorf("footer template: %w", err)
	}

	opts.Margin = resolveMargin(req)

	if err := resolveHeight(ctx, opts, req, m); err != nil {
		return nil, err
	}
	return opts, nil
}

func decodeTemplate(encoded *string) (*string, error) {
	if !domain.IsSet(encoded) {
		return nil, nil
	}
	raw, err := domain.DecodeBase64(*encoded)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

// resolveMargin applies margin to every side first so side-specific fields win.
func resolveMargin(req *domain.PdfDocumentRequest) *Margin {
	if !domain.IsSet(req.Margin) &&
		!domain.IsSet(req.MarginTop) &&
		!domain.IsSet(req.MarginBottom) &&
		!domain.IsSet(req.MarginLeft) &&
		!domain.IsSet(req.MarginRight) {
		return nil
	}

	m := &Margin{}
	if domain.IsSet(req.Margin) {
		m.Top, m.Bottom, m.Left, m.Right = req.Margin, req.Margin, req.Margin, req.Margin
	}
	if domain.IsSet(req.MarginTop) {
		m.Top = req.MarginTop
	}
	if domain.IsSet(req.MarginBottom) {
		m.Bottom = req.MarginBottom
	}
	if domain.IsSet(req.MarginLeft) {
		m.Left = req.MarginLeft
	}
	if domain.IsSet(req.MarginRight) {
		m.Right = req.MarginRight
	}
	return m
}

// resolveHeight gives single-page mode priority over any requested height.
func resolveHeight(ctx context.Context, opts *Options, req *domain.PdfDocumentRequest, m HeightMeasurer) error {
	if !domain.BoolValue(req.SinglePage) {
		opts.Height = req.Height
		return nil
	}
	if m == nil {
		return fmt.Errorf("single page mode needs a page to measure")
	}
	px, err := m.ContentHeight(ctx)
	if err != nil {
		return fmt.Errorf("measure content height: %w", err)
	}
	height := Pixels(px)
	firstPage := "1"
	opts.Height = &height
	opts.PageRanges = &firstPage
	return nil
}

// PrintParams mirrors the DevTools Page.printToPDF command. Margins are
// pointers so an explicit 0 is sent instead of falling back to Chrome's 1cm.
type PrintParams struct {
	Landscape               bool     `json:"landscape"`
	DisplayHeaderFooter     bool     `json:"displayHeaderFooter"`
	PrintBackground         bool     `json:"printBackground"`
	Scale                   float64  `json:"scale"`
	PaperWidth              float64  `json:"paperWidth"`
	PaperHeight             float64  `json:"paperHeight"`
	MarginTop               *float64 `json:"marginTop,omitempty"`
	MarginBottom            *float64 `json:"marginBottom,omitempty"`
	MarginLeft              *float64 `json:"marginLeft,omitempty"`
	MarginRight             *float64 `json:"marginRight,omitempty"`
	PageRanges              string   `json:"pageRanges,omitempty"`
	HeaderTemplate          *string  `json:"headerTemplate,omitempty"`
	FooterTemplate          *string  `json:"footerTemplate,omitempty"`
	PreferCSSPageSize       bool     `json:"preferCSSPageSize"`
	GenerateTaggedPDF       bool     `json:"generateTaggedPDF"`
	GenerateDocumentOutline bool     `json:"generateDocumentOutline"`
}

// PrintParams converts o into the DevTools print command. format sets the base
// paper size, explicit width and height override single dimensions.
func (o *Options) PrintParams(papers map[string]config.PaperSize) (*PrintParams, error) {
	params := &PrintParams{
		Landscape:               o.Landscape,
		DisplayHeaderFooter:     o.DisplayHeaderFooter,
		PrintBackground:         o.PrintBackground,
		Scale:                   o.Scale,
		PaperWidth:              defaultPaperWidth,
		PaperHeight:             defaultPaperHeight,
		HeaderTemplate:          o.HeaderTemplate,
		FooterTemplate:          o.FooterTemplate,
		PreferCSSPageSize:       o.PreferCSSPageSize,
		GenerateTaggedPDF:       o.Tagged,
		GenerateDocumentOutline: o.Outline,
	}
	if o.Format != nil {
		size, ok := papers[*o.Format]
		if !ok {
			return nil, fmt.Errorf("unknown paper format %q", *o.Format)
		}
		params.PaperWidth, params.PaperHeight = size.Width, size.Height
	}

	var err error
	if domain.IsSet(o.Width) {
		if params.PaperWidth, err = ToInches(*o.Width); err != nil {
			return nil, fmt.Errorf("width: %w", err)
		}
	}
	if domain.IsSet(o.Height) {
		if params.PaperHeight, err = ToInches(*o.Height); err != nil {
			return nil, fmt.Errorf("height: %w", err)
		}
	}
	if domain.IsSet(o.PageRanges) {
		params.PageRanges = *o.PageRanges
	}

	if o.Margin != nil {
		if params.MarginTop, err = marginInches(o.Margin.Top); err != nil {
			return nil, fmt.Errorf("margin top: %w", err)
		}
		if params.MarginBottom, err = marginInches(o.Margin.Bottom); err != nil {
			return nil, fmt.Errorf("margin bottom: %w", err)
		}
		if params.MarginLeft, err = marginInches(o.Margin.Left); err != nil {
			return nil, fmt.Errorf("margin left: %w", err)
		}
		if params.MarginRight, err = marginInches(o.Margin.Right); err != nil {
			return nil, fmt.Errorf("margin right: %w", err)
		}
	}
	return params, nil
}

// marginInches treats an unset side of a configured margin as 0.
func marginInches(side *string) (*float64, error) {
	inches := 0.0
	if side != nil {
		var err error
		if inches, err = ToInches(*side); err != nil {
			return nil, err
		}
	}
	return &inches, nil
}

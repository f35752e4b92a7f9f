package render

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgen/internal/config"
	"pdfgen/internal/domain"
)

type fixedHeight struct {
	px    float64
	err   error
	calls int
}

func (f *fixedHeight) ContentHeight(context.Context) (float64, error) {
	f.calls++
	return f.px, f.err
}

func str(s string) *string { return &s }
func boolean(b bool) *bool { return &b }
func float(f float64) *float64 { return &f }

func build(t *testing.T, req *domain.PdfDocumentRequest, m HeightMeasurer) *Options {
	t.Helper()
	opts, err := NewBuilder(nil).Build(context.Background(), req, m)
	require.NoError(t, err)
	return opts
}

func TestBuild_DirectFieldsAndDefaults(t *testing.T) {
	opts := build(t, &domain.PdfDocumentRequest{}, nil)
	assert.Equal(t, 1.0, opts.Scale)
	assert.False(t, opts.Landscape)
	assert.Nil(t, opts.Margin)
	assert.Nil(t, opts.Height)
	assert.Nil(t, opts.HeaderTemplate)

	req := &domain.PdfDocumentRequest{
		Scale:               float(0.5),
		Outline:             boolean(true),
		PrintBackground:     boolean(true),
		Tagged:              boolean(true),
		PreferCSSPageSize:   boolean(true),
		DisplayHeaderFooter: boolean(true),
		Landscape:           boolean(true),
		Width:               str("10in"),
		Height:              str("5in"),
		Format:              str("A4"),
		PageRanges:          str("1-2"),
	}
	opts = build(t, req, nil)
	assert.Equal(t, 0.5, opts.Scale)
	assert.True(t, opts.Outline && opts.PrintBackground && opts.Tagged && opts.PreferCSSPageSize && opts.DisplayHeaderFooter && opts.Landscape)
	assert.Equal(t, "10in", *opts.Width)
	assert.Equal(t, "5in", *opts.Height)
	assert.Equal(t, "A4", *opts.Format)
	assert.Equal(t, "1-2", *opts.PageRanges)
}

func TestBuild_TemplatesDecodedWhenPresent(t *testing.T) {
	header := "<div class='title'></div>"
	req := &domain.PdfDocumentRequest{
		HeaderTemplate: str(base64.StdEncoding.EncodeToString([]byte(header))),
		FooterTemplate: str("   "),
	}
	opts := build(t, req, nil)
	require.NotNil(t, opts.HeaderTemplate)
	assert.Equal(t, header, *opts.HeaderTemplate)
	assert.Nil(t, opts.FooterTemplate)
}

func TestBuild_NoMarginFieldsLeavesEngineDefault(t *testing.T) {
	opts := build(t, &domain.PdfDocumentRequest{Margin: str(" ")}, nil)
	assert.Nil(t, opts.Margin)

	params, err := opts.PrintParams(config.DefaultPaperSizes())
	require.NoError(t, err)
	assert.Nil(t, params.MarginTop)
	assert.Nil(t, params.MarginBottom)
	assert.Nil(t, params.MarginLeft)
	assert.Nil(t, params.MarginRight)
}

func TestBuild_UnifiedMarginAppliesToAllSides(t *testing.T) {
	opts := build(t, &domain.PdfDocumentRequest{Margin: str("1cm")}, nil)
	require.NotNil(t, opts.Margin)
	for _, side := range []*string{opts.Margin.Top, opts.Margin.Bottom, opts.Margin.Left, opts.Margin.Right} {
		require.NotNil(t, side)
		assert.Equal(t, "1cm", *side)
	}
}

func TestBuild_SideOverridesWinOverUnifiedMargin(t *testing.T) {
	sides := []struct {
		name string
		set  func(r *domain.PdfDocumentRequest)
		get  func(m *Margin) *string
	}{
		{"top", func(r *domain.PdfDocumentRequest) { r.MarginTop = str("5mm") }, func(m *Margin) *string { return m.Top }},
		{"bottom", func(r *domain.PdfDocumentRequest) { r.MarginBottom = str("5mm") }, func(m *Margin) *string { return m.Bottom }},
		{"left", func(r *domain.PdfDocumentRequest) { r.MarginLeft = str("5mm") }, func(m *Margin) *string { return m.Left }},
		{"right", func(r *domain.PdfDocumentRequest) { r.MarginRight = str("5mm") }, func(m *Margin) *string { return m.Right }},
	}
	for _, side := range sides {
		t.Run(side.name, func(t *testing.T) {
			req := &domain.PdfDocumentRequest{Margin: str("1in")}
			side.set(req)
			opts := build(t, req, nil)

			all := map[string]*string{
				"top": opts.Margin.Top, "bottom": opts.Margin.Bottom,
				"left": opts.Margin.Left, "right": opts.Margin.Right,
			}
			for name, v := range all {
				require.NotNil(t, v, name)
				if name == side.name {
					assert.Equal(t, "5mm", *v, name)
				} else {
					assert.Equal(t, "1in", *v, name)
				}
			}
			assert.Equal(t, "5mm", *side.get(opts.Margin))
		})
	}
}

func TestBuild_SideOnlyMarginZeroesOtherSides(t *testing.T) {
	opts := build(t, &domain.PdfDocumentRequest{MarginTop: str("96px")}, nil)
	params, err := opts.PrintParams(config.DefaultPaperSizes())
	require.NoError(t, err)
	require.NotNil(t, params.MarginTop)
	assert.InDelta(t, 1.0, *params.MarginTop, 1e-9)
	require.NotNil(t, params.MarginBottom)
	assert.Equal(t, 0.0, *params.MarginBottom)
	assert.Equal(t, 0.0, *params.MarginLeft)
	assert.Equal(t, 0.0, *params.MarginRight)
}

func TestBuild_SinglePageOverridesHeightAndRanges(t *testing.T) {
	m := &fixedHeight{px: 2345}
	req := &domain.PdfDocumentRequest{
		SinglePage: boolean(true),
		Height:     str("11in"),
		PageRanges: str("2-4"),
	}
	opts := build(t, req, m)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, "2345px", *opts.Height)
	assert.Equal(t, "1", *opts.PageRanges)

	params, err := opts.PrintParams(config.DefaultPaperSizes())
	require.NoError(t, err)
	assert.InDelta(t, 2345.0/96, params.PaperHeight, 1e-9)
	assert.Equal(t, "1", params.PageRanges)
}

func TestBuild_NoMeasurementWithoutSinglePage(t *testing.T) {
	m := &fixedHeight{px: 100}
	opts := build(t, &domain.PdfDocumentRequest{SinglePage: boolean(false), Height: str("3in")}, m)
	assert.Equal(t, 0, m.calls)
	assert.Equal(t, "3in", *opts.Height)
}

func TestBuild_SinglePageMeasureFailure(t *testing.T) {
	m := &fixedHeight{err: errors.New("boom")}
	_, err := NewBuilder(nil).Build(context.Background(), &domain.PdfDocumentRequest{SinglePage: boolean(true)}, m)
	assert.Error(t, err)
}

func TestPrintParams_PaperSizing(t *testing.T) {
	papers := config.DefaultPaperSizes()

	params, err := (&Options{Scale: 1}).PrintParams(papers)
	require.NoError(t, err)
	assert.Equal(t, 8.5, params.PaperWidth)
	assert.Equal(t, 11.0, params.PaperHeight)

	params, err = (&Options{Scale: 1, Format: str("A4")}).PrintParams(papers)
	require.NoError(t, err)
	assert.Equal(t, 8.27, params.PaperWidth)
	assert.Equal(t, 11.7, params.PaperHeight)

	params, err = (&Options{Scale: 1, Format: str("A4"), Width: str("254mm")}).PrintParams(papers)
	require.NoError(t, err)
	assert.InDelta(t, 254*3.78/96, params.PaperWidth, 1e-9)
	assert.Equal(t, 11.7, params.PaperHeight)

	_, err = (&Options{Scale: 1, Format: str("B5")}).PrintParams(papers)
	assert.Error(t, err)
}

func TestToInches(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"96", 1},
		{"96px", 1},
		{"2in", 2},
		{"2.54cm", 2.54 * 37.8 / 96},
		{"10mm", 10 * 3.78 / 96},
		{".5in", 0.5},
		{"1IN", 1},
	}
	for _, tc := range tests {
		got, err := ToInches(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}

	_, err := ToInches("px")
	assert.Error(t, err)
}

func TestPixels(t *testing.T) {
	assert.Equal(t, "1200px", Pixels(1200))
	assert.Equal(t, "10.5px", Pixels(10.5))
}

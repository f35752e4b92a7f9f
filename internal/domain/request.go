package domain

import (
	"encoding/json"
	"strings"
)

// ResponseFormat selects how a finished PDF is returned to the caller.
type ResponseFormat string

const (
	ResponseFormatPDF    ResponseFormat = "PDF"
	ResponseFormatBase64 ResponseFormat = "BASE64"
)

// UnmarshalJSON accepts the enum names case-insensitively. Unknown names are
// kept as-is so the validator can report them as a field error.
func (f *ResponseFormat) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ResponseFormatPDF):
		*f = ResponseFormatPDF
	case string(ResponseFormatBase64):
		*f = ResponseFormatBase64
	default:
		*f = ResponseFormat(s)
	}
	return nil
}

// PdfDocumentRequest carries every render option a caller may set. All
// fields are optional; nil means "not provided".
type PdfDocumentRequest struct {
	DisplayHeaderFooter *bool           `json:"displayHeaderFooter,omitempty"`
	FooterTemplate      *string         `json:"footerTemplate,omitempty"`
	HeaderTemplate      *string         `json:"headerTemplate,omitempty"`
	SinglePage          *bool           `json:"singlePage,omitempty"`
	Landscape           *bool           `json:"landscape,omitempty"`
	Format              *string         `json:"format,omitempty"`
	Height              *string         `json:"height,omitempty"`
	Width               *string         `json:"width,omitempty"`
	Margin              *string         `json:"margin,omitempty"`
	MarginTop           *string         `json:"marginTop,omitempty"`
	MarginBottom        *string         `json:"marginBottom,omitempty"`
	MarginLeft          *string         `json:"marginLeft,omitempty"`
	MarginRight         *string         `json:"marginRight,omitempty"`
	Outline             *bool           `json:"outline,omitempty"`
	PageRanges          *string         `json:"pageRanges,omitempty"`
	PreferCSSPageSize   *bool           `json:"preferCssPageSize,omitempty"`
	PrintBackground     *bool           `json:"printBackground,omitempty"`
	Scale               *float64        `json:"scale,omitempty"`
	Tagged              *bool           `json:"tagged,omitempty"`
	ResponseFormat      *ResponseFormat `json:"responseFormat,omitempty"`
	FileName            *string         `json:"fileName,omitempty"`
	PageRenderDelay     *int            `json:"pageRenderDelay,omitempty"`
}

// ResponseFormatOrDefault returns the requested response format, PDF when unset.
func (r *PdfDocumentRequest) ResponseFormatOrDefault() ResponseFormat {
	if r.ResponseFormat == nil || *r.ResponseFormat == "" {
		return ResponseFormatPDF
	}
	return *r.ResponseFormat
}

// HTMLRequest renders a base64 encoded HTML document.
type HTMLRequest struct {
	PdfDocumentRequest
	EncodedTemplate string `json:"encodedTemplate"`
}

// URLRequest renders the page found at URL.
type URLRequest struct {
	PdfDocumentRequest
	URL string `json:"url"`
}

// RenderedArtifact points at a finished PDF on disk. The caller owns the file
// until it is consumed by the response layer.
type RenderedArtifact struct {
	ID       string
	Path     string
	Format   ResponseFormat
	FileName string
	// Pages is 0 when output verification is disabled.
	Pages int
}

// IsSet reports whether s is present and not blank.
func IsSet(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// BoolValue dereferences b, treating nil as false.
func BoolValue(b *bool) bool {
	return b != nil && *b
}

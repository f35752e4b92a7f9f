package domain

import (
	"encoding/base64"
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"
)

var (
	formatPattern     = regexp.MustCompile(`^(Letter|Legal|Tabloid|Ledger|A[0-6])$`)
	lengthPattern     = regexp.MustCompile(`^[+-]?(\d*[.])?\d+(px|in|cm|mm)?$`)
	pageRangesPattern = regexp.MustCompile(`^((\d+(-\d+)?)(,( )?)?)+$`)
	fileNamePattern   = regexp.MustCompile(`^[\w\-. ]+\.pdf$`)
)

const (
	minScale = 0.1
	maxScale = 2.0
)

// FieldResult is the outcome of a single field validator.
type FieldResult struct {
	Field   string
	Message string
	OK      bool
}

func pass() FieldResult { return FieldResult{OK: true} }

func fail(field, msg string) FieldResult {
	return FieldResult{Field: field, Message: msg}
}

// Collect folds validator outcomes into a *ValidationError, or nil when all pass.
func Collect(results ...FieldResult) error {
	var verr ValidationError
	for _, r := range results {
		if !r.OK {
			verr.Add(r.Field, r.Message)
		}
	}
	if verr.Empty() {
		return nil
	}
	return &verr
}

// DecodeBase64 decodes standard base64, ignoring embedded whitespace.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
}

func checkFormat(v *string) FieldResult {
	if v == nil || formatPattern.MatchString(*v) {
		return pass()
	}
	return fail("format", "Format must be one of the following values: Letter, Legal, Tabloid, Ledger, A<0-6>")
}

// checkLength passes blank values: they mean "unset" to the option builder.
func checkLength(field, label string, v *string) FieldResult {
	if !IsSet(v) || lengthPattern.MatchString(*v) {
		return pass()
	}
	return fail(field, label+" must be in the format <int or float><px|in|cm|mm> e.g. '8.5in' or '250cm'")
}

func checkPageRanges(v *string) FieldResult {
	if v == nil || pageRangesPattern.MatchString(*v) {
		return pass()
	}
	return fail("pageRanges", "PageRanges must be in the format like so: '1-5, 8, 11-13'")
}

func checkScale(v *float64) FieldResult {
	if v == nil || (*v >= minScale && *v <= maxScale) {
		return pass()
	}
	return fail("scale", fmt.Sprintf("Scale must be between %.1f and %.1f", minScale, maxScale))
}

func checkResponseFormat(v *ResponseFormat) FieldResult {
	if v == nil || *v == ResponseFormatPDF || *v == ResponseFormatBase64 {
		return pass()
	}
	return fail("responseFormat", "ResponseFormat must be either 'PDF' or 'BASE64'")
}

func checkFileName(v *string) FieldResult {
	if v == nil || fileNamePattern.MatchString(*v) {
		return pass()
	}
	return fail("fileName", "FileName must end in .pdf and contain only letters, digits, spaces, '-', '_' or '.'")
}

func checkRenderDelay(v *int) FieldResult {
	if v == nil || *v >= 0 {
		return pass()
	}
	return fail("pageRenderDelay", "PageRenderDelay must be greater than or equal to 0")
}

func checkTemplate(field string, v *string) FieldResult {
	if !IsSet(v) {
		return pass()
	}
	if _, err := DecodeBase64(*v); err != nil {
		return fail(field, field+" must be valid base64")
	}
	return pass()
}

// Results runs every option validator.
func (r *PdfDocumentRequest) Results() []FieldResult {
	return []FieldResult{
		checkTemplate("headerTemplate", r.HeaderTemplate),
		checkTemplate("footerTemplate", r.FooterTemplate),
		checkFormat(r.Format),
		checkLength("height", "Height", r.Height),
		checkLength("width", "Width", r.Width),
		checkLength("margin", "Margin", r.Margin),
		checkLength("marginTop", "MarginTop", r.MarginTop),
		checkLength("marginBottom", "MarginBottom", r.MarginBottom),
		checkLength("marginLeft", "MarginLeft", r.MarginLeft),
		checkLength("marginRight", "MarginRight", r.MarginRight),
		checkPageRanges(r.PageRanges),
		checkScale(r.Scale),
		checkResponseFormat(r.ResponseFormat),
		checkFileName(r.FileName),
		checkRenderDelay(r.PageRenderDelay),
	}
}

// Validate checks the options and the encoded template. maxHTMLBytes bounds
// the decoded document; 0 disables the bound.
func (r *HTMLRequest) Validate(maxHTMLBytes int) error {
	return Collect(append(r.Results(), checkEncodedTemplate(r.EncodedTemplate, maxHTMLBytes))...)
}

func checkEncodedTemplate(v string, maxBytes int) FieldResult {
	if strings.TrimSpace(v) == "" {
		return fail("encodedTemplate", "EncodedTemplate is required")
	}
	html, err := DecodeBase64(v)
	if err != nil {
		return fail("encodedTemplate", "EncodedTemplate must be valid base64")
	}
	if maxBytes > 0 && len(html) > maxBytes {
		return fail("encodedTemplate", fmt.Sprintf("EncodedTemplate exceeds %d bytes once decoded", maxBytes))
	}
	return pass()
}

// Validate checks the options and the target URL.
func (r *URLRequest) Validate() error {
	return Collect(append(r.Results(), checkURL(r.URL))...)
}

func checkURL(v string) FieldResult {
	if strings.TrimSpace(v) == "" {
		return fail("url", "Url is required")
	}
	parsed, err := neturl.ParseRequestURI(v)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fail("url", "Url must be an absolute HTTP or HTTPS URL")
	}
	return pass()
}

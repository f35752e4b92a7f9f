package conversion

import (
	"context"
	"fmt"
	"strings"

	"pdfgen/internal/domain"
	"pdfgen/internal/infra/artifacts"
	"pdfgen/internal/infra/logging"
	"pdfgen/internal/render"
)

// Service turns HTML or URL requests into PDF artifacts on disk.
type Service struct {
	store        *artifacts.Store
	pipeline     *render.Pipeline
	verifyOutput bool
}

// NewService wires the artifact store to the render pipeline. When
// verifyOutput is set every capture is parsed back and its pages counted.
func NewService(store *artifacts.Store, pipeline *render.Pipeline, verifyOutput bool) *Service {
	return &Service{store: store, pipeline: pipeline, verifyOutput: verifyOutput}
}

// FromHTML writes the decoded template as a preview and renders it through
// previewBase/<id>, the route that serves previews back.
func (s *Service) FromHTML(ctx context.Context, req *domain.HTMLRequest, previewBase string) (*domain.RenderedArtifact, error) {
	html, err := domain.DecodeBase64(req.EncodedTemplate)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}

	id := s.store.NewID()
	if _, err := s.store.WriteHTML(id, html); err != nil {
		return nil, err
	}

	target := strings.TrimRight(previewBase, "/") + "/" + id
	return s.render(ctx, id, target, &req.PdfDocumentRequest)
}

// FromURL renders the page at req.URL.
func (s *Service) FromURL(ctx context.Context, req *domain.URLRequest) (*domain.RenderedArtifact, error) {
	return s.render(ctx, s.store.NewID(), req.URL, &req.PdfDocumentRequest)
}

func (s *Service) render(ctx context.Context, id, target string, req *domain.PdfDocumentRequest) (*domain.RenderedArtifact, error) {
	out := s.store.PDFPath(id)
	path, err := s.pipeline.Render(ctx, render.Job{URL: target, Request: req, OutputPath: out})
	if err != nil {
		s.store.Discard(out)
		return nil, err
	}

	artifact := &domain.RenderedArtifact{
		ID:       id,
		Path:     path,
		Format:   req.ResponseFormatOrDefault(),
		FileName: id + ".pdf",
	}
	if req.FileName != nil {
		artifact.FileName = *req.FileName
	}

	if s.verifyOutput {
		pages, err := s.store.Inspect(path)
		if err != nil {
			s.store.Discard(path)
			return nil, fmt.Errorf("%w: %w", domain.ErrRender, err)
		}
		artifact.Pages = pages
		if domain.BoolValue(req.SinglePage) && pages != 1 {
			logging.Warn("Single page render produced several pages", "document_id", id, "pages", pages)
		}
	}

	logging.Info("Document rendered", "document_id", id, "target", target, "format", string(artifact.Format), "pages", artifact.Pages)
	return artifact, nil
}

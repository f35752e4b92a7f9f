package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdfgen/internal/domain"
	"pdfgen/internal/infra/logging"
)

const (
	htmlExt = ".html"
	pdfExt  = ".pdf"
)

// Store keeps per-request HTML previews and PDF outputs in one directory,
// named after a random document id.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// NewID returns a fresh document id. Ids are random since previews are
// served without authentication.
func (s *Store) NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id could have been produced by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// HTMLPath returns where the preview of id lives.
func (s *Store) HTMLPath(id string) string {
	return filepath.Join(s.dir, id+htmlExt)
}

// PDFPath returns where the output of id is written.
func (s *Store) PDFPath(id string) string {
	return filepath.Join(s.dir, id+pdfExt)
}

// WriteHTML stores html verbatim as the preview of id.
func (s *Store) WriteHTML(id string, html []byte) (string, error) {
	path := s.HTMLPath(id)
	if err := os.WriteFile(path, html, 0o600); err != nil {
		return "", fmt.Errorf("write html artifact: %w", err)
	}
	return path, nil
}

// ReadHTML returns the preview of id or domain.ErrArtifactNotFound.
func (s *Store) ReadHTML(id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, domain.ErrArtifactNotFound
	}
	raw, err := os.ReadFile(s.HTMLPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read html artifact: %w", err)
	}
	return raw, nil
}

// Consume reads the PDF at path and deletes it. A PDF lives for exactly one request.
func (s *Store) Consume(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf artifact: %w", err)
	}
	if err := os.Remove(path); err != nil {
		logging.Warn("Removing PDF artifact failed", "path", path, "error", err.Error())
	}
	return raw, nil
}

// Discard removes the PDF at path if it exists.
func (s *Store) Discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Removing PDF artifact failed", "path", path, "error", err.Error())
	}
}

// Inspect validates the PDF at path and returns its page count.
func (s *Store) Inspect(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pages, err := api.PageCount(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("inspect pdf: %w", err)
	}
	return pages, nil
}

// PurgeExpired deletes artifacts older than ttl. Only files named like
// artifacts are touched, so a shared directory is safe.
func (s *Store) PurgeExpired(ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Removing expired artifact failed", "name", e.Name(), "error", err.Error())
			continue
		}
		removed++
	}
	return removed, nil
}

func isArtifactName(name string) bool {
	ext := filepath.Ext(name)
	if ext != htmlExt && ext != pdfExt {
		return false
	}
	return ValidID(strings.TrimSuffix(name, ext))
}

// RunJanitor calls PurgeExpired every interval until stop is closed.
func (s *Store) RunJanitor(ttl, interval time.Duration, stop <-chan struct{}) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := s.PurgeExpired(ttl)
			if err != nil {
				logging.Error("Artifact cleanup failed", "error", err.Error())
				continue
			}
			if n > 0 {
				logging.Info("Expired artifacts removed", "count", n)
			}
		case <-stop:
			return
		}
	}
}

// Package render prints assembled documents to PDF files.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"e2p/content"
	"e2p/misc"
)

var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
	ErrInvalidPDF     = errors.New("produced PDF is not valid")
	ErrWritePDF       = errors.New("unable to write PDF")
)

func init() {
	// pdfcpu is used for validation only, keep it away from user config directory
	api.DisableConfigDir()
}

// Backend turns HTML file into PDF bytes.
type Backend interface {
	PDF(ctx context.Context, htmlPath string) ([]byte, error)
	Close() error
}

// Stage renders documents with backend, validates results and writes them to
// destination.
type Stage struct {
	backend Backend
	log     *zap.Logger
}

func NewStage(backend Backend, log *zap.Logger) *Stage {
	return &Stage{backend: backend, log: log.Named("render")}
}

// Close releases backend.
func (s *Stage) Close() error {
	return s.backend.Close()
}

// Render prints doc into PDF file dst.
func (s *Stage) Render(ctx context.Context, doc *content.Document, dst string) error {
	data, err := s.Print(ctx, doc)
	if err != nil {
		return err
	}
	return s.Write(dst, data)
}

// Print renders doc with backend and returns validated PDF.
func (s *Stage) Print(ctx context.Context, doc *content.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	src, err := writeTemp("", misc.GetAppName()+"-*.html", []byte(doc.HTML()))
	if err != nil {
		return nil, fmt.Errorf("unable to prepare document for printing: %w", err)
	}
	defer func() {
		if e := os.Remove(src); e != nil && !os.IsNotExist(e) {
			s.log.Warn("Unable to remove temporary document", zap.String("file", src), zap.Error(e))
		}
	}()

	data, err := s.backend.PDF(ctx, src)
	if err != nil {
		return nil, err
	}

	pages, err := PageCount(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Document printed",
		zap.String("title", doc.Title), zap.Int("pages", pages), zap.Int("size", len(data)), zap.Duration("elapsed", time.Since(start)))
	return data, nil
}

// Write places PDF data at dst. Destination is either left untouched or
// replaced with complete file.
func (s *Stage) Write(dst string, data []byte) error {
	if err := writeAtomic(dst, data); err != nil {
		return err
	}
	s.log.Debug("PDF written", zap.String("to", dst))
	return nil
}

// PageCount validates PDF data and returns number of pages in it.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty output", ErrInvalidPDF)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}
	return pages, nil
}

func writeTemp(dir, pattern string, data []byte) (name string, err error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name = f.Name()
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return "", multierr.Append(err, f.Close())
	}
	if err = f.Sync(); err != nil {
		return "", multierr.Append(err, f.Close())
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// writeAtomic places data into sibling temporary file and renames it over
// dst, so interrupted write never leaves truncated output behind.
func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: unable to create output directory: %v", ErrWritePDF, err)
	}

	tmp, err := writeTemp(dir, "."+misc.GetAppName()+"-*.tmp", data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWritePDF, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWritePDF, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWritePDF, err)
	}
	return nil
}

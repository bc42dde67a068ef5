package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"e2p/config"
	"e2p/content"
	"e2p/epub"
	"e2p/queue"
)

// ProgressFunc is called with fraction in [0, 1] and message at every
// pipeline checkpoint.
type ProgressFunc = queue.ProgressFunc

// Printer turns assembled document into PDF and stores it.
type Printer interface {
	Print(ctx context.Context, doc *content.Document) ([]byte, error)
	Write(dst string, data []byte) error
}

// Pipeline converts single EPUB into PDF. It is stateless between jobs and
// performs no retries.
type Pipeline struct {
	printer Printer
	log     *zap.Logger
	cp      encoding.Encoding
	rpt     *config.Report
}

type PipelineOption func(*Pipeline)

// WithCodePage forces encoding of non UTF-8 entry names in EPUB containers.
func WithCodePage(cp encoding.Encoding) PipelineOption {
	return func(p *Pipeline) {
		p.cp = cp
	}
}

// WithReport makes pipeline keep intermediate artifacts of failed jobs in
// debug report.
func WithReport(rpt *config.Report) PipelineOption {
	return func(p *Pipeline) {
		p.rpt = rpt
	}
}

func NewPipeline(printer Printer, log *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{printer: printer, log: log.Named("pipeline")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// artifacts collects intermediate results for debug report.
type artifacts struct {
	idx *content.Index
	doc *content.Document
}

// Convert reads EPUB at src and writes PDF to dst reporting progress along
// the way. Any failure is reported once with fraction 0 and returned.
func (p *Pipeline) Convert(ctx context.Context, src, dst string, progress ProgressFunc) (err error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	var art artifacts

	log := p.log.With(zap.String("src", src))
	log.Debug("Conversion starting", zap.String("dst", dst))

	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Conversion ended with panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("conversion panic: %v", r)
		}
		if err != nil {
			progress(0, "Error: "+err.Error())
			p.storeArtifacts(src, &art)
			return
		}
		log.Debug("Conversion completed", zap.String("dst", dst), zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	progress(0, "Opening EPUB file...")
	book, err := epub.Open(src, log, epub.WithCodePage(p.cp))
	if err != nil {
		return fmt.Errorf("unable to read book: %w", err)
	}

	progress(0.1, "Extracting images...")
	art.idx = content.BuildIndex(book.Resources, log)

	progress(0.2, "Processing chapters...")
	n := len(book.Chapters)
	chapters := make([]string, 0, n)
	for i, ch := range book.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress(0.2+0.5*float64(i)/float64(max(n, 1)), fmt.Sprintf("Processing chapter %d of %d...", i+1, n))

		body, err := content.Resolve(ch.Markup, art.idx, ch.Path, log)
		if err != nil {
			return fmt.Errorf("unable to process chapter %q: %w", ch.Path, err)
		}
		chapters = append(chapters, body)
	}

	title := book.Title
	if len(title) == 0 {
		title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	art.doc, err = content.Assemble(title, book.Author, chapters)
	if err != nil {
		return fmt.Errorf("unable to assemble document: %w", err)
	}

	progress(0.7, "Generating PDF...")
	data, err := p.printer.Print(ctx, art.doc)
	if err != nil {
		return fmt.Errorf("unable to generate PDF: %w", err)
	}

	progress(0.85, "Writing PDF file...")
	if err := p.printer.Write(dst, data); err != nil {
		return fmt.Errorf("unable to write PDF: %w", err)
	}

	progress(1, "Complete!")
	return nil
}

func (p *Pipeline) storeArtifacts(src string, art *artifacts) {
	if p.rpt == nil {
		return
	}
	name := filepath.Base(src)
	p.rpt.Store("failed/"+name, src)
	if art.idx != nil {
		p.rpt.StoreData("failed/"+name+".index.txt", []byte(art.idx.String()))
	}
	if art.doc != nil {
		p.rpt.StoreData("failed/"+name+".html", []byte(art.doc.HTML()))
	}
}

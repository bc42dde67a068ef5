// Package rendertest provides browserless render backend for tests.
package rendertest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// PDF returns minimal valid PDF document with requested number of empty A4
// pages.
func PDF(pages int) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, 0, pages)
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 595 842] /Resources << >> >>", strings.Join(kids, " "), pages))
	for range pages {
		obj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Backend imitates browser: it reads HTML it was given and produces PDF
// with one title page plus one page per chapter block.
type Backend struct {
	// Err, when set, is returned instead of output.
	Err error
	// Output, when set, is returned instead of generated PDF.
	Output []byte

	mu     sync.Mutex
	html   []string
	closed bool
}

func (b *Backend) PDF(ctx context.Context, htmlPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.html = append(b.html, string(data))
	if b.Err != nil {
		return nil, b.Err
	}
	if b.Output != nil {
		return b.Output, nil
	}
	return PDF(1 + strings.Count(string(data), `<div class="chapter">`)), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// HTML returns documents received so far.
func (b *Backend) HTML() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.html...)
}

// Last returns most recently received document.
func (b *Backend) Last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.html) == 0 {
		return ""
	}
	return b.html[len(b.html)-1]
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

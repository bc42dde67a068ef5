package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"e2p/content"
	"e2p/render/rendertest"
)

func newTestStage(t *testing.T, b Backend) *Stage {
	t.Helper()
	return NewStage(b, zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1))))
}

func testDocument(t *testing.T, chapters ...string) *content.Document {
	t.Helper()
	doc, err := content.Assemble("Book", "Author", chapters)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	return doc
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".e2p-*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestPageCount(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		got, err := PageCount(rendertest.PDF(n))
		if err != nil {
			t.Fatalf("PageCount(%d pages) error: %v", n, err)
		}
		if got != n {
			t.Errorf("PageCount() = %d, want %d", got, n)
		}
	}
}

func TestPageCount_Invalid(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("this is not a pdf"),
		"html":    []byte("<html><body>oops</body></html>"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := PageCount(data); !errors.Is(err, ErrInvalidPDF) {
				t.Errorf("PageCount() error = %v, want ErrInvalidPDF", err)
			}
		})
	}
}

func TestStage_Render(t *testing.T) {
	b := &rendertest.Backend{}
	s := newTestStage(t, b)

	dir := t.TempDir()
	dst := filepath.Join(dir, "out", "book.pdf")

	doc := testDocument(t, "<p>one</p>", "<p>two</p>")
	if err := s.Render(context.Background(), doc, dst); err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Error("output is not PDF")
	}
	if pages, err := PageCount(data); err != nil || pages != 3 {
		t.Errorf("PageCount() = %d, %v; want 3", pages, err)
	}
	if !strings.Contains(b.Last(), "<p>two</p>") {
		t.Error("backend did not receive assembled document")
	}
	if l := leftovers(t, filepath.Dir(dst)); len(l) != 0 {
		t.Errorf("temporary files left: %v", l)
	}
}

func TestStage_Render_Overwrites(t *testing.T) {
	s := newTestStage(t, &rendertest.Backend{})
	dst := filepath.Join(t.TempDir(), "book.pdf")
	if err := os.WriteFile(dst, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(context.Background(), testDocument(t), dst); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) == "old" {
		t.Error("destination was not replaced")
	}
}

func TestStage_Render_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		backend *rendertest.Backend
		want    error
	}{
		{"backend error", &rendertest.Backend{Err: boom}, boom},
		{"invalid output", &rendertest.Backend{Output: []byte("not a pdf")}, ErrInvalidPDF},
		{"empty output", &rendertest.Backend{Output: []byte{}}, ErrInvalidPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			dst := filepath.Join(dir, "book.pdf")
			if err := os.WriteFile(dst, []byte("previous"), 0644); err != nil {
				t.Fatal(err)
			}

			err := newTestStage(t, tt.backend).Render(context.Background(), testDocument(t, "<p>x</p>"), dst)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Render() error = %v, want %v", err, tt.want)
			}
			if data, _ := os.ReadFile(dst); string(data) != "previous" {
				t.Error("destination modified on failure")
			}
			if l := leftovers(t, dir); len(l) != 0 {
				t.Errorf("temporary files left: %v", l)
			}
		})
	}
}

func TestStage_Render_WriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// parent of destination is a regular file
	dst := filepath.Join(blocker, "book.pdf")

	err := newTestStage(t, &rendertest.Backend{}).Render(context.Background(), testDocument(t), dst)
	if !errors.Is(err, ErrWritePDF) {
		t.Fatalf("Render() error = %v, want ErrWritePDF", err)
	}
}

func TestStage_Render_Cancelled(t *testing.T) {
	b := &rendertest.Backend{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dst := filepath.Join(t.TempDir(), "book.pdf")
	if err := newTestStage(t, b).Render(ctx, testDocument(t), dst); !errors.Is(err, context.Canceled) {
		t.Fatalf("Render() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("destination created for cancelled render")
	}
	if len(b.HTML()) != 0 {
		t.Error("backend called for cancelled render")
	}
}

func TestStage_Close(t *testing.T) {
	b := &rendertest.Backend{}
	if err := newTestStage(t, b).Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !b.Closed() {
		t.Error("backend was not closed")
	}
}

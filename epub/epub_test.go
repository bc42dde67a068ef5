package epub

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"e2p/epub/epubtest"
)

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
}

func TestOpen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	epubtest.Write(t, name, epubtest.Book{
		Title:  "Test Book",
		Author: "Jane Doe",
		Chapters: []epubtest.Chapter{
			{Href: "text/ch1.xhtml", Markup: epubtest.XHTML("One", "<p>one</p>")},
			{Href: "text/ch%202.xhtml", Markup: epubtest.XHTML("Two", "<p>two</p>")},
		},
		Images: []epubtest.Image{
			{Href: "images/my%20pic.png", MediaType: "image/png", Data: []byte("png")},
			{Href: "images/cover.jpg", MediaType: "image/jpeg", Data: []byte("jpg")},
		},
	})

	book, err := Open(name, testLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if book.Title != "Test Book" {
		t.Errorf("Title = %q", book.Title)
	}
	if book.Author != "Jane Doe" {
		t.Errorf("Author = %q", book.Author)
	}

	if len(book.Chapters) != 2 {
		t.Fatalf("Chapters = %d, want 2", len(book.Chapters))
	}
	if book.Chapters[0].Path != "text/ch1.xhtml" || book.Chapters[1].Path != "text/ch%202.xhtml" {
		t.Errorf("chapter paths = %q, %q", book.Chapters[0].Path, book.Chapters[1].Path)
	}
	if book.Chapters[1].ID != "ch2" {
		t.Errorf("chapter id = %q, want ch2", book.Chapters[1].ID)
	}
	if len(book.Chapters[1].Markup) == 0 {
		t.Error("percent-encoded chapter href was not resolved to entry")
	}

	if len(book.Resources) != 2 {
		t.Fatalf("Resources = %d, want 2", len(book.Resources))
	}
	if r := book.Resources[0]; r.Path != "images/my%20pic.png" || r.MediaType != "image/png" || string(r.Data) != "png" {
		t.Errorf("Resources[0] = %+v", r)
	}
}

func TestOpen_NoMetadata(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	epubtest.Write(t, name, epubtest.Book{
		Chapters: []epubtest.Chapter{{Href: "ch1.xhtml", Markup: epubtest.XHTML("", "<p>x</p>")}},
	})

	book, err := Open(name, testLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if book.Title != "" || book.Author != "" {
		t.Errorf("expected empty metadata, got %q / %q", book.Title, book.Author)
	}
}

func TestOpen_NoContainerFallback(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	epubtest.Write(t, name, epubtest.Book{
		Title:       "Fallback",
		OPFDir:      "book",
		NoContainer: true,
		Chapters:    []epubtest.Chapter{{Href: "ch1.xhtml", Markup: epubtest.XHTML("", "<p>x</p>")}},
	})

	book, err := Open(name, testLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if book.Title != "Fallback" || len(book.Chapters) != 1 {
		t.Errorf("unexpected book: %q, %d chapters", book.Title, len(book.Chapters))
	}
}

func TestOpen_ZeroChapters(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	epubtest.Write(t, name, epubtest.Book{
		Title:  "Empty",
		Images: []epubtest.Image{{Href: "a.gif", MediaType: "image/gif", Data: []byte("gif")}},
	})

	book, err := Open(name, testLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(book.Chapters) != 0 {
		t.Errorf("Chapters = %d, want 0", len(book.Chapters))
	}
}

func TestOpen_MissingEntriesSkipped(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	write := func(n, content string) {
		fw, err := w.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	write("content.opf", `<package><metadata/><manifest>
<item id="a" href="present.xhtml" media-type="application/xhtml+xml"/>
<item id="b" href="absent.xhtml" media-type="application/xhtml+xml"/>
<item id="c" href="absent.png" media-type="image/png"/>
<item id="d" href="style.css" media-type="text/css"/>
</manifest><spine><itemref idref="b"/><itemref idref="x"/><itemref idref="d"/><itemref idref="a"/></spine></package>`)
	write("present.xhtml", "<html><body><p>ok</p></body></html>")
	write("style.css", "p{}")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	book, err := Open(name, testLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(book.Chapters) != 1 || book.Chapters[0].ID != "a" {
		t.Errorf("Chapters = %+v, want only present.xhtml", book.Chapters)
	}
	if len(book.Resources) != 0 {
		t.Errorf("Resources = %d, want 0", len(book.Resources))
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "not.epub")
	if err := os.WriteFile(notZip, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}

	noPackage := filepath.Join(dir, "nopkg.epub")
	writeZip(t, noPackage, map[string]string{"mimetype": "application/epub+zip"})

	noManifest := filepath.Join(dir, "nomanifest.epub")
	writeZip(t, noManifest, map[string]string{"content.opf": "<package><metadata/></package>"})

	brokenPackage := filepath.Join(dir, "broken.epub")
	writeZip(t, brokenPackage, map[string]string{"content.opf": "this is not xml <<<"})

	tests := []struct {
		name string
		file string
		want error
	}{
		{"not a zip", notZip, ErrInvalidContainer},
		{"absent file", filepath.Join(dir, "absent.epub"), ErrInvalidContainer},
		{"no package", noPackage, ErrNoPackage},
		{"no manifest", noManifest, ErrNoManifest},
		{"broken package", brokenPackage, ErrNoPackage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.file, testLogger(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func writeZip(t *testing.T, name string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for n, content := range entries {
		fw, err := w.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadMetadata(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	epubtest.Write(t, name, epubtest.Book{
		Title:    "Meta",
		Author:   "Someone",
		Chapters: []epubtest.Chapter{{Href: "missing-is-fine.xhtml", Markup: epubtest.XHTML("x", "")}},
	})

	md, err := ReadMetadata(name)
	if err != nil {
		t.Fatalf("ReadMetadata() error = %v", err)
	}
	if md.Title != "Meta" || md.Author != "Someone" {
		t.Errorf("ReadMetadata() = %+v", md)
	}

	if _, err := ReadMetadata(filepath.Join(t.TempDir(), "absent.epub")); !errors.Is(err, ErrInvalidContainer) {
		t.Errorf("ReadMetadata(absent) error = %v, want ErrInvalidContainer", err)
	}
}

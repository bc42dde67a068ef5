package convert

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"e2p/config"
	"e2p/epub"
	"e2p/state"
)

func setupTestEnvForOutputPath(t *testing.T, noDirs bool, transliterate bool, template string) *state.LocalEnv {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Document.FileNameTransliterate = transliterate
	cfg.Document.OutputNameTemplate = template

	return &state.LocalEnv{
		Log:    logger,
		Cfg:    cfg,
		NoDirs: noDirs,
	}
}

var testMetadata = epub.Metadata{Title: "Test Book", Author: "John Doe"}

func TestBuildOutputPath_Default(t *testing.T) {
	tests := []struct {
		name   string
		noDirs bool
		src    string
		rel    string
		dst    string
		expect string
	}{
		{"file to directory", false, "/in/book.epub", "book.epub", "/output", filepath.Join("/output", "book.pdf")},
		{"keeps structure", false, "/in/author/book.epub", "author/book.epub", "/output", filepath.Join("/output", "author", "book.pdf")},
		{"nodirs", true, "/in/author/book.epub", "author/book.epub", "/output", filepath.Join("/output", "book.pdf")},
		{"next to source", false, "/in/author/book.epub", "author/book.epub", "", filepath.Join("/in", "author", "book.pdf")},
		{"upper case extension", true, "/in/BOOK.EPUB", "BOOK.EPUB", "/output", filepath.Join("/output", "BOOK.pdf")},
		{"dotted name", true, "/in/my.book.v2.epub", "my.book.v2.epub", "/output", filepath.Join("/output", "my.book.v2.pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvForOutputPath(t, tt.noDirs, false, "")
			if got := buildOutputPath(testMetadata, tt.src, tt.rel, tt.dst, env); got != tt.expect {
				t.Errorf("buildOutputPath() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestBuildOutputPath_Transliterate(t *testing.T) {
	env := setupTestEnvForOutputPath(t, true, true, "")

	result := buildOutputPath(testMetadata, "/in/Книга.epub", "Книга.epub", "/output", env)
	expected := filepath.Join("/output", "kniga.pdf")

	if result != expected {
		t.Errorf("buildOutputPath() = %q, want %q", result, expected)
	}
}

func TestBuildOutputPath_Template(t *testing.T) {
	tests := []struct {
		name          string
		template      string
		transliterate bool
		expect        string
	}{
		{"title", "{{ .Title }}", false, filepath.Join("/output", "Test Book.pdf")},
		{"subdirectories", "{{ .Author }}/{{ .Title }}", false, filepath.Join("/output", "John Doe", "Test Book.pdf")},
		{"transliterated", "{{ .Author }}/{{ .Title }}", true, filepath.Join("/output", "john-doe", "test-book.pdf")},
		{"broken template falls back", "{{ .Title", false, filepath.Join("/output", "book.pdf")},
		{"parent segments neutralized", "../{{ .Title }}", false, filepath.Join("/output", "_bad_file_name_", "Test Book.pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvForOutputPath(t, true, tt.transliterate, tt.template)
			if got := buildOutputPath(testMetadata, "/in/book.epub", "book.epub", "/output", env); got != tt.expect {
				t.Errorf("buildOutputPath() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestSplitAndCleanPath(t *testing.T) {
	tests := []struct {
		path   string
		expect []string
	}{
		{"file", []string{"file"}},
		{filepath.Join("a", "b", "c"), []string{"a", "b", "c"}},
		{filepath.Join("a", "b") + string(filepath.Separator), []string{"a", "b"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := splitAndCleanPath(tt.path)
		if len(got) != len(tt.expect) {
			t.Errorf("splitAndCleanPath(%q) = %v, want %v", tt.path, got, tt.expect)
			continue
		}
		for i := range got {
			if got[i] != tt.expect[i] {
				t.Errorf("splitAndCleanPath(%q) = %v, want %v", tt.path, got, tt.expect)
				break
			}
		}
	}
}

package convert

import (
	"strings"
	"testing"

	"e2p/config"
	"e2p/epub"
)

func TestExpandTemplate(t *testing.T) {
	md := epub.Metadata{Title: "My Great Book", Author: "Jane Doe"}

	tests := []struct {
		name   string
		tmpl   string
		src    string
		expect string
	}{
		{"simple text", "simple-text", "book.epub", "simple-text"},
		{"title", "{{ .Title }}", "book.epub", "My Great Book"},
		{"author", "{{ .Author }}", "book.epub", "Jane Doe"},
		{"source file", "{{ .SourceFile }}", "path/to/mybook.epub", "mybook"},
		{"context", "{{ .Context }}", "book.epub", string(config.OutputNameTemplateFieldName)},
		{"path", "{{ .Author }}/{{ .Title }}", "book.epub", "Jane Doe/My Great Book"},
		{"sprig", `{{ .Title | upper | replace " " "_" }}`, "book.epub", "MY_GREAT_BOOK"},
		{"default", `{{ "" | default .SourceFile }}`, "x/fallback.epub", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandTemplate(md, config.OutputNameTemplateFieldName, tt.tmpl, tt.src)
			if err != nil {
				t.Fatalf("expandTemplate() error = %v", err)
			}
			if got != tt.expect {
				t.Errorf("expandTemplate() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestExpandTemplate_EmptyMetadata(t *testing.T) {
	got, err := expandTemplate(epub.Metadata{}, config.OutputNameTemplateFieldName, "{{ .Title }}{{ .Author }}", "book.epub")
	if err != nil {
		t.Fatalf("expandTemplate() error = %v", err)
	}
	if got != "" {
		t.Errorf("expandTemplate() = %q, want empty", got)
	}
}

func TestExpandTemplate_Errors(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		msg  string
	}{
		{"parse error", "{{ .Title", "unable to parse template field"},
		{"unknown field", "{{ .Series }}", "Series"},
		{"unknown function", "{{ frobnicate .Title }}", "frobnicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandTemplate(epub.Metadata{}, config.OutputNameTemplateFieldName, tt.tmpl, "book.epub")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

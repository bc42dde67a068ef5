package content

import (
	"strings"
	"testing"
)

func TestAssemble_TitlePage(t *testing.T) {
	doc, err := Assemble("War & Peace", "Leo <Tolstoy>", nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := `<div class="title-page"><h1>War &amp; Peace</h1><p class="author">Leo &lt;Tolstoy&gt;</p></div>`
	if !strings.HasPrefix(doc.Body, want) {
		t.Errorf("Body = %q, want prefix %q", doc.Body, want)
	}
	if strings.Contains(doc.Body, `class="chapter"`) {
		t.Error("no chapters expected")
	}
}

func TestAssemble_NoAuthorLine(t *testing.T) {
	doc, err := Assemble("Title", "", nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if strings.Contains(doc.Body, "author") {
		t.Errorf("author line must be omitted: %s", doc.Body)
	}
}

func TestAssemble_ChaptersBodyOnly(t *testing.T) {
	chapters := []string{
		`<html><head><title>Head One</title><style>p{}</style></head><body><h1>One</h1><p>first</p></body></html>`,
		``,
		`<html><head><title>Three</title></head><body></body></html>`,
		`<p>fragment without body</p>`,
	}
	doc, err := Assemble("Book", "Author", chapters)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if n := strings.Count(doc.Body, `<div class="chapter">`); n != 4 {
		t.Fatalf("chapter blocks = %d, want 4: %s", n, doc.Body)
	}
	if strings.Contains(doc.Body, "Head One") || strings.Contains(doc.Body, "<style>") {
		t.Errorf("chapter head leaked into body: %s", doc.Body)
	}

	first := strings.Index(doc.Body, "<h1>One</h1><p>first</p>")
	frag := strings.Index(doc.Body, "<p>fragment without body</p>")
	if first < 0 || frag < 0 || first > frag {
		t.Errorf("chapters out of order or missing: %s", doc.Body)
	}
	if strings.Count(doc.Body, `<div class="chapter"></div>`) != 2 {
		t.Errorf("expected two empty chapter blocks: %s", doc.Body)
	}
}

func TestDocument_HTML(t *testing.T) {
	doc, err := Assemble("A <b> title", "", []string{"<p>x</p>"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if doc.Stylesheet != Stylesheet {
		t.Error("document must carry fixed stylesheet")
	}
	out := doc.HTML()
	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Error("missing doctype")
	}
	if !strings.Contains(out, "<title>A &lt;b&gt; title</title>") {
		t.Errorf("title not escaped: %s", out[:200])
	}
	if !strings.Contains(out, Stylesheet) || !strings.Contains(out, doc.Body) {
		t.Error("stylesheet or body missing from document")
	}
}

func TestStylesheet(t *testing.T) {
	for _, rule := range []string{"size: A4", "margin: 2cm 2.5cm", "counter(page)", ".chapter", "page-break-before: always", "hyphens: auto"} {
		if !strings.Contains(Stylesheet, rule) {
			t.Errorf("stylesheet lacks %q", rule)
		}
	}
}

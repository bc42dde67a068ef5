package content

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Stylesheet is print stylesheet applied to every document.
//
//go:embed print.css
var Stylesheet string

// Document is single printable HTML document. It is not modified after
// assembly.
type Document struct {
	Title      string
	Body       string
	Stylesheet string
}

// HTML returns complete document with inlined stylesheet.
func (d *Document) HTML() string {
	var sb strings.Builder
	sb.Grow(len(d.Body) + len(d.Stylesheet) + 256)
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	sb.WriteString(html.EscapeString(d.Title))
	sb.WriteString("</title>\n<style>\n")
	sb.WriteString(d.Stylesheet)
	sb.WriteString("</style>\n</head>\n<body>\n")
	sb.WriteString(d.Body)
	sb.WriteString("\n</body>\n</html>\n")
	return sb.String()
}

// Assemble builds document from title page followed by chapters in order.
// Only body content of every chapter is kept, each chapter starts on a new
// page. Chapters without content still produce an empty block.
func Assemble(title, author string, chapters []string) (*Document, error) {
	var body bytes.Buffer

	body.WriteString(`<div class="title-page"><h1>`)
	body.WriteString(html.EscapeString(title))
	body.WriteString(`</h1>`)
	if author != "" {
		body.WriteString(`<p class="author">`)
		body.WriteString(html.EscapeString(author))
		body.WriteString(`</p>`)
	}
	body.WriteString("</div>\n")

	for i, ch := range chapters {
		body.WriteString(`<div class="chapter">`)
		if err := writeBodyContent(&body, ch); err != nil {
			return nil, fmt.Errorf("unable to assemble chapter %d: %w", i+1, err)
		}
		body.WriteString("</div>\n")
	}

	return &Document{Title: title, Body: body.String(), Stylesheet: Stylesheet}, nil
}

// writeBodyContent renders children of chapter's body element.
func writeBodyContent(buf *bytes.Buffer, markup string) error {
	if strings.TrimSpace(markup) == "" {
		return nil
	}
	doc, err := xhtml.Parse(strings.NewReader(markup))
	if err != nil {
		return err
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return nil
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := xhtml.Render(buf, c); err != nil {
			return err
		}
	}
	return nil
}

func findElement(n *xhtml.Node, a atom.Atom) *xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

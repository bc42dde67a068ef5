package content

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Resolve rewrites image references in chapter markup to data URIs from
// index, removes scripts and inline event handlers. base is the chapter path
// inside the book, relative references are resolved against it. References
// which cannot be resolved are left as is. Markup is parsed leniently, broken
// input never produces an error.
func Resolve(markup []byte, idx *Index, base string, log *zap.Logger) (string, error) {
	doc, err := html.Parse(decodeMarkup(expandSelfClosingTags(markup)))
	if err != nil {
		// x/net/html reports only reader failures here
		return "", fmt.Errorf("unable to parse chapter %s: %w", base, err)
	}

	r := resolver{idx: idx, base: base, log: log}
	r.walk(doc)
	if r.missed > 0 {
		log.Debug("Unresolved image references", zap.String("chapter", base), zap.Int("count", r.missed))
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("unable to render chapter %s: %w", base, err)
	}
	return buf.String(), nil
}

var selfClosingTag = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:._-]*)(\s[^<>]*?)?/>`)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// expandSelfClosingTags turns XHTML self-closing non-void elements into
// explicit pairs. HTML parser treats <a id="p1"/> as a start tag, so the
// anchor (or a div, or a raw text element) would otherwise swallow the rest
// of the chapter.
func expandSelfClosingTags(markup []byte) []byte {
	if !bytes.Contains(markup, []byte("/>")) {
		return markup
	}
	return selfClosingTag.ReplaceAllFunc(markup, func(tag []byte) []byte {
		m := selfClosingTag.FindSubmatch(tag)
		name := string(m[1])
		if voidElements[strings.ToLower(name)] {
			return tag
		}
		out := make([]byte, 0, len(tag)+len(name)+2)
		out = append(out, '<')
		out = append(out, m[1]...)
		out = append(out, m[2]...)
		out = append(out, "></"...)
		out = append(out, m[1]...)
		return append(out, '>')
	})
}

var xmlEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodeMarkup returns UTF-8 reader over markup. Valid UTF-8 is taken as is,
// otherwise XML declaration and HTML meta are consulted.
func decodeMarkup(markup []byte) io.Reader {
	r := bytes.NewReader(markup)
	if utf8.Valid(markup) {
		return r
	}
	if m := xmlEncoding.FindSubmatch(markup); m != nil {
		if enc, _ := charset.Lookup(string(m[1])); enc != nil {
			return enc.NewDecoder().Reader(r)
		}
	}
	enc, _, _ := charset.DetermineEncoding(markup, "text/html")
	return enc.NewDecoder().Reader(r)
}

type resolver struct {
	idx    *Index
	base   string
	log    *zap.Logger
	missed int
}

func (r *resolver) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Script {
			n.RemoveChild(c)
			c = next
			continue
		}
		if c.Type == html.ElementNode {
			stripEventAttributes(c)
			switch {
			case c.Namespace == "" && c.DataAtom == atom.Img:
				r.rewrite(c, "src")
			case c.Namespace == "svg" && c.Data == "image":
				r.rewrite(c, "href")
			}
		}
		r.walk(c)
		c = next
	}
}

// rewrite replaces attribute with the given key (in any namespace, so both
// href and xlink:href are covered).
func (r *resolver) rewrite(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key != key || a.Val == "" || strings.HasPrefix(a.Val, "data:") {
			continue
		}
		if e := r.find(a.Val); e != nil {
			n.Attr[i].Val = e.URI
		} else {
			r.missed++
			r.log.Debug("Image reference not found", zap.String("chapter", r.base), zap.String("ref", a.Val))
		}
	}
}

// find tries reference variants in order: as written, decoded, basenames of
// both and finally both resolved against chapter location.
func (r *resolver) find(ref string) *Entry {
	decoded := unescape(ref)
	variants := []string{ref, decoded, path.Base(ref), path.Base(decoded)}
	if r.base != "" {
		dir := path.Dir(r.base)
		variants = append(variants, path.Join(dir, ref), path.Join(dir, decoded))
	}
	for _, v := range variants {
		v = strings.TrimLeft(v, "./")
		if v == "" {
			continue
		}
		if e, ok := r.idx.Lookup(v); ok {
			return e
		}
	}
	return nil
}

func stripEventAttributes(n *html.Node) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if len(a.Key) > 2 && strings.EqualFold(a.Key[:2], "on") {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

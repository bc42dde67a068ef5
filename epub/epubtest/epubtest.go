// Package epubtest writes small EPUB containers for tests.
package epubtest

import (
	"archive/zip"
	"fmt"
	"html"
	"net/url"
	"os"
	"path"
	"strings"
	"testing"
)

type Chapter struct {
	ID     string
	Href   string
	Markup string
}

type Image struct {
	ID        string
	Href      string
	MediaType string
	Data      []byte
}

// Book describes container to produce. Hrefs are written to the manifest as
// is and stored in the archive percent-decoded under OPFDir.
type Book struct {
	Title    string
	Author   string
	OPFDir   string
	Chapters []Chapter
	Images   []Image
	// skip META-INF/container.xml
	NoContainer bool
}

// XHTML wraps body markup into minimal XHTML chapter document.
func XHTML(title, body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + html.EscapeString(title) + `</title>
<style>body { color: red; }</style></head><body>` + body + `</body></html>`
}

// Write creates EPUB file at name.
func Write(t testing.TB, name string, b Book) {
	t.Helper()

	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("unable to create epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	add := func(name string, data []byte, method uint16) {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("unable to add %s: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("unable to write %s: %v", name, err)
		}
	}

	dir := b.OPFDir
	if dir == "" {
		dir = "OEBPS"
	}
	opfName := path.Join(dir, "content.opf")

	add("mimetype", []byte("application/epub+zip"), zip.Store)
	if !b.NoContainer {
		add("META-INF/container.xml", []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="`+opfName+`" media-type="application/oebps-package+xml"/></rootfiles>
</container>`), zip.Deflate)
	}

	var manifest, spine strings.Builder
	for i, c := range b.Chapters {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("ch%d", i+1)
		}
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, html.EscapeString(c.Href))
		fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)
		add(entry(dir, c.Href), []byte(c.Markup), zip.Deflate)
	}
	for i, img := range b.Images {
		id := img.ID
		if id == "" {
			id = fmt.Sprintf("img%d", i+1)
		}
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="%s"/>`+"\n", id, html.EscapeString(img.Href), img.MediaType)
		add(entry(dir, img.Href), img.Data, zip.Deflate)
	}

	var meta strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&meta, "    <dc:title>%s</dc:title>\n", html.EscapeString(b.Title))
	}
	if b.Author != "" {
		fmt.Fprintf(&meta, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(b.Author))
	}

	add(opfName, []byte(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`+meta.String()+`  </metadata>
  <manifest>
`+manifest.String()+`  </manifest>
  <spine>
`+spine.String()+`  </spine>
</package>`), zip.Deflate)

	if err := w.Close(); err != nil {
		t.Fatalf("unable to finalize epub: %v", err)
	}
}

func entry(dir, href string) string {
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	return path.Join(dir, href)
}

package epub

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"

	"e2p/archive"
)

const (
	containerPath    = "META-INF/container.xml"
	packageMediaType = "application/oebps-package+xml"
)

type manifestItem struct {
	id        string
	href      string
	mediaType string
	// name of the zip entry
	entry string
}

func (m *manifestItem) isImage() bool {
	return strings.HasPrefix(m.mediaType, "image/")
}

func (m *manifestItem) isDocument() bool {
	switch m.mediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	switch strings.ToLower(path.Ext(m.href)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

type packageDoc struct {
	title, author string
	manifest      []*manifestItem
	byID          map[string]*manifestItem
	spine         []string
}

func newDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    true,
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}

// findPackage returns name of the package document entry, consulting
// container.xml first and falling back to the first *.opf entry.
func findPackage(zr *archive.Reader) (string, error) {
	if name := lookupFold(zr, containerPath); name != "" {
		if opf := packageFromContainer(zr, name); opf != "" {
			return opf, nil
		}
	}

	var found string
	_ = zr.Walk("", func(name string, _ *archive.Reader) error {
		if found == "" && strings.EqualFold(path.Ext(name), ".opf") {
			found = name
		}
		return nil
	})
	if found == "" {
		return "", ErrNoPackage
	}
	return found, nil
}

func packageFromContainer(zr *archive.Reader, name string) string {
	data, err := zr.ReadFile(name)
	if err != nil {
		return ""
	}
	doc, err := newDocument(data)
	if err != nil {
		return ""
	}

	var fallback string
	for _, rf := range doc.FindElements("//rootfile") {
		full := strings.TrimSpace(rf.SelectAttrValue("full-path", ""))
		if full == "" {
			continue
		}
		full = lookupFold(zr, full)
		if full == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.SelectAttrValue("media-type", "")), packageMediaType) {
			return full
		}
		if fallback == "" {
			fallback = full
		}
	}
	return fallback
}

// lookupFold finds entry name ignoring case, exact match preferred.
func lookupFold(zr *archive.Reader, name string) string {
	if zr.Has(name) {
		return name
	}
	for _, n := range zr.Names() {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	return ""
}

func readPackage(zr *archive.Reader, opfPath string) (*packageDoc, error) {
	data, err := zr.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPackage, err)
	}
	doc, err := newDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %w", ErrNoPackage, opfPath, err)
	}
	root := doc.Root()

	pkg := &packageDoc{byID: make(map[string]*manifestItem)}

	if md := root.FindElement("./metadata"); md != nil {
		pkg.title = firstText(md.FindElements(".//title"))
		pkg.author = firstText(md.FindElements(".//creator"))
	}

	mf := root.FindElement("./manifest")
	if mf == nil {
		return nil, ErrNoManifest
	}
	base := path.Dir(opfPath)
	for _, el := range mf.SelectElements("item") {
		href := strings.TrimSpace(el.SelectAttrValue("href", ""))
		if href == "" {
			continue
		}
		item := &manifestItem{
			id:        el.SelectAttrValue("id", ""),
			href:      href,
			mediaType: strings.ToLower(strings.TrimSpace(el.SelectAttrValue("media-type", ""))),
		}
		item.entry = entryFor(zr, base, href)
		pkg.manifest = append(pkg.manifest, item)
		if item.id != "" {
			pkg.byID[item.id] = item
		}
	}
	if len(pkg.manifest) == 0 {
		return nil, ErrNoManifest
	}

	if sp := root.FindElement("./spine"); sp != nil {
		for _, ref := range sp.SelectElements("itemref") {
			if idref := ref.SelectAttrValue("idref", ""); idref != "" {
				pkg.spine = append(pkg.spine, idref)
			}
		}
	}
	return pkg, nil
}

// entryFor maps manifest href to zip entry name. Hrefs are URLs, so decoded
// form is tried first.
func entryFor(zr *archive.Reader, base, href string) string {
	href, _, _ = strings.Cut(href, "#")
	candidates := make([]string, 0, 2)
	if decoded, err := url.PathUnescape(href); err == nil {
		candidates = append(candidates, decoded)
	}
	candidates = append(candidates, href)

	for _, c := range candidates {
		name := path.Join(base, c)
		if n := lookupFold(zr, name); n != "" {
			return n
		}
	}
	return path.Join(base, candidates[0])
}

func firstText(els []*etree.Element) string {
	for _, el := range els {
		if t := strings.TrimSpace(el.Text()); t != "" {
			return t
		}
	}
	return ""
}

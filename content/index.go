// Package content turns book model into single printable document: embeds
// images as data URIs, fixes references in chapter markup and assembles
// chapters under fixed print stylesheet.
package content

import (
	"encoding/base64"
	"maps"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maruel/natural"
	"go.uber.org/zap"

	"e2p/epub"
	"e2p/utils/debug"
	"e2p/utils/images"
)

// media type used when neither extension nor content tells anything
const fallbackMIME = "image/png"

// Entry is embeddable form of a single image resource.
type Entry struct {
	Name string
	MIME string
	Data []byte
	URI  string
}

// Index maps every key form of a resource name to its Entry.
type Index struct {
	keys    map[string]*Entry
	entries []*Entry
}

// BuildIndex prepares embeddable entries for all resources. Every resource
// is registered under its name, its basename and percent-decoded forms of
// both, all pointing to the same Entry. Later resources win on key
// collisions, except that a derived form never shadows another resource's
// full name. Bad images never fail the build - they are embedded as is.
func BuildIndex(resources []epub.Resource, log *zap.Logger) *Index {
	idx := &Index{keys: make(map[string]*Entry, len(resources)*4)}
	exact := make(map[string]bool, len(resources))

	for _, res := range resources {
		ext := path.Ext(res.Path)

		e := &Entry{Name: res.Path, MIME: images.MimeByExt(ext), Data: res.Data}
		if e.MIME == "" {
			e.MIME = sniffMIME(res.Data)
		}
		if images.Rasterizable(ext) {
			r, err := images.Transcode(res.Data, ext)
			if err != nil {
				log.Warn("Unable to optimize image, embedding original", zap.String("image", res.Path), zap.Error(err))
			} else if r.Changed {
				log.Debug("Image optimized", zap.String("image", res.Path), zap.Int("before", len(res.Data)), zap.Int("after", len(r.Data)))
			}
			e.Data, e.MIME = r.Data, r.MIME
		}
		e.URI = "data:" + e.MIME + ";base64," + base64.StdEncoding.EncodeToString(e.Data)

		idx.entries = append(idx.entries, e)
		for _, k := range keyForms(res.Path) {
			if k != res.Path && exact[k] {
				continue
			}
			idx.keys[k] = e
		}
		exact[res.Path] = true
	}
	return idx
}

func sniffMIME(data []byte) string {
	if kind, err := filetype.Match(data); err == nil && strings.HasPrefix(kind.MIME.Value, "image/") {
		return kind.MIME.Value
	}
	return fallbackMIME
}

func keyForms(name string) []string {
	base := path.Base(name)
	return []string{name, base, unescape(name), unescape(base)}
}

// unescape decodes percent-encoding, malformed input is returned unchanged.
func unescape(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// Lookup returns entry registered under key.
func (idx *Index) Lookup(key string) (*Entry, bool) {
	e, ok := idx.keys[key]
	return e, ok
}

// Len returns number of indexed resources.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Keys returns all registered keys in natural order.
func (idx *Index) Keys() []string {
	keys := slices.Collect(maps.Keys(idx.keys))
	sort.Sort(natural.StringSlice(keys))
	return keys
}

// String returns readable dump of the index for debug report.
func (idx *Index) String() string {
	tw := debug.NewTreeWriter()
	tw.Line(0, "Images index: %d resources, %d keys", idx.Len(), len(idx.keys))
	for _, k := range idx.Keys() {
		e := idx.keys[k]
		tw.Field(1, "key", k)
		tw.Field(2, "resource", e.Name)
		tw.Field(2, "mime", e.MIME)
		tw.Field(2, "size", len(e.Data))
	}
	return tw.String()
}

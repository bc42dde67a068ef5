// Package archive gives access to zip containers (EPUB files) on top of a
// zip reader which tolerates sloppy archives produced by e-book tools.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"unicode/utf8"

	fixzip "github.com/hidez8891/zip"
	"golang.org/x/text/encoding"
)

// zip general purpose flag: entry name is UTF-8 encoded
const flagUTF8 = 0x800

// Reader is an opened zip container with entries indexed by name.
type Reader struct {
	rc    *fixzip.ReadCloser
	names []string
	files map[string]*fixzip.File
}

// Open opens zip container. Entry names which are not marked as UTF-8 and are
// not valid UTF-8 are decoded with cp when it is not nil. Entries with
// absolute paths or path traversal components are skipped.
func Open(path string, cp encoding.Encoding) (*Reader, error) {
	rc, err := fixzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive (%s): %w", path, err)
	}

	r := &Reader{
		rc:    rc,
		names: make([]string, 0, len(rc.File)),
		files: make(map[string]*fixzip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := entryName(f, cp)
		if !isSafePath(name) {
			continue
		}
		if _, exists := r.files[name]; exists {
			// first entry wins, later duplicates are unreachable anyway
			continue
		}
		r.names = append(r.names, name)
		r.files[name] = f
	}
	return r, nil
}

func entryName(f *fixzip.File, cp encoding.Encoding) string {
	name := f.Name
	if cp == nil || f.Flags&flagUTF8 != 0 || utf8.ValidString(name) {
		return name
	}
	if n, err := cp.NewDecoder().String(name); err == nil {
		return n
	}
	return name
}

// Close releases underlying file.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Names returns names of all regular entries in archive order.
func (r *Reader) Names() []string {
	return r.names
}

// Has reports whether entry with given name is present.
func (r *Reader) Has(name string) bool {
	_, ok := r.files[name]
	return ok
}

// ReadFile returns content of the named entry. Absent entries produce error
// wrapping fs.ErrNotExist.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q: %w", name, fs.ErrNotExist)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open zip entry %q: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("unable to read zip entry %q: %w", name, err)
	}
	return data, nil
}

// IsNotExist reports whether error was caused by absent entry.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

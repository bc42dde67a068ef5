package archive

import (
	"path"
	"strings"
)

// WalkFunc is the type of the function called for each entry visited by Walk.
// If an error is returned, processing stops.
type WalkFunc func(name string, r *Reader) error

// Walk calls walkFn for every regular entry which name starts with prefix, in
// archive order.
func (r *Reader) Walk(prefix string, walkFn WalkFunc) error {
	for _, name := range r.names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(name, r); err != nil {
			return err
		}
	}
	return nil
}

// isSafePath returns false for absolute paths and those containing ".."
// components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for part := range strings.SplitSeq(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

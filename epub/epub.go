// Package epub reads EPUB containers into a flat book model: metadata,
// chapters in reading order and image resources.
package epub

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"e2p/archive"
)

var (
	ErrInvalidContainer = errors.New("not a valid epub container")
	ErrNoPackage        = errors.New("package document not found")
	ErrNoManifest       = errors.New("package document has no manifest")
)

// Resource is an image referenced from the package manifest. Path is the
// manifest href, relative to the package document.
type Resource struct {
	Path      string
	MediaType string
	Data      []byte
}

// Chapter is a markup document from the spine. Path is the manifest href,
// relative to the package document, and serves as base for relative
// references inside Markup.
type Chapter struct {
	ID     string
	Path   string
	Markup []byte
}

// Book is read-only view of an EPUB.
type Book struct {
	Title     string
	Author    string
	Chapters  []Chapter
	Resources []Resource
}

type options struct {
	cp encoding.Encoding
}

type Option func(*options)

// WithCodePage forces encoding for non UTF-8 entry names in the container.
func WithCodePage(cp encoding.Encoding) Option {
	return func(o *options) {
		o.cp = cp
	}
}

// Metadata is descriptive part of the package document.
type Metadata struct {
	Title  string
	Author string
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReadMetadata reads title and author without loading chapters and
// resources.
func ReadMetadata(path string, opts ...Option) (Metadata, error) {
	o := newOptions(opts)

	zr, err := archive.Open(path, o.cp)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	defer zr.Close()

	opfPath, err := findPackage(zr)
	if err != nil {
		return Metadata{}, err
	}
	pkg, err := readPackage(zr, opfPath)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Title: pkg.title, Author: pkg.author}, nil
}

// Open reads EPUB file at path. Problems with individual chapters or
// resources are logged and skipped, problems with container or package
// document are returned as errors wrapping one of package sentinels.
func Open(path string, log *zap.Logger, opts ...Option) (*Book, error) {
	o := newOptions(opts)

	zr, err := archive.Open(path, o.cp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	defer zr.Close()

	opfPath, err := findPackage(zr)
	if err != nil {
		return nil, err
	}
	log.Debug("Package document located", zap.String("file", path), zap.String("opf", opfPath))

	pkg, err := readPackage(zr, opfPath)
	if err != nil {
		return nil, err
	}

	book := &Book{Title: pkg.title, Author: pkg.author}

	for _, item := range pkg.manifest {
		if !item.isImage() {
			continue
		}
		data, err := zr.ReadFile(item.entry)
		if err != nil {
			log.Warn("Skipping image resource", zap.String("href", item.href), zap.Error(err))
			continue
		}
		book.Resources = append(book.Resources, Resource{Path: item.href, MediaType: item.mediaType, Data: data})
	}

	for _, idref := range pkg.spine {
		item, ok := pkg.byID[idref]
		if !ok {
			log.Warn("Spine references unknown manifest item", zap.String("idref", idref))
			continue
		}
		if !item.isDocument() {
			log.Debug("Skipping non document spine item", zap.String("idref", idref), zap.String("media-type", item.mediaType))
			continue
		}
		data, err := zr.ReadFile(item.entry)
		if err != nil {
			log.Warn("Skipping chapter", zap.String("href", item.href), zap.Error(err))
			continue
		}
		book.Chapters = append(book.Chapters, Chapter{ID: item.id, Path: item.href, Markup: data})
	}

	log.Debug("Book loaded",
		zap.String("title", book.Title), zap.Int("chapters", len(book.Chapters)), zap.Int("images", len(book.Resources)))
	return book, nil
}

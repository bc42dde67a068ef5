package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"

	// decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	// MaxWidth is the widest image we embed, wider ones are scaled down.
	MaxWidth = 1200
	// Quality used when re-encoding rasterizable images.
	Quality = 85
)

// DPI stored into JFIF header of re-encoded images, matches CSS pixel.
const cssDPI = 96

var extToMIME = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
}

// MimeByExt returns media type for known image extension (with or without
// leading dot, any case) and empty string otherwise.
func MimeByExt(ext string) string {
	return extToMIME[normalizeExt(ext)]
}

// Rasterizable reports whether images with this extension are re-encoded by
// Transcode.
func Rasterizable(ext string) bool {
	switch normalizeExt(ext) {
	case "jpg", "jpeg", "png", "webp":
		return true
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Result of transcoding. When Changed is false Data holds original bytes.
type Result struct {
	Data    []byte
	MIME    string
	Changed bool
}

var ErrEmptyImage = errors.New("image has no pixels")

// Transcode normalizes rasterizable image for print: limits its width to
// MaxWidth keeping aspect ratio, flattens transparency onto white and
// re-encodes it as JPEG. Other images are returned as is. On failure Result
// still carries original data and media type guessed from extension, so
// caller may decide to use it.
func Transcode(data []byte, ext string) (Result, error) {
	orig := Result{Data: data, MIME: MimeByExt(ext)}
	if !Rasterizable(ext) {
		return orig, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return orig, fmt.Errorf("unable to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return orig, ErrEmptyImage
	}

	if b.Dx() > MaxWidth {
		h := max(1, int(float64(b.Dy())*float64(MaxWidth)/float64(b.Dx())))
		img = imaging.Resize(img, MaxWidth, h, imaging.Lanczos)
	}

	img = flatten(img)

	out, err := EncodeJPEG(img, Quality, Density{Unit: DpiPxPerInch, X: cssDPI, Y: cssDPI})
	if err != nil {
		return orig, fmt.Errorf("unable to encode image: %w", err)
	}
	return Result{Data: out, MIME: "image/jpeg", Changed: true}, nil
}

// flatten draws image over opaque white background when it has transparency
// or palette.
func flatten(img image.Image) image.Image {
	_, paletted := img.(*image.Paletted)
	opaque := true
	if o, ok := img.(interface{ Opaque() bool }); ok {
		opaque = o.Opaque()
	}
	if opaque && !paletted {
		return img
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

package images

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
)

type DpiType uint8

const (
	DpiNoUnits DpiType = iota
	DpiPxPerInch
	DpiPxPerSm
)

// Density is resolution recorded in JFIF header.
type Density struct {
	Unit DpiType
	X, Y uint16
}

var (
	errTooSmall = errors.New("jpeg too small")
	errNotJPEG  = errors.New("not a jpeg")
)

// EnsureJFIFAPP0 inserts JFIF APP0 marker segment right after SOI if it is
// missing. Without it some PDF engines guess resolution and scale images
// unexpectedly.
func EnsureJFIFAPP0(data []byte, d Density) ([]byte, bool, error) {
	if len(data) < 4 {
		return nil, false, errTooSmall
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return nil, false, errNotJPEG
	}
	if data[2] == 0xFF && data[3] == 0xE0 {
		return data, false, nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(data)+18))
	buf.Write(data[:2])
	buf.Write([]byte{0xFF, 0xE0})
	_ = binary.Write(buf, binary.BigEndian, uint16(16))
	buf.Write([]byte{'J', 'F', 'I', 'F', 0x00, 0x01, 0x02})
	buf.WriteByte(byte(d.Unit))
	_ = binary.Write(buf, binary.BigEndian, d.X)
	_ = binary.Write(buf, binary.BigEndian, d.Y)
	// no thumbnail
	buf.Write([]byte{0x00, 0x00})
	buf.Write(data[2:])
	return buf.Bytes(), true, nil
}

// EncodeJPEG encodes image with requested quality and JFIF density.
func EncodeJPEG(img image.Image, quality int, d Density) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out, _, err := EnsureJFIFAPP0(buf.Bytes(), d)
	if err != nil {
		return nil, err
	}
	return out, nil
}

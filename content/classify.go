// Package content classifies fetched bytes and derives their
// content-addressed storage keys.
package content

import (
	"bytes"
	"fmt"
)

const (
	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
)

var (
	pngSig  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSig = []byte{0xFF, 0xD8, 0xFF}

	riffSig = []byte("RIFF")
	webpTag = []byte("WEBP")
)

// UnsupportedFormatError reports bytes that are neither PNG nor JPEG.
// WEBP in particular is rejected even when the server declares it, since
// downstream consumers require universally renderable raster formats.
type UnsupportedFormatError struct {
	Declared string
	Sniffed  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported image format (declared %q, sniffed %q)", e.Declared, e.Sniffed)
}

// Classify reconciles a declared Content-Type with the body's magic bytes.
// Magic bytes win: a PNG served as text/plain classifies as image/png,
// while a WEBP served as image/png is rejected.
func Classify(data []byte, declared string) (string, error) {
	if sniffed := sniff(data); sniffed != "" {
		return sniffed, nil
	}
	// Even a declared PNG/JPEG is refused when the signature disagrees;
	// the bytes are the authority.
	return "", &UnsupportedFormatError{Declared: declared, Sniffed: sniffDescribe(data)}
}

// ExtensionFor returns the storage key extension for an allowed type.
func ExtensionFor(contentType string) string {
	switch contentType {
	case TypePNG:
		return "png"
	case TypeJPEG:
		return "jpg"
	default:
		return ""
	}
}

func sniff(data []byte) string {
	if bytes.HasPrefix(data, pngSig) {
		return TypePNG
	}
	if bytes.HasPrefix(data, jpegSig) {
		return TypeJPEG
	}
	return ""
}

func sniffDescribe(data []byte) string {
	if len(data) >= 12 && bytes.HasPrefix(data, riffSig) && bytes.Equal(data[8:12], webpTag) {
		return "image/webp"
	}
	if looksLikeHTML(data) {
		return "text/html"
	}
	return "unknown"
}

func looksLikeHTML(data []byte) bool {
	head := bytes.TrimLeft(data, " \t\r\n")
	if len(head) > 64 {
		head = head[:64]
	}
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}

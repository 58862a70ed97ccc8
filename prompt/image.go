package prompt

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// magic byte prefixes for the image formats the original get_image_format
// helper recognized, sniffed the same way here: inspect the raw bytes
// before the format is ever trusted from a client-supplied string.
var magicNumbers = []struct {
	format string
	magic  []byte
}{
	{"png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"gif", []byte{0x47, 0x49, 0x46}},
	{"webp", []byte{0x52, 0x49, 0x46, 0x46}},
	{"bmp", []byte{0x42, 0x4D}},
}

// SniffImageFormat decodes base64Data and inspects its magic bytes,
// returning the format string (e.g. "png") used to build the
// `data:image/<fmt>;base64,...` sentinel.
func SniffImageFormat(base64Data string) (string, error) {
	base64Data = strings.TrimPrefix(base64Data, "data:")
	if idx := strings.Index(base64Data, ";base64,"); idx >= 0 {
		base64Data = base64Data[idx+len(";base64,"):]
	}

	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", ErrBadImageFormat
	}

	for _, m := range magicNumbers {
		if bytes.HasPrefix(raw, m.magic) {
			return m.format, nil
		}
	}

	return "", ErrBadImageFormat
}

// isHTTPURL reports whether s looks like a fetchable image URL rather than
// an inline base64/data URL payload.
func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

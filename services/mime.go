package services

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

// Checked in order; the first match wins.
var imageSignatures = []struct {
	magic []byte
	mime  string
}{
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte{0x47, 0x49, 0x46}, "image/gif"},
	{[]byte{0x89, 0x50, 0x4E, 0x47}, "image/png"},
}

// SniffMIME infers an image type from leading bytes, defaulting to image/png.
func SniffMIME(data []byte) string {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.mime
		}
	}
	return domain.DefaultMIME
}

// ResolveMIME prefers an image/* type reported by the transport and falls back to
// sniffing. A reported type that is not an image yields a non-empty warning.
func ResolveMIME(reported string, data []byte) (string, string) {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return SniffMIME(data), ""
	}
	mediaType, _, err := mime.ParseMediaType(reported)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(reported, ";", 2)[0]))
	}
	if strings.HasPrefix(mediaType, "image/") {
		return mediaType, ""
	}
	warning := fmt.Sprintf("Warning: server returned content-type %q. Proceeding.", reported)
	return SniffMIME(data), warning
}

// Package upload decodes base64 file payloads and checks them against an
// asset class: size cap and allowed MIME types, with the declared type
// confirmed by the content's signature.
package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMalformed      = errors.New("malformed payload")
	ErrTooLarge       = errors.New("file too large")
	ErrUnsupported    = errors.New("unsupported file type")
	ErrSignatureClash = errors.New("content does not match declared type")
)

// Class is a family of uploads sharing a size cap and allowed types.
type Class struct {
	Name     string
	MaxBytes int
	// Types maps an accepted MIME type to the file extension used for storage.
	Types map[string]string
}

const (
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	Photo = Class{
		Name:     "photo",
		MaxBytes: 2 << 20,
		Types: map[string]string{
			"image/jpeg": ".jpg",
			"image/png":  ".png",
			"image/webp": ".webp",
		},
	}
	Document = Class{
		Name:     "document",
		MaxBytes: 5 << 20,
		Types: map[string]string{
			"application/pdf": ".pdf",
			MimeDOC:           ".doc",
			MimeDOCX:          ".docx",
		},
	}
)

// File is a validated upload.
type File struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Decode validates a base64 payload (optionally a data: URL) against the
// class. Nothing is returned unless every check passes.
func Decode(class Class, payload, declared string) (File, error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	ext, ok := class.Types[declared]
	if !ok {
		return File{}, ErrUnsupported
	}

	payload = stripDataURL(strings.TrimSpace(payload))
	if payload == "" {
		return File{}, ErrMalformed
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > class.MaxBytes+2 {
		return File{}, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		return File{}, ErrMalformed
	}
	if len(data) > class.MaxBytes {
		return File{}, ErrTooLarge
	}

	if !matches(mimetype.Detect(data), declared) {
		return File{}, ErrSignatureClash
	}
	return File{Data: data, ContentType: declared, Extension: ext}, nil
}

// matches walks up the detected type's ancestry. Legacy .doc files are
// detected as the generic OLE container, so that parent is accepted for
// application/msword.
func matches(detected *mimetype.MIME, declared string) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
		if declared == MimeDOC && m.Is("application/x-ole-storage") {
			return true
		}
	}
	return false
}

func stripDataURL(payload string) string {
	if !strings.HasPrefix(payload, "data:") {
		return payload
	}
	if _, rest, ok := strings.Cut(payload, ";base64,"); ok {
		return rest
	}
	return ""
}

// MaxMegabytes is the class cap in whole megabytes, for messages.
func (c Class) MaxMegabytes() int {
	return c.MaxBytes >> 20
}

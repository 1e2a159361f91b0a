package transcribe

import (
	"mime"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// ResolveContentType returns the content type to declare to the speech
// service. Generic or missing declarations are replaced by the type sniffed
// from the payload when detection finds something more specific.
func ResolveContentType(declared string, audio []byte) string {
	base := baseType(declared)
	if base != "" && base != octetStream {
		return declared
	}
	detected := mimetype.Detect(audio)
	if detected.Is(octetStream) {
		if declared == "" {
			return octetStream
		}
		return declared
	}
	return detected.String()
}

// Allowed reports whether the declared upload type is in the allow list.
// Parameters are ignored and the comparison is case-insensitive.
func Allowed(declared string, allowed []string) bool {
	base := baseType(declared)
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(baseType(a), base)
	})
}

func baseType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

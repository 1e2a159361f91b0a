// Package speech talks to the external speech-to-text services.
package speech

import (
	"context"
	"errors"
	"mime"
	"strings"
)

// ErrTranscodeMismatch means the service could not decode the audio as the
// declared content type. Callers may retry with a different declaration.
var ErrTranscodeMismatch = errors.New("audio does not match declared content type")

// Alternative is one candidate transcript for a result, best first.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognized segment of the audio.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	Final        bool          `json:"final"`
}

// Recognizer transcribes a complete audio payload.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, contentType string) ([]Result, error)
}

// mediaType returns the lower-cased base type and parameters of a content type.
// Unparseable values are returned as-is with no parameters.
func mediaType(contentType string) (string, map[string]string) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType)), nil
	}
	return mt, params
}

func isTranscodeMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "transcode")
}

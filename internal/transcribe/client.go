// Package transcribe turns an uploaded audio payload into transcript text,
// negotiating the content type with the speech service.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/speech"
)

// wavFallbacks are tried, in order, after a WAV-like declaration. Browsers
// often label MediaRecorder output as WAV regardless of the real container.
var wavFallbacks = []string{
	"audio/webm",
	"audio/webm;codecs=opus",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/mpeg",
}

// Client runs the content-type negotiation against a speech.Recognizer.
type Client struct {
	recognizer speech.Recognizer
	log        zerolog.Logger
}

func NewClient(r speech.Recognizer, log zerolog.Logger) *Client {
	return &Client{recognizer: r, log: logging.Component(log, "transcribe")}
}

// Candidates returns the content types tried for a declaration, in order.
func Candidates(declared string) []string {
	out := []string{declared}
	if strings.Contains(strings.ToLower(declared), "wav") {
		out = append(out, wavFallbacks...)
	}
	return out
}

// Transcribe returns the transcript of audio. It stops at the first
// candidate that yields a non-empty transcript. Transcode mismatches move on
// to the next candidate; any other error aborts. If every candidate ran
// without error but produced nothing, the result is "" and a nil error.
func (c *Client) Transcribe(ctx context.Context, audio []byte, declared string) (string, error) {
	var lastErr error

	for _, ct := range Candidates(declared) {
		log := c.log.With().Str("content_type", ct).Int("bytes", len(audio)).Logger()

		results, err := c.recognizer.Recognize(ctx, audio, ct)
		if err != nil {
			if !isTranscodeMismatch(err) {
				log.Error().Err(err).Msg("speech recognition failed")
				return "", fmt.Errorf("%w: %w", apperr.ErrTranscriptionFailed, err)
			}
			log.Warn().Err(err).Msg("content type rejected, trying next")
			lastErr = err
			continue
		}

		if text, ok := joinTranscripts(results); ok {
			log.Info().Int("chars", len(text)).Msg("transcription succeeded")
			return text, nil
		}
		log.Warn().Msg("speech service returned no results")
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrTranscriptionFailed, lastErr)
	}
	return "", nil
}

// joinTranscripts joins, for every result, its first alternative that has
// text. ok is false when no alternative of any result has text.
func joinTranscripts(results []speech.Result) (string, bool) {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		for _, alt := range r.Alternatives {
			if strings.TrimSpace(alt.Transcript) != "" {
				parts = append(parts, alt.Transcript)
				break
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), len(parts) > 0
}

func isTranscodeMismatch(err error) bool {
	return errors.Is(err, speech.ErrTranscodeMismatch) ||
		strings.Contains(strings.ToLower(err.Error()), "transcode")
}

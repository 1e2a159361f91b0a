package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	speechv1 "google.golang.org/api/speech/v1"

	"github.com/jun/voznota/internal/apperr"
)

const DefaultGoogleLanguage = "es-ES"

// opusSampleRate is the rate browsers record Opus at.
const opusSampleRate = 48000

// GoogleConfig configures the Google Cloud Speech-to-Text backend.
type GoogleConfig struct {
	APIKey   string
	Language string
	Timeout  time.Duration
	Endpoint string // overrides the API base path, e.g. for tests
}

// Google is a Recognizer backed by Cloud Speech-to-Text v1.
type Google struct {
	svc      *speechv1.Service
	language string
}

// NewGoogle builds the Cloud Speech client.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.Language == "" {
		cfg.Language = DefaultGoogleLanguage
	}

	httpClient := &http.Client{
		Transport: &transport.APIKey{Key: cfg.APIKey, Transport: http.DefaultTransport},
		Timeout:   cfg.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := speechv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech service: %w", err)
	}
	return &Google{svc: svc, language: cfg.Language}, nil
}

// Recognize runs a synchronous recognition of audio declared as contentType.
// Declarations Cloud Speech cannot decode are reported as ErrTranscodeMismatch.
func (g *Google) Recognize(ctx context.Context, audio []byte, contentType string) ([]Result, error) {
	rc, err := g.recognitionConfig(audio, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := g.svc.Speech.Recognize(&speechv1.RecognizeRequest{
		Config: rc,
		Audio:  &speechv1.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}).Context(ctx).Do()
	if err != nil {
		return nil, translateGoogleError(err)
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		res := Result{Final: true}
		for _, a := range r.Alternatives {
			res.Alternatives = append(res.Alternatives, Alternative{Transcript: a.Transcript, Confidence: a.Confidence})
		}
		results = append(results, res)
	}
	return results, nil
}

func (g *Google) recognitionConfig(audio []byte, contentType string) (*speechv1.RecognitionConfig, error) {
	rc := &speechv1.RecognitionConfig{
		LanguageCode:               g.language,
		EnableAutomaticPunctuation: true,
	}

	mt, params := mediaType(contentType)
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		rate, channels, err := probeWAV(audio)
		if err != nil {
			return nil, err
		}
		rc.Encoding = "LINEAR16"
		rc.SampleRateHertz = rate
		rc.AudioChannelCount = channels
	case "audio/webm":
		rc.Encoding = "WEBM_OPUS"
		rc.SampleRateHertz = opusSampleRate
	case "audio/ogg":
		if codec := params["codecs"]; codec != "" && codec != "opus" {
			return nil, fmt.Errorf("%w: unsupported ogg codec %q", ErrTranscodeMismatch, codec)
		}
		rc.Encoding = "OGG_OPUS"
		rc.SampleRateHertz = opusSampleRate
	case "audio/mpeg", "audio/mp3":
		rc.Encoding = "MP3"
	case "audio/flac", "audio/x-flac":
		rc.Encoding = "FLAC"
	default:
		return nil, fmt.Errorf("%w: cannot transcode %s", ErrTranscodeMismatch, contentType)
	}
	return rc, nil
}

// probeWAV reads the sample rate and channel count from a PCM WAV header.
func probeWAV(audio []byte) (int64, int64, error) {
	d := wav.NewDecoder(bytes.NewReader(audio))
	if !d.IsValidFile() {
		return 0, 0, fmt.Errorf("%w: not a valid wav file", ErrTranscodeMismatch)
	}
	if d.WavAudioFormat != 1 {
		return 0, 0, fmt.Errorf("%w: wav format %d is not PCM", ErrTranscodeMismatch, d.WavAudioFormat)
	}
	return int64(d.SampleRate), int64(d.NumChans), nil
}

func translateGoogleError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperr.Upstream("google-speech", err)
	}
	msg := strings.ToLower(gerr.Message)
	switch {
	case gerr.Code == http.StatusBadRequest &&
		(strings.Contains(msg, "encoding") || strings.Contains(msg, "sample rate") || isTranscodeMessage(msg)):
		return fmt.Errorf("%w: %s", ErrTranscodeMismatch, gerr.Message)
	case gerr.Code >= 500 || gerr.Code == http.StatusTooManyRequests:
		return apperr.Upstream("google-speech", err)
	default:
		return fmt.Errorf("google speech: %w", err)
	}
}

package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/model"
	"github.com/jun/voznota/internal/transcribe"
)

const audioField = "audio"

// NoteStore is the persistence used by the note and transcription handlers.
type NoteStore interface {
	Save(ctx context.Context, ownerID, title, text, audioFormat string, audioSize int64) (*model.Note, error)
	Get(ctx context.Context, id string) (*model.Note, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Note, error)
	Delete(ctx context.Context, id, rev string) error
}

// TranscribeHandler accepts audio uploads and stores their transcripts.
type TranscribeHandler struct {
	gate           *auth.Gate
	client         *transcribe.Client
	notes          NoteStore
	maxSize        int64
	allowedFormats []string
	log            zerolog.Logger
}

// NewTranscribeHandler creates a new TranscribeHandler.
func NewTranscribeHandler(gate *auth.Gate, client *transcribe.Client, notes NoteStore, maxSize int64, allowedFormats []string, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		gate:           gate,
		client:         client,
		notes:          notes,
		maxSize:        maxSize,
		allowedFormats: allowedFormats,
		log:            logging.Component(log, "transcribe-handler"),
	}
}

// TranscriptionResponse is returned by a successful upload.
type TranscriptionResponse struct {
	Title      string    `json:"titulo"`
	Text       string    `json:"texto"`
	DocumentID string    `json:"id_documento"`
	Date       time.Time `json:"fecha"`
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// Transcribe handles a multipart upload with the audio in the "audio" field.
func (h *TranscribeHandler) Transcribe(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	u, err := h.gate.Authenticate(ctx, Header(req, "Authorization"))
	if err != nil {
		return errorResponse(h.log, err), nil
	}
	log := h.log.With().Str(logging.FieldUserID, u.ID).Logger()

	up, err := h.readUpload(req)
	if err != nil {
		return errorResponse(log, err), nil
	}
	log.Info().Str("filename", up.filename).Str("content_type", up.contentType).Int("bytes", len(up.data)).Msg("audio received")

	ct := transcribe.ResolveContentType(up.contentType, up.data)
	text, err := h.client.Transcribe(ctx, up.data, ct)
	if err != nil {
		return errorResponse(log, err), nil
	}
	if text == "" {
		return errorResponse(log, invalid("No se pudo transcribir el audio. El audio podría estar vacío o ser inaudible.")), nil
	}

	title := transcribe.DeriveTitle(text, transcribe.DefaultTitleWords)
	note, err := h.notes.Save(ctx, u.ID, title, text, up.contentType, int64(len(up.data)))
	if err != nil {
		return errorResponse(log, err), nil
	}

	log.Info().Str("note_id", note.ID).Msg("transcription stored")
	return jsonResponse(http.StatusOK, TranscriptionResponse{
		Title:      note.Title,
		Text:       note.Text,
		DocumentID: note.ID,
		Date:       note.CreatedAt,
	}), nil
}

// readUpload extracts and validates the audio part of a multipart body.
func (h *TranscribeHandler) readUpload(req events.APIGatewayProxyRequest) (*upload, error) {
	mt, params, err := mime.ParseMediaType(Header(req, "Content-Type"))
	if err != nil || !strings.HasPrefix(mt, "multipart/") || params["boundary"] == "" {
		return nil, invalid("Expected a multipart/form-data upload")
	}

	body, err := requestBody(req)
	if err != nil {
		return nil, err
	}

	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, invalid("Missing audio file")
		}
		if err != nil {
			return nil, invalid("Malformed multipart body")
		}
		if part.FormName() != audioField {
			part.Close()
			continue
		}

		up := &upload{filename: part.FileName(), contentType: part.Header.Get("Content-Type")}
		if !transcribe.Allowed(up.contentType, h.allowedFormats) {
			part.Close()
			return nil, invalid(fmt.Sprintf("Formato de audio no válido. Formatos permitidos: %s", strings.Join(h.allowedFormats, ", ")))
		}

		up.data, err = io.ReadAll(io.LimitReader(part, h.maxSize+1))
		part.Close()
		if err != nil {
			return nil, invalid("Malformed multipart body")
		}
		if int64(len(up.data)) > h.maxSize {
			return nil, invalid(fmt.Sprintf("El archivo es demasiado grande. Tamaño máximo: %.0f MB", float64(h.maxSize)/(1024*1024)))
		}
		if len(up.data) == 0 {
			return nil, invalid("El archivo de audio está vacío")
		}
		return up, nil
	}
}

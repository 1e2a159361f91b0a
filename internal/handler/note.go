package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/model"
	"github.com/jun/voznota/internal/render"
)

const maxListLimit = 1000

// NoteHandler serves the caller's stored transcriptions.
type NoteHandler struct {
	gate      *auth.Gate
	notes     NoteStore
	renderer  *render.Renderer
	listLimit int
	log       zerolog.Logger
}

// NewNoteHandler creates a new NoteHandler. listLimit is the page size when
// the request does not give one.
func NewNoteHandler(gate *auth.Gate, notes NoteStore, renderer *render.Renderer, listLimit int, log zerolog.Logger) *NoteHandler {
	return &NoteHandler{
		gate:      gate,
		notes:     notes,
		renderer:  renderer,
		listLimit: listLimit,
		log:       logging.Component(log, "note-handler"),
	}
}

// ListNotes returns up to ?limit= notes owned by the caller.
func (h *NoteHandler) ListNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	u, err := h.gate.Authenticate(ctx, Header(req, "Authorization"))
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	limit := h.listLimit
	if raw := req.QueryStringParameters["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return errorResponse(h.log, invalid("limit must be between 1 and 1000")), nil
		}
		limit = n
	}

	notes, err := h.notes.ListByOwner(ctx, u.ID, limit)
	if err != nil {
		return errorResponse(h.log, err), nil
	}
	if notes == nil {
		notes = []model.Note{}
	}
	return jsonResponse(http.StatusOK, notes), nil
}

// GetNote returns one note. ?format=markdown or ?format=html exports it
// instead of returning JSON.
func (h *NoteHandler) GetNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	note, err := h.ownedNote(ctx, req)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	format := req.QueryStringParameters["format"]
	switch format {
	case "", "json":
		resp := jsonResponse(http.StatusOK, note)
		resp.Headers["ETag"] = strconv.Quote(note.Rev)
		return resp, nil
	case render.FormatMarkdown:
		return textResponse(format, h.renderer.Markdown(*note)), nil
	case render.FormatHTML:
		out, err := h.renderer.HTML(*note)
		if err != nil {
			return errorResponse(h.log, err), nil
		}
		return textResponse(format, out), nil
	default:
		return errorResponse(h.log, invalid("format must be json, markdown or html")), nil
	}
}

type deleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// DeleteNote deletes a note owned by the caller. The revision comes from an
// If-Match header when present, otherwise from the freshly read note.
func (h *NoteHandler) DeleteNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	note, err := h.ownedNote(ctx, req)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	rev := note.Rev
	if ifMatch := revisionFromETag(Header(req, "If-Match")); ifMatch != "" {
		rev = ifMatch
	}

	if err := h.notes.Delete(ctx, note.ID, rev); err != nil {
		return errorResponse(h.log, err), nil
	}

	h.log.Info().Str(logging.FieldUserID, note.UserID).Str("note_id", note.ID).Msg("note deleted")
	return jsonResponse(http.StatusOK, deleteResponse{Message: "Nota eliminada exitosamente", ID: note.ID}), nil
}

// ownedNote authenticates the caller, loads the note named in the path and
// checks ownership. Authentication happens before the store is touched.
func (h *NoteHandler) ownedNote(ctx context.Context, req events.APIGatewayProxyRequest) (*model.Note, error) {
	id := req.PathParameters["id"]

	var note *model.Note
	d, err := h.gate.Authorize(ctx, Header(req, "Authorization"), func(ctx context.Context) (string, error) {
		if id == "" {
			return "", invalid("Missing note id")
		}
		n, err := h.notes.Get(ctx, id)
		if err != nil {
			return "", err
		}
		note = n
		return n.UserID, nil
	})
	if err != nil {
		return nil, err
	}

	if d.Outcome == auth.Forbidden {
		h.log.Warn().Str(logging.FieldUserID, d.User.ID).Str("note_id", id).Msg("access to foreign note denied")
	}
	if err := d.AsError(); err != nil {
		return nil, err
	}
	return note, nil
}

// revisionFromETag strips the weak prefix and quotes from an entity tag.
func revisionFromETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func textResponse(format string, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": render.ContentType(format),
		},
	}
}

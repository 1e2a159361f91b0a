package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/model"
)

// SearchHandler handles search requests over the caller's transcripts.
type SearchHandler struct {
	gate  *auth.Gate
	notes NoteStore
	log   zerolog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(gate *auth.Gate, notes NoteStore, log zerolog.Logger) *SearchHandler {
	return &SearchHandler{gate: gate, notes: notes, log: logging.Component(log, "search-handler")}
}

// Search handles GET /notes/search?q=. Matching is a case-insensitive
// substring test on title and text; transcripts are encrypted at rest, so
// the filter runs after decryption.
func (h *SearchHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	u, err := h.gate.Authenticate(ctx, Header(req, "Authorization"))
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	query := strings.TrimSpace(req.QueryStringParameters["q"])
	if query == "" {
		return errorResponse(h.log, invalid("Query parameter 'q' is required")), nil
	}

	notes, err := h.notes.ListByOwner(ctx, u.ID, maxListLimit)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	return jsonResponse(http.StatusOK, matchNotes(notes, query)), nil
}

func matchNotes(notes []model.Note, query string) []model.Note {
	q := strings.ToLower(query)
	out := []model.Note{}
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Text), q) {
			out = append(out, n)
		}
	}
	return out
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/crypto"
	"github.com/jun/voznota/internal/handler"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/render"
	"github.com/jun/voznota/internal/speech"
	"github.com/jun/voznota/internal/store"
	"github.com/jun/voznota/internal/transcribe"
	"github.com/jun/voznota/internal/user"
)

const testJWTSecret = "test-secret"

var allowedFormats = []string{"audio/wav", "audio/mpeg", "audio/mp3", "audio/x-wav", "application/octet-stream", "audio/wave"}

// fakeRecognizer returns a fixed transcript, or err when set.
type fakeRecognizer struct {
	text  string
	err   error
	calls int
}

func (f *fakeRecognizer) Recognize(context.Context, []byte, string) ([]speech.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.text == "" {
		return nil, nil
	}
	return []speech.Result{{Alternatives: []speech.Alternative{{Transcript: f.text}}}}, nil
}

type fixture struct {
	users      *user.Service
	userTable  *store.UserTable
	notes      *store.NoteTable
	tokens     *auth.TokenService
	recognizer *fakeRecognizer

	auth       *handler.AuthHandler
	note       *handler.NoteHandler
	transcribe *handler.TranscribeHandler
	search     *handler.SearchHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Nop()

	userTable := store.NewUserTable(nil, "Users")
	users := user.NewService(userTable, bcrypt.MinCost, log)
	tokens, err := auth.NewTokenService(testJWTSecret, "HS256", time.Hour, users)
	require.NoError(t, err)
	gate := auth.NewGate(tokens)

	notes := store.NewNoteTable(nil, "Transcriptions", "user_id-index", crypto.NewMockEncryptor())
	rec := &fakeRecognizer{text: "Reunión con el equipo de desarrollo"}

	return &fixture{
		users:      users,
		userTable:  userTable,
		notes:      notes,
		tokens:     tokens,
		recognizer: rec,
		auth:       handler.NewAuthHandler(users, tokens, gate, log),
		note:       handler.NewNoteHandler(gate, notes, render.NewRenderer(), 100, log),
		transcribe: handler.NewTranscribeHandler(gate, transcribe.NewClient(rec, log), notes, 10*1024*1024, allowedFormats, log),
		search:     handler.NewSearchHandler(gate, notes, log),
	}
}

// register creates a user and returns its id and an Authorization header value.
func (f *fixture) register(t *testing.T, email string) (string, string) {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), email, "secreto123")
	require.NoError(t, err)
	tok, err := f.tokens.Issue(u.ID, u.Email)
	require.NoError(t, err)
	return u.ID, "Bearer " + tok
}

func makeRequest(method, path, body, authHeader string) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		PathParameters:        map[string]string{},
		QueryStringParameters: map[string]string{},
	}
	if authHeader != "" {
		req.Headers["Authorization"] = authHeader
	}
	return req
}

// multipartRequest builds an upload with one file part named field.
func multipartRequest(t *testing.T, field, contentType string, data []byte, authHeader string) events.APIGatewayProxyRequest {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="nota.wav"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := makeRequest("POST", "/api/transcribe", buf.String(), authHeader)
	req.Headers["Content-Type"] = w.FormDataContentType()
	return req
}

func decode[T any](t *testing.T, resp events.APIGatewayProxyResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &v), resp.Body)
	return v
}

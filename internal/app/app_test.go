package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/voznota/internal/config"
	"github.com/jun/voznota/internal/crypto"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/secret"
	"github.com/jun/voznota/internal/speech"
)

type mapResolver map[string]string

func (m mapResolver) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", name, secret.ErrNotSet)
}

type stubRecognizer struct{ text string }

func (s stubRecognizer) Recognize(context.Context, []byte, string) ([]speech.Result, error) {
	return []speech.Result{{Alternatives: []speech.Alternative{{Transcript: s.text}}, Final: true}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:                  "VozNota API",
		AppVersion:               "1.0.0",
		JWTSecretParam:           "/voznota/jwt-secret",
		APIGatewaySecretParam:    "/voznota/api-gateway-secret",
		JWTAlgorithm:             "HS256",
		TokenTTL:                 time.Minute,
		BcryptCost:               4,
		UsersTable:               "Users",
		TranscriptionsTable:      "Transcriptions",
		TranscriptionsOwnerIndex: "user_id-index",
		MaxFileSize:              1 << 20,
		AllowedAudioFormats:      []string{"audio/wav", "audio/mpeg"},
		NotesListLimit:           100,
		FrontendURL:              "http://localhost:3000",
	}
}

func newTestApp(t *testing.T, cfg *config.Config, secrets mapResolver) *App {
	t.Helper()
	a, err := assemble(context.Background(), cfg, logging.Nop(), deps{
		encryptor:  crypto.NewMockEncryptor(),
		resolver:   secrets,
		recognizer: stubRecognizer{text: "Comprar leche y pan mañana temprano"},
	})
	require.NoError(t, err)
	return a
}

func request(method, path, body, authHeader string) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if authHeader != "" {
		req.Headers["Authorization"] = authHeader
	}
	return req
}

func call(t *testing.T, a *App, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := a.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestAssemble_RequiresJWTSecretOutsideDevMode(t *testing.T) {
	_, err := assemble(context.Background(), testConfig(), logging.Nop(), deps{
		encryptor: crypto.NewMockEncryptor(),
		resolver:  mapResolver{},
	})
	require.ErrorIs(t, err, secret.ErrNotSet)

	cfg := testConfig()
	cfg.DevMode = true
	_, err = assemble(context.Background(), cfg, logging.Nop(), deps{
		encryptor: crypto.NewMockEncryptor(),
		resolver:  mapResolver{},
	})
	require.NoError(t, err)
}

func TestRouter_FullFlow(t *testing.T) {
	a := newTestApp(t, testConfig(), mapResolver{"/voznota/jwt-secret": "s3cret"})

	resp := call(t, a, request("POST", "/api/auth/register", `{"email":"ana@example.com","password":"secreto123"}`, ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])

	resp = call(t, a, request("POST", "/api/auth/login", `{"username":"ana@example.com","password":"secreto123"}`, ""))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &tok))
	bearer := "Bearer " + tok.AccessToken

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="audio"; filename="nota.mp3"`)
	h.Set("Content-Type", "audio/mpeg")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("ID3 fake mp3"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	upload := request("POST", "/api/transcribe", buf.String(), bearer)
	upload.Headers["Content-Type"] = w.FormDataContentType()
	resp = call(t, a, upload)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	var created struct {
		Title string `json:"titulo"`
		ID    string `json:"id_documento"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))
	assert.Equal(t, "Comprar leche y pan mañana...", created.Title)

	resp = call(t, a, request("GET", "/api/notes", "", bearer))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, created.ID)

	resp = call(t, a, request("GET", "/api/notes/"+created.ID, "", bearer))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "Comprar leche")

	search := request("GET", "/api/notes/search", "", bearer)
	search.QueryStringParameters = map[string]string{"q": "leche"}
	resp = call(t, a, search)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, created.ID)

	resp = call(t, a, request("DELETE", "/api/notes/"+created.ID, "", bearer))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	resp = call(t, a, request("GET", "/api/notes/"+created.ID, "", bearer))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Misc(t *testing.T) {
	a := newTestApp(t, testConfig(), mapResolver{"/voznota/jwt-secret": "s3cret"})

	resp := call(t, a, request("OPTIONS", "/api/notes", "", ""))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Headers["Access-Control-Allow-Headers"], "Authorization")

	resp = call(t, a, request("GET", "/health", "", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "healthy")

	resp = call(t, a, request("GET", "/api/", "", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, a, request("GET", "/api/nope", "", ""))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, a, request("PUT", "/api/notes/abc", "", ""))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, a, request("GET", "/api/notes", "", ""))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_OriginVerify(t *testing.T) {
	secrets := mapResolver{
		"/voznota/jwt-secret":         "s3cret",
		"/voznota/api-gateway-secret": "origin",
	}
	a := newTestApp(t, testConfig(), secrets)

	resp := call(t, a, request("GET", "/api/health", "", ""))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req := request("GET", "/api/health", "", "")
	req.Headers["x-origin-verify"] = "origin"
	resp = call(t, a, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// DEV_MODE skips the check.
	cfg := testConfig()
	cfg.DevMode = true
	a = newTestApp(t, cfg, secrets)
	resp = call(t, a, request("GET", "/api/health", "", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBootstrap_DevMode(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("AWS_ENDPOINT_URL", "")
	t.Setenv("JWT_SECRET", "bootstrap-secret")
	t.Setenv("API_GATEWAY_SECRET", "")
	t.Setenv("AWS_REGION", "us-east-1")

	a, cfg, _, err := Bootstrap(context.Background(), "", "voznota-test")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, cfg.DevMode)

	resp := call(t, a, request("GET", "/api/health", "", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	t.Setenv("SPEECH_PROVIDER", "azure")

	a, _, _, err := Bootstrap(context.Background(), "", "voznota-test")
	require.Error(t, err)
	assert.Nil(t, a)
}

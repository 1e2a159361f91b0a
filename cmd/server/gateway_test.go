package main

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayHandler_TranslatesRequest(t *testing.T) {
	var got events.APIGatewayProxyRequest
	h := newGatewayHandler(func(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = req
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusCreated,
			Body:       `{"ok":true}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}, 1024)

	r := httptest.NewRequest("POST", "/api/notes?limit=5", strings.NewReader("\x00\x01audio"))
	r.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	assert.Equal(t, "POST", got.HTTPMethod)
	assert.Equal(t, "/api/notes", got.Path)
	assert.Equal(t, "5", got.QueryStringParameters["limit"])
	assert.Equal(t, "Bearer t", got.Headers["Authorization"])
	require.True(t, got.IsBase64Encoded)
	body, err := base64.StdEncoding.DecodeString(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "\x00\x01audio", string(body))
}

func TestGatewayHandler_Error(t *testing.T) {
	h := newGatewayHandler(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("boom")
	}, 1024)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

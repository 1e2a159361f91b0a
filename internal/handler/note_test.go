package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/voznota/internal/model"
)

func TestNoteHandler_ListOnlyOwnNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, anaAuth := f.register(t, "ana@example.com")
	bob, _ := f.register(t, "bob@example.com")

	for i := 0; i < 3; i++ {
		_, err := f.notes.Save(ctx, ana, "t", "texto de ana", "audio/wav", 10)
		require.NoError(t, err)
	}
	_, err := f.notes.Save(ctx, bob, "t", "texto de bob", "audio/wav", 10)
	require.NoError(t, err)

	resp, err := f.note.ListNotes(ctx, makeRequest("GET", "/api/notes", "", anaAuth))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]model.Note](t, resp)
	assert.Len(t, notes, 3)
	for _, n := range notes {
		assert.Equal(t, ana, n.UserID)
		assert.Equal(t, "texto de ana", n.Text)
	}

	req := makeRequest("GET", "/api/notes", "", anaAuth)
	req.QueryStringParameters["limit"] = "2"
	resp, err = f.note.ListNotes(ctx, req)
	require.NoError(t, err)
	assert.Len(t, decode[[]model.Note](t, resp), 2)

	req.QueryStringParameters["limit"] = "zero"
	resp, err = f.note.ListNotes(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"limit must be between 1 and 1000"}`, resp.Body)
}

func TestNoteHandler_ListEmpty(t *testing.T) {
	f := newFixture(t)
	_, auth := f.register(t, "ana@example.com")

	resp, err := f.note.ListNotes(context.Background(), makeRequest("GET", "/api/notes", "", auth))
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Body)
}

func TestNoteHandler_GetOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, anaAuth := f.register(t, "ana@example.com")
	_, bobAuth := f.register(t, "bob@example.com")

	n, err := f.notes.Save(ctx, ana, "Hola", "Hola mundo", "audio/wav", 10)
	require.NoError(t, err)

	req := makeRequest("GET", "/api/notes/"+n.ID, "", anaAuth)
	req.PathParameters["id"] = n.ID
	resp, err := f.note.GetNote(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.Note](t, resp)
	assert.Equal(t, "Hola mundo", got.Text)
	assert.Equal(t, n.Rev, got.Rev)

	// Someone else's note is forbidden, not hidden.
	req.Headers["Authorization"] = bobAuth
	resp, err = f.note.GetNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req.Headers["Authorization"] = anaAuth
	req.PathParameters["id"] = "missing"
	resp, err = f.note.GetNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	delete(req.Headers, "Authorization")
	resp, err = f.note.GetNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNoteHandler_GetExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, auth := f.register(t, "ana@example.com")

	n, err := f.notes.Save(ctx, ana, "Reunión con el equipo de...", "Reunión con el equipo de desarrollo", "audio/wav", 10)
	require.NoError(t, err)

	req := makeRequest("GET", "/api/notes/"+n.ID, "", auth)
	req.PathParameters["id"] = n.ID

	req.QueryStringParameters["format"] = "markdown"
	resp, err := f.note.GetNote(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Body, "# Reunión con el equipo de..."))
	assert.Contains(t, resp.Headers["Content-Type"], "text/markdown")

	req.QueryStringParameters["format"] = "html"
	resp, err = f.note.GetNote(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "<h1")
	assert.Contains(t, resp.Body, "<p>Reunión con el equipo de desarrollo</p>")

	req.QueryStringParameters["format"] = "pdf"
	resp, err = f.note.GetNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNoteHandler_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, anaAuth := f.register(t, "ana@example.com")
	_, bobAuth := f.register(t, "bob@example.com")

	n, err := f.notes.Save(ctx, ana, "t", "texto", "audio/wav", 10)
	require.NoError(t, err)

	req := makeRequest("DELETE", "/api/notes/"+n.ID, "", bobAuth)
	req.PathParameters["id"] = n.ID
	resp, err := f.note.DeleteNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A stale If-Match revision conflicts and keeps the note.
	req.Headers["Authorization"] = anaAuth
	req.Headers["If-Match"] = "1-stale"
	resp, err = f.note.DeleteNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_, err = f.notes.Get(ctx, n.ID)
	require.NoError(t, err)

	delete(req.Headers, "If-Match")
	resp, err = f.note.DeleteNote(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Contains(t, resp.Body, n.ID)

	resp, err = f.note.DeleteNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNoteHandler_DeleteWithETag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, auth := f.register(t, "ana@example.com")

	n, err := f.notes.Save(ctx, ana, "t", "texto", "audio/wav", 10)
	require.NoError(t, err)

	get := makeRequest("GET", "/api/notes/"+n.ID, "", auth)
	get.PathParameters["id"] = n.ID
	resp, err := f.note.GetNote(ctx, get)
	require.NoError(t, err)
	etag := resp.Headers["ETag"]
	assert.Equal(t, `"`+n.Rev+`"`, etag)

	req := makeRequest("DELETE", "/api/notes/"+n.ID, "", auth)
	req.PathParameters["id"] = n.ID
	req.Headers["If-Match"] = "W/" + etag
	resp, err = f.note.DeleteNote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	_, err = f.notes.Get(ctx, n.ID)
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana, anaAuth := f.register(t, "ana@example.com")
	bob, _ := f.register(t, "bob@example.com")

	_, err := f.notes.Save(ctx, ana, "Compras", "Comprar leche y pan", "audio/wav", 10)
	require.NoError(t, err)
	_, err = f.notes.Save(ctx, ana, "Reunión", "Reunión con el equipo", "audio/wav", 10)
	require.NoError(t, err)
	_, err = f.notes.Save(ctx, bob, "Leche", "leche de bob", "audio/wav", 10)
	require.NoError(t, err)

	req := makeRequest("GET", "/api/notes/search", "", anaAuth)
	req.QueryStringParameters["q"] = "LECHE"
	resp, err := f.search.Search(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]model.Note](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, "Compras", found[0].Title)

	req.QueryStringParameters["q"] = "nada"
	resp, err = f.search.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Body)

	req.QueryStringParameters["q"] = " "
	resp, err = f.search.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

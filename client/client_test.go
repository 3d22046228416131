package client

import (
	"cardstudio/core"
	"cardstudio/i18n"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"Quota dépassé","error":"ignored"}`, "Quota dépassé"},
		{"error field", `{"error":"Création introuvable"}`, "Création introuvable"},
		{"empty object", `{}`, "Une erreur est survenue, veuillez réessayer."},
		{"not json", `<html>bad gateway</html>`, "Une erreur est survenue, veuillez réessayer."},
		{"empty body", ``, "Une erreur est survenue, veuillez réessayer."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).GetDesign(context.Background(), "d-1")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestAPIErrorMessage_Localized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := i18n.NewStore(nil, "en")
	ctx := i18n.WithStore(context.Background(), store)
	_, err := New(srv.URL).ListDesigns(ctx)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, i18n.MsgGenericFailure, apiErr.Message)
}

func TestClientSendsTokenAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/designs/d-1/items/i-1", r.URL.Path)

		var patch map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, 0.5, patch["opacity"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"i-1","type":"image","src":"a.png","opacity":0.5}`))
	}))
	defer srv.Close()

	item, err := New(srv.URL, WithToken("secret")).PatchItem(context.Background(), "d-1", "i-1", map[string]any{"opacity": 0.5})
	require.NoError(t, err)
	assert.Equal(t, core.KindImage, item.Kind)
	assert.Equal(t, 0.5, item.Opacity)
}

func TestRemoveSelected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/designs/d-1/selection/item", r.URL.Path)
		_, _ = w.Write([]byte(`{"removed":true,"items":2}`))
	}))
	defer srv.Close()

	removed, err := New(srv.URL + "/").RemoveSelected(context.Background(), "d-1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestDeleteDesign_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL).DeleteDesign(context.Background(), "d-1"))
}

package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubevault/tubevault/internal/models"
)

func TestTypeAAdapter_ValidateAndUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/Library/MediaFolders":
			assert.Equal(t, "tok", r.Header.Get("X-Emby-Token"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Items":[{"Id":"42","Name":"Movies"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/Items/42/Refresh":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	server := &models.MediaServer{Kind: models.MediaServerTypeA, URL: srv.URL, Token: "tok", LibraryIDs: []string{"42"}}
	adapter, err := New(srv.Client(), server)
	require.NoError(t, err)

	require.NoError(t, adapter.Validate(context.Background()))
	require.NoError(t, adapter.Update(context.Background()))
}

func TestTypeAAdapter_ValidateRejectsUnknownLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Items":[{"Id":"1","Name":"Movies"}]}`))
	}))
	defer srv.Close()

	server := &models.MediaServer{Kind: models.MediaServerTypeA, URL: srv.URL, Token: "tok", LibraryIDs: []string{"99"}}
	adapter, err := New(srv.Client(), server)
	require.NoError(t, err)

	err = adapter.Validate(context.Background())
	assert.Error(t, err)
}

func TestTypeBAdapter_ValidateAndUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("X-Plex-Token"))
		switch r.URL.Path {
		case "/library/sections":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<MediaContainer><Directory key="1" title="Movies"/></MediaContainer>`))
		case "/library/sections/1/refresh":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	server := &models.MediaServer{Kind: models.MediaServerTypeB, URL: srv.URL, Token: "tok", LibraryIDs: []string{"1"}}
	adapter, err := New(srv.Client(), server)
	require.NoError(t, err)

	require.NoError(t, adapter.Validate(context.Background()))
	require.NoError(t, adapter.Update(context.Background()))
}

func TestTypeBAdapter_UpdateFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	server := &models.MediaServer{Kind: models.MediaServerTypeB, URL: srv.URL, Token: "tok", LibraryIDs: []string{"1"}}
	adapter, err := New(srv.Client(), server)
	require.NoError(t, err)

	err = adapter.Update(context.Background())
	assert.Error(t, err)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(http.DefaultClient, &models.MediaServer{Kind: "BOGUS"})
	assert.Error(t, err)
}

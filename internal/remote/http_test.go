package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

func TestInsert(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "srv-1", "updated_at": "2026-08-26T10:00:00Z", "title": "Go engineer",
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	rec, err := b.Insert(context.Background(), models.EntityRequirement,
		map[string]any{"title": "Go engineer"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/requirements", gotPath)
	assert.Equal(t, "Go engineer", gotBody["title"])

	assert.Equal(t, "srv-1", rec.ID)
	assert.Equal(t, time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC), rec.UpdatedAt)
	assert.Equal(t, "Go engineer", rec.Fields["title"])
}

func TestUpdate(t *testing.T) {
	var gotMethod, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"id": "r1", "updated_at": "2026-08-26T10:00:00Z",
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	_, err := b.Update(context.Background(), models.EntityConsultant, "r1",
		map[string]any{"name": "someone"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/consultants/r1", gotPath)
}

func TestFetchByID_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	_, err := b.FetchByID(context.Background(), models.EntityRequirement, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	require.NoError(t, b.Delete(context.Background(), models.EntityDocument, "d1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/documents/d1", gotPath)
}

func TestServerErrorIncludesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, time.Second)
	_, err := b.FetchByID(context.Background(), models.EntityRequirement, "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestRecordFromFields(t *testing.T) {
	_, err := recordFromFields(map[string]any{"title": "no id"})
	assert.Error(t, err)

	rec, err := recordFromFields(map[string]any{"id": "r1"})
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.IsZero(), "updated_at is optional")

	_, err = recordFromFields(map[string]any{"id": "r1", "updated_at": "yesterday"})
	assert.Error(t, err)
}

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE requirements (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE TABLE cache_metadata (
  segment TEXT PRIMARY KEY,
  last_updated INTEGER NOT NULL,
  expires_at INTEGER NOT NULL,
  count INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func newTestStore(db *sql.DB, online bool) *SQLite {
	s := NewSQLite(db,
		OnlineFunc(func() bool { return online }),
		func(models.EntityType) time.Duration { return 10 * time.Minute },
		logging.NewNopLogger())
	return s
}

func sampleBatch() []models.Entity {
	return []models.Entity{
		{ID: "r1", Payload: map[string]any{"title": "Go engineer"}},
		{ID: "r2", Payload: map[string]any{"title": "SRE"}},
	}
}

func TestCache_FreshSegmentIsReadable(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))

	rows, err := s.GetCached(ctx, models.EntityRequirement, "u1", false)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	meta, err := s.Meta(ctx, models.EntityRequirement, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Count)
	assert.True(t, meta.Fresh(time.Now()))
}

func TestGetCached_TTLGate(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	base := time.Now()
	s.Now = func() time.Time { return base }
	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))

	// Still fresh just before expiry.
	s.Now = func() time.Time { return base.Add(10*time.Minute - time.Second) }
	rows, err := s.GetCached(ctx, models.EntityRequirement, "u1", false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Expired while online: a miss.
	s.Now = func() time.Time { return base.Add(10 * time.Minute) }
	rows, err = s.GetCached(ctx, models.EntityRequirement, "u1", false)
	require.NoError(t, err)
	assert.Nil(t, rows)

	// allowExpired overrides the gate.
	rows, err = s.GetCached(ctx, models.EntityRequirement, "u1", true)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGetCached_OfflineOverride(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, false)
	ctx := context.Background()

	base := time.Now()
	s.Now = func() time.Time { return base }
	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))

	// Expired but offline: rows come back instead of a miss.
	s.Now = func() time.Time { return base.Add(time.Hour) }
	rows, err := s.GetCached(ctx, models.EntityRequirement, "u1", false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGetCached_NeverCachedIsMiss(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, false)

	rows, err := s.GetCached(context.Background(), models.EntityRequirement, "u1", true)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestCache_IdempotentUpsert(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))
	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM requirements`).Scan(&count))
	assert.Equal(t, 2, count)

	meta, err := s.Meta(ctx, models.EntityRequirement, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Count)
}

func TestCache_DiffDeleteSparesTempRows(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))
	require.NoError(t, s.Upsert(ctx, db, models.EntityRequirement, models.Entity{
		ID: "temp-abc", UserID: "u1", Payload: map[string]any{"title": "offline draft"},
	}))

	// A refresh that no longer contains r2 drops it but keeps the temp row.
	refreshed := []models.Entity{{ID: "r1", Payload: map[string]any{"title": "Go engineer"}}}
	require.NoError(t, s.Cache(ctx, models.EntityRequirement, refreshed, "u1"))

	_, err := s.GetByID(ctx, models.EntityRequirement, "r2")
	assert.Error(t, err)

	temp, err := s.GetByID(ctx, models.EntityRequirement, "temp-abc")
	require.NoError(t, err)
	assert.Equal(t, "offline draft", temp.Payload["title"])
}

func TestRemove_RecomputesCount(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))
	require.NoError(t, s.Remove(ctx, models.EntityRequirement, "r1", "u1"))

	meta, err := s.Meta(ctx, models.EntityRequirement, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Count)
}

func TestReplaceTempID_SwapsRowAndCount(t *testing.T) {
	db := setupDB(t)
	s := newTestStore(db, true)
	ctx := context.Background()

	require.NoError(t, s.Cache(ctx, models.EntityRequirement, sampleBatch(), "u1"))
	require.NoError(t, s.Upsert(ctx, db, models.EntityRequirement, models.Entity{
		ID: "temp-1", UserID: "u1", Payload: map[string]any{"title": "new role"},
	}))

	canonical := models.Entity{ID: "srv-9", UserID: "u1", Payload: map[string]any{"title": "new role"}}
	require.NoError(t, s.ReplaceTempID(ctx, db, models.EntityRequirement, "u1", "temp-1", canonical))

	_, err := s.GetByID(ctx, models.EntityRequirement, "temp-1")
	assert.Error(t, err)

	got, err := s.GetByID(ctx, models.EntityRequirement, "srv-9")
	require.NoError(t, err)
	assert.Equal(t, "new role", got.Payload["title"])

	meta, err := s.Meta(ctx, models.EntityRequirement, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Count)
}

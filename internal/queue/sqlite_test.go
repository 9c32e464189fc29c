package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  id TEXT PRIMARY KEY,
  operation TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  timestamp INTEGER NOT NULL,
  retries INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  last_error TEXT NOT NULL DEFAULT '',
  next_attempt INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func newTestQueue(t *testing.T) (*SQLite, *time.Time) {
	t.Helper()
	r := NewSQLite(setupDB(t), logging.NewNopLogger())
	now := time.Now().Truncate(time.Millisecond)
	r.Now = func() time.Time { return now }
	return r, &now
}

func TestEnqueue_Defaults(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := r.Enqueue(ctx, models.OpCreate, models.EntityRequirement, "temp-1",
		map[string]any{"title": "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Zero(t, item.Retries)

	stored, err := r.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, stored.Operation)
	assert.Equal(t, "temp-1", stored.EntityID)
	assert.Equal(t, "x", stored.Payload["title"])
}

func TestEnqueue_RejectsBadInput(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := r.Enqueue(ctx, "UPSERT", models.EntityRequirement, "e", nil)
	assert.ErrorIs(t, err, common.ErrInvalidOperation)

	_, err = r.Enqueue(ctx, models.OpCreate, "widget", "e", nil)
	assert.ErrorIs(t, err, common.ErrInvalidEntityType)
}

func TestDequeueBatch_FIFOAndReadiness(t *testing.T) {
	r, now := newTestQueue(t)
	ctx := context.Background()

	base := *now
	first, err := r.Enqueue(ctx, models.OpUpdate, models.EntityRequirement, "a", nil)
	require.NoError(t, err)

	*now = base.Add(time.Second)
	second, err := r.Enqueue(ctx, models.OpUpdate, models.EntityRequirement, "b", nil)
	require.NoError(t, err)

	*now = base.Add(2 * time.Second)
	items, err := r.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID, "oldest first")
	assert.Equal(t, second.ID, items[1].ID)

	// A failed item is not ready until its next_attempt elapses.
	require.NoError(t, r.MarkFailed(ctx, first.ID, "boom"))
	items, err = r.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)

	*now = base.Add(time.Hour)
	items, err = r.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2, "failed item becomes ready again")
}

func TestMarkFailed_BackoffGrowth(t *testing.T) {
	r, now := newTestQueue(t)
	ctx := context.Background()

	item, err := r.Enqueue(ctx, models.OpDelete, models.EntityDocument, "d1", nil)
	require.NoError(t, err)

	var attempts []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, r.MarkFailed(ctx, item.ID, "network down"))
		stored, err := r.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, stored.Status)
		assert.Equal(t, i+1, stored.Retries)
		assert.Equal(t, "network down", stored.LastError)
		attempts = append(attempts, stored.NextAttempt)
	}

	for i := 1; i < len(attempts); i++ {
		assert.True(t, attempts[i].After(attempts[i-1]), "next_attempt must strictly grow")
	}
	for _, at := range attempts {
		assert.False(t, at.After(now.Add(time.Hour)), "backoff is capped at one hour")
	}
}

func TestBackoff_Formula(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 1024*time.Second, Backoff(10))
	assert.Equal(t, time.Hour, Backoff(12))
	assert.Equal(t, time.Hour, Backoff(40))
}

func TestMarkPending_KeepsRetries(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := r.Enqueue(ctx, models.OpUpdate, models.EntityRequirement, "e", nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkSyncing(ctx, item.ID))
	require.NoError(t, r.MarkPending(ctx, item.ID, "conflict"))

	stored, err := r.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "conflict", stored.LastError)
	assert.Zero(t, stored.Retries)
}

func TestResetPayload_RefreshesTimestamp(t *testing.T) {
	r, now := newTestQueue(t)
	ctx := context.Background()

	base := *now
	item, err := r.Enqueue(ctx, models.OpUpdate, models.EntityRequirement, "e",
		map[string]any{"title": "old"})
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, item.ID, "conflict"))

	*now = base.Add(time.Minute)
	require.NoError(t, r.ResetPayload(ctx, item.ID, map[string]any{"title": "mine"}))

	stored, err := r.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "mine", stored.Payload["title"])
	assert.Empty(t, stored.LastError)
	assert.True(t, stored.Timestamp.After(base), "logical timestamp moves forward")
}

func TestRewriteTempID(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	createItem, err := r.Enqueue(ctx, models.OpCreate, models.EntityRequirement, "temp-1",
		map[string]any{"title": "x"})
	require.NoError(t, err)

	refItem, err := r.Enqueue(ctx, models.OpUpdate, models.EntityInterview, "i1",
		map[string]any{"requirement_id": "temp-1", "nested": map[string]any{"ref": "temp-1"}})
	require.NoError(t, err)

	unrelated, err := r.Enqueue(ctx, models.OpUpdate, models.EntityConsultant, "c1",
		map[string]any{"name": "someone"})
	require.NoError(t, err)

	n, err := r.RewriteTempID(ctx, r.db, "temp-1", "srv-7")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rewritten, err := r.GetByID(ctx, createItem.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-7", rewritten.EntityID)

	ref, err := r.GetByID(ctx, refItem.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-7", ref.Payload["requirement_id"])
	nested := ref.Payload["nested"].(map[string]any)
	assert.Equal(t, "srv-7", nested["ref"])

	same, err := r.GetByID(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, "someone", same.Payload["name"])
}

func TestResetOrphanedSyncing(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	item, err := r.Enqueue(ctx, models.OpCreate, models.EntityRequirement, "temp-1", nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkSyncing(ctx, item.ID))

	n, err := r.ResetOrphanedSyncing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := r.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestCounts(t *testing.T) {
	r, _ := newTestQueue(t)
	ctx := context.Background()

	a, err := r.Enqueue(ctx, models.OpCreate, models.EntityRequirement, "temp-1", nil)
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, models.OpUpdate, models.EntityRequirement, "e2", nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, a.ID, "x"))

	pending, failed, err := r.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)
}

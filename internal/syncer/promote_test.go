package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/drafts"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

func newDraftStore(t *testing.T, e *env) *drafts.Store {
	t.Helper()
	fallback, err := drafts.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	return drafts.NewStore(drafts.NewSQLiteRepository(e.db), fallback,
		drafts.NewKeyring(e.db), logging.NewNopLogger())
}

func TestPromoteDraft_ClassifiesAndEnqueues(t *testing.T) {
	e := newEnv(t, false)
	ds := newDraftStore(t, e)
	ctx := context.Background()

	require.NoError(t, ds.Save(ctx, "new-requirement", map[string]any{
		"title": "Go engineer", "skills": []any{"go", "sql"}, "client": "Acme",
	}))

	item, err := e.engine.PromoteDraft(ctx, ds, "new-requirement", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, item.Operation)
	assert.Equal(t, models.EntityRequirement, item.EntityType)
	assert.True(t, models.IsTempID(item.EntityID))

	local, err := e.store.GetByID(ctx, models.EntityRequirement, item.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "Go engineer", local.Payload["title"])

	_, err = ds.Get(ctx, "new-requirement")
	assert.ErrorIs(t, err, common.ErrNotFound, "promoted draft is gone")
}

func TestPromoteDraft_RefusesUnclassifiable(t *testing.T) {
	e := newEnv(t, false)
	ds := newDraftStore(t, e)
	ctx := context.Background()

	require.NoError(t, ds.Save(ctx, "scratch", map[string]any{"frobnicate": true}))

	_, err := e.engine.PromoteDraft(ctx, ds, "scratch", "u1")
	assert.ErrorIs(t, err, common.ErrUnclassified)

	_, err = ds.Get(ctx, "scratch")
	assert.NoError(t, err, "an unclassifiable draft is left untouched")

	pending, _, err := e.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "nothing is enqueued on a refused guess")
}

func TestPromoteDraft_LockedDraft(t *testing.T) {
	e := newEnv(t, false)
	ds := newDraftStore(t, e)
	ctx := context.Background()

	require.NoError(t, ds.Keyring().SetPassphrase(ctx, []byte("p")))
	require.NoError(t, ds.Save(ctx, "secret", map[string]any{"title": "x", "client": "y"}))
	ds.Keyring().Lock()

	_, err := e.engine.PromoteDraft(ctx, ds, "secret", "u1")
	assert.ErrorIs(t, err, common.ErrDraftLocked)
}

func TestPromoteDraft_MissingDraft(t *testing.T) {
	e := newEnv(t, false)
	ds := newDraftStore(t, e)

	_, err := e.engine.PromoteDraft(context.Background(), ds, "missing", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

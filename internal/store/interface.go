// Package store implements the Local Store: per-entity-type cached tables
// plus the cache_metadata table that gates reads on segment freshness.
package store

import (
	"context"

	"github.com/talentflow/offlinecache/internal/dbx"
	"github.com/talentflow/offlinecache/internal/models"
)

// Repository is the Local Store contract used by the engine and the UI
// layer. A nil, nil return from GetCached is a deliberate cache miss
// telling the caller to go to network.
type Repository interface {
	// Cache upserts a batch for one user and refreshes the segment's
	// freshness metadata.
	Cache(ctx context.Context, t models.EntityType, entities []models.Entity, userID string) error

	// GetCached returns the segment's rows if it is fresh, or the device is
	// offline, or allowExpired is set; otherwise (nil, nil).
	GetCached(ctx context.Context, t models.EntityType, userID string, allowExpired bool) ([]models.Entity, error)

	// Remove deletes one row and recomputes the segment count.
	Remove(ctx context.Context, t models.EntityType, id, userID string) error

	// Upsert writes a single row without touching segment freshness. Used
	// for optimistic writes and sync reconciliation; q may be a transaction.
	Upsert(ctx context.Context, q dbx.DBTX, t models.EntityType, e models.Entity) error

	// GetByID fetches one row, common.ErrNotFound when absent.
	GetByID(ctx context.Context, t models.EntityType, id string) (*models.Entity, error)

	// ReplaceTempID swaps a temp-keyed row for the canonical record and
	// fixes the segment count. Must run inside the caller's transaction.
	ReplaceTempID(ctx context.Context, tx dbx.DBTX, t models.EntityType, userID, tempID string, canonical models.Entity) error

	// Meta returns the segment metadata, common.ErrNotFound when the
	// segment was never cached.
	Meta(ctx context.Context, t models.EntityType, userID string) (*models.SegmentMeta, error)
}

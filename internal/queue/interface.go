// Package queue implements the Mutation Queue: a durable FIFO log of
// pending create/update/delete operations with exponential retry backoff.
package queue

import (
	"context"
	"time"

	"github.com/talentflow/offlinecache/internal/dbx"
	"github.com/talentflow/offlinecache/internal/models"
)

// Repository is the Mutation Queue contract.
type Repository interface {
	// Enqueue appends a new pending item and returns it.
	Enqueue(ctx context.Context, op models.Operation, t models.EntityType, entityID string, payload map[string]any) (*models.QueueItem, error)

	// DequeueBatch returns up to limit items with status pending or failed
	// whose nextAttempt has elapsed, oldest timestamp first.
	DequeueBatch(ctx context.Context, limit int) ([]models.QueueItem, error)

	// MarkSyncing transitions an item to syncing. Persisted before the
	// remote call so a crash leaves a recoverable item, never a lost one.
	MarkSyncing(ctx context.Context, id string) error

	// MarkFailed transitions to failed, increments retries and schedules
	// the next attempt with capped exponential backoff.
	MarkFailed(ctx context.Context, id, cause string) error

	// MarkPending parks an item back in pending without burning a retry.
	// Used when a conflict blocks execution.
	MarkPending(ctx context.Context, id, lastError string) error

	// Delete removes a completed (or dropped) item.
	Delete(ctx context.Context, id string) error

	// GetByID fetches one item, common.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)

	// FindPendingByEntity locates the oldest non-syncing item for an
	// entity, common.ErrNotFound when none. Used by conflict resolution.
	FindPendingByEntity(ctx context.Context, t models.EntityType, entityID string) (*models.QueueItem, error)

	// ResetPayload overwrites an item's payload, refreshes its logical
	// timestamp and returns it to pending for the next batch.
	ResetPayload(ctx context.Context, id string, payload map[string]any) error

	// RewriteTempID rewrites every reference to a temp id (entity_id or
	// payload fields) to the canonical id. Runs in the caller's transaction.
	RewriteTempID(ctx context.Context, tx dbx.DBTX, tempID, canonicalID string) (int, error)

	// ResetOrphanedSyncing returns items stranded in syncing (crash during
	// a previous session) to pending.
	ResetOrphanedSyncing(ctx context.Context) (int, error)

	// Counts reports how many items sit in pending and failed.
	Counts(ctx context.Context) (pending, failed int, err error)
}

// maxBackoff caps the retry delay at one hour.
const maxBackoff = time.Hour

// Backoff returns the delay before the next attempt after the given number
// of failures: min(1h, 2^retries seconds).
func Backoff(retries int) time.Duration {
	if retries > 12 { // 2^12 s already exceeds the cap
		return maxBackoff
	}
	d := time.Duration(1<<uint(retries)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

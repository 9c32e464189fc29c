// Package syncer implements the Sync Processor: it drains the mutation
// queue against the remote backend, detects conflicts before executing
// updates, reconciles temp ids transactionally and schedules retries.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/conflicts"
	"github.com/talentflow/offlinecache/internal/dbx"
	"github.com/talentflow/offlinecache/internal/events"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/metrics"
	"github.com/talentflow/offlinecache/internal/models"
	"github.com/talentflow/offlinecache/internal/netx"
	"github.com/talentflow/offlinecache/internal/queue"
	"github.com/talentflow/offlinecache/internal/remote"
	"github.com/talentflow/offlinecache/internal/store"
)

// conflictMessage is recorded on a queue item parked behind a conflict.
const conflictMessage = "Conflict detected - awaiting user resolution"

// Params collects the engine's collaborators. Everything is injected; the
// engine owns no global state.
type Params struct {
	DB        *sql.DB
	Store     store.Repository
	Queue     queue.Repository
	Conflicts conflicts.Repository
	Remote    remote.Backend
	Monitor   netx.Monitor
	Bus       *events.Bus
	Log       logging.Logger

	// BatchSize caps one sync pass; zero means 10.
	BatchSize int

	// SyncInterval drives timer-based passes in Run; zero disables them.
	SyncInterval time.Duration
}

// Engine is the sync processor. One instance per process; concurrent
// instances over the same database race on queue items (single-writer
// assumption, as with multiple browser tabs in the original design).
type Engine struct {
	db        *sql.DB
	store     store.Repository
	queue     queue.Repository
	conflicts conflicts.Repository
	remote    remote.Backend
	monitor   netx.Monitor
	bus       *events.Bus
	log       logging.Logger

	batchSize    int
	syncInterval time.Duration

	// Now is the clock; tests override it.
	Now func() time.Time
}

func NewEngine(p Params) *Engine {
	if p.BatchSize <= 0 {
		p.BatchSize = 10
	}
	return &Engine{
		db:           p.DB,
		store:        p.Store,
		queue:        p.Queue,
		conflicts:    p.Conflicts,
		remote:       p.Remote,
		monitor:      p.Monitor,
		bus:          p.Bus,
		log:          p.Log,
		batchSize:    p.BatchSize,
		syncInterval: p.SyncInterval,
		Now:          time.Now,
	}
}

// Mutate performs an optimistic local write and enqueues the matching
// remote operation. A CREATE without an id gets a temp id that the sync
// pass later rewrites to the server-issued one.
func (e *Engine) Mutate(ctx context.Context, op models.Operation, t models.EntityType, entity models.Entity) (*models.QueueItem, error) {
	if op == models.OpCreate && entity.ID == "" {
		entity.ID = models.NewTempID()
	}

	switch op {
	case models.OpCreate, models.OpUpdate:
		if err := e.store.Upsert(ctx, e.db, t, entity); err != nil {
			return nil, fmt.Errorf("optimistic write: %w", err)
		}
	case models.OpDelete:
		if err := e.store.Remove(ctx, t, entity.ID, entity.UserID); err != nil {
			return nil, fmt.Errorf("optimistic delete: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidOperation, op)
	}

	item, err := e.queue.Enqueue(ctx, op, t, entity.ID, entity.Payload)
	if err != nil {
		return nil, err
	}

	e.publishQueueChanged(ctx)
	return item, nil
}

// ProcessBatch drains up to BatchSize ready queue items, strictly
// sequentially so temp-id rewrites are visible to later items in the same
// batch. Offline passes are no-ops.
func (e *Engine) ProcessBatch(ctx context.Context) (models.SyncResult, error) {
	var result models.SyncResult

	if !e.monitor.Online() {
		return result, nil
	}

	items, err := e.queue.DequeueBatch(ctx, e.batchSize)
	if err != nil {
		return result, err
	}

	for _, item := range items {
		// Re-read before processing: an earlier create in this batch may
		// have rewritten this item's temp-id references.
		fresh, err := e.queue.GetByID(ctx, item.ID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, err
		}

		switch e.processItem(ctx, *fresh) {
		case outcomeProcessed:
			result.Processed++
		case outcomeFailed:
			result.Failed++
		case outcomeConflict:
			result.Conflicts++
		}
	}

	if len(items) > 0 {
		e.publishQueueChanged(ctx)
	}
	return result, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeProcessed
	outcomeFailed
	outcomeConflict
)

func (e *Engine) processItem(ctx context.Context, item models.QueueItem) outcome {
	// An unresolved conflict blocks the item outright.
	blocked, err := e.conflicts.HasPending(ctx, item.EntityType, item.EntityID)
	if err != nil {
		return e.fail(ctx, item, err)
	}
	if blocked {
		return outcomeSkipped
	}

	// Persist the transition before the remote call: a crash mid-call
	// leaves a recoverable syncing item instead of a lost one.
	if err := e.queue.MarkSyncing(ctx, item.ID); err != nil {
		e.log.Error(ctx, "failed to mark queue item syncing", "id", item.ID, "error", err)
		return outcomeFailed
	}

	if item.Operation == models.OpUpdate {
		conflicted, err := e.checkConflict(ctx, item)
		if err != nil {
			return e.fail(ctx, item, err)
		}
		if conflicted {
			metrics.ConflictsDetected.WithLabelValues(string(item.EntityType)).Inc()
			return outcomeConflict
		}
	}

	if err := e.execute(ctx, item); err != nil {
		return e.fail(ctx, item, err)
	}

	if err := e.queue.Delete(ctx, item.ID); err != nil {
		e.log.Error(ctx, "failed to delete completed queue item", "id", item.ID, "error", err)
		return outcomeFailed
	}

	metrics.ItemsProcessed.WithLabelValues(string(item.EntityType), string(item.Operation)).Inc()
	return outcomeProcessed
}

// checkConflict runs the pre-update check. The check happens before the
// mutation because once the update is sent, the remote's prior state (the
// one the user needs to see in a diff) is gone.
func (e *Engine) checkConflict(ctx context.Context, item models.QueueItem) (bool, error) {
	rec, err := e.remote.FetchByID(ctx, item.EntityType, item.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		// Nothing newer exists; let the update itself report the miss.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !rec.UpdatedAt.After(item.Timestamp) {
		return false, nil
	}

	conflict := &models.Conflict{
		EntityType:    item.EntityType,
		EntityID:      item.EntityID,
		Strategy:      models.StrategyPending,
		Timestamp:     e.Now(),
		LocalVersion:  item.Payload,
		RemoteVersion: rec.Fields,
	}
	if err := e.conflicts.Create(ctx, conflict); err != nil {
		return false, err
	}

	// Neither side's data is discarded: the item parks in pending until
	// the user decides, and the remote record stays untouched.
	if err := e.queue.MarkPending(ctx, item.ID, conflictMessage); err != nil {
		return false, err
	}

	e.log.Info(ctx, "conflict detected",
		"entityType", item.EntityType, "entityId", item.EntityID,
		"localTimestamp", item.Timestamp, "remoteUpdatedAt", rec.UpdatedAt)
	return true, nil
}

func (e *Engine) execute(ctx context.Context, item models.QueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		rec, err := e.remote.Insert(ctx, item.EntityType, item.Payload)
		if err != nil {
			return err
		}
		return e.reconcileCreate(ctx, item, rec)

	case models.OpUpdate:
		rec, err := e.remote.Update(ctx, item.EntityType, item.EntityID, item.Payload)
		if err != nil {
			return err
		}
		return e.touchLocal(ctx, item, rec)

	case models.OpDelete:
		if err := e.remote.Delete(ctx, item.EntityType, item.EntityID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", common.ErrInvalidOperation, item.Operation)
	}
}

// reconcileCreate lands the canonical record locally. For a temp-id create
// the local row swap, the queue rewrite and the segment recount run in one
// transaction; a half-rewritten queue would silently corrupt later syncs.
func (e *Engine) reconcileCreate(ctx context.Context, item models.QueueItem, rec *remote.Record) error {
	userID := e.ownerOf(ctx, item)

	canonical := models.Entity{
		ID:        rec.ID,
		UserID:    userID,
		Payload:   rec.Fields,
		UpdatedAt: rec.UpdatedAt,
	}

	if !models.IsTempID(item.EntityID) {
		return e.store.Upsert(ctx, e.db, item.EntityType, canonical)
	}

	return dbx.WithTx(ctx, e.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := e.store.ReplaceTempID(ctx, tx, item.EntityType, userID, item.EntityID, canonical); err != nil {
			return err
		}
		rewritten, err := e.queue.RewriteTempID(ctx, tx, item.EntityID, rec.ID)
		if err != nil {
			return err
		}
		if rewritten > 0 {
			e.log.Info(ctx, "rewrote temp id references",
				"tempId", item.EntityID, "canonicalId", rec.ID, "items", rewritten)
		}
		return nil
	})
}

// touchLocal refreshes the local row's updated_at from the authoritative
// record so the next conflict check compares against reality.
func (e *Engine) touchLocal(ctx context.Context, item models.QueueItem, rec *remote.Record) error {
	local, err := e.store.GetByID(ctx, item.EntityType, item.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	local.UpdatedAt = rec.UpdatedAt
	return e.store.Upsert(ctx, e.db, item.EntityType, *local)
}

// ownerOf finds the owning user for a queue item, preferring the local row
// over a user_id payload field.
func (e *Engine) ownerOf(ctx context.Context, item models.QueueItem) string {
	if local, err := e.store.GetByID(ctx, item.EntityType, item.EntityID); err == nil {
		return local.UserID
	}
	if uid, ok := item.Payload["user_id"].(string); ok {
		return uid
	}
	return ""
}

func (e *Engine) fail(ctx context.Context, item models.QueueItem, cause error) outcome {
	if err := e.queue.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
		e.log.Error(ctx, "failed to record queue item failure", "id", item.ID, "error", err)
	}

	metrics.ItemsFailed.WithLabelValues(string(item.EntityType), string(item.Operation)).Inc()
	e.bus.Publish(events.TopicSyncError, models.SyncError{
		ItemID:     item.ID,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Error:      cause.Error(),
	})

	e.log.Warn(ctx, "queue item failed",
		"id", item.ID, "operation", item.Operation,
		"entityType", item.EntityType, "entityId", item.EntityID, "error", cause)
	return outcomeFailed
}

// Status reports the queryable aggregate for UI badges.
func (e *Engine) Status(ctx context.Context) (models.SyncStatus, error) {
	pending, failed, err := e.queue.Counts(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}
	conflictCount, err := e.conflicts.CountPending(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}
	return models.SyncStatus{Pending: pending, Failed: failed, Conflicts: conflictCount}, nil
}

// PendingConflicts surfaces unresolved conflicts for the UI.
func (e *Engine) PendingConflicts(ctx context.Context) ([]models.Conflict, error) {
	return e.conflicts.GetPending(ctx)
}

// RecoverOrphans returns items stranded in syncing by a crash to pending.
// Call it once at session start, before the first sync pass.
func (e *Engine) RecoverOrphans(ctx context.Context) (int, error) {
	n, err := e.queue.ResetOrphanedSyncing(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Warn(ctx, "recovered queue items stranded mid-sync", "count", n)
		e.publishQueueChanged(ctx)
	}
	return n, nil
}

func (e *Engine) publishQueueChanged(ctx context.Context) {
	status, err := e.Status(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to compute sync status", "error", err)
		return
	}
	e.bus.Publish(events.TopicQueueChanged, status)
}

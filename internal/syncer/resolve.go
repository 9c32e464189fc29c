package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

// ResolveConflict records the user's decision and unblocks the associated
// queue item.
//
// Choosing remote drops the queued change (nothing left to send) and lands
// the remote version locally. Choosing local overwrites the queue item's
// payload with the conflict's local version and returns it to pending; the
// retry re-checks against the then-current remote state. A missing queue
// item is logged, not fatal.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, selected models.ConflictStrategy) error {
	switch selected {
	case models.StrategyLocal, models.StrategyRemote:
	case models.StrategyMerge:
		return common.ErrStrategyUnsupported
	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownStrategy, selected)
	}

	conflict, err := e.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict.Strategy != models.StrategyPending {
		return fmt.Errorf("conflict %s already resolved as %s", conflictID, conflict.Strategy)
	}

	if err := e.conflicts.MarkResolved(ctx, conflictID, selected, e.Now()); err != nil {
		return err
	}

	item, err := e.queue.FindPendingByEntity(ctx, conflict.EntityType, conflict.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		e.log.Warn(ctx, "no queue item found for resolved conflict",
			"conflictId", conflictID, "entityType", conflict.EntityType, "entityId", conflict.EntityID)
		return nil
	}
	if err != nil {
		return err
	}

	switch selected {
	case models.StrategyRemote:
		if err := e.queue.Delete(ctx, item.ID); err != nil {
			return err
		}
		// The remote version won; reflect it locally so reads agree.
		remoteEntity := models.Entity{
			ID:      conflict.EntityID,
			UserID:  e.ownerOf(ctx, *item),
			Payload: conflict.RemoteVersion,
		}
		if err := e.store.Upsert(ctx, e.db, conflict.EntityType, remoteEntity); err != nil {
			e.log.Warn(ctx, "failed to apply remote version locally",
				"conflictId", conflictID, "error", err)
		}

	case models.StrategyLocal:
		if err := e.queue.ResetPayload(ctx, item.ID, conflict.LocalVersion); err != nil {
			return err
		}
	}

	e.publishQueueChanged(ctx)
	return nil
}

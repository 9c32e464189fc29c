// Package conflicts implements the Conflict Registry: durable records of
// divergence between queued local changes and the remote state, awaiting
// user resolution.
package conflicts

import (
	"context"
	"time"

	"github.com/talentflow/offlinecache/internal/models"
)

// Repository is the Conflict Registry contract.
type Repository interface {
	// Create stores a new record; an empty ID is filled in.
	Create(ctx context.Context, c *models.Conflict) error

	// GetByID fetches one record, common.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.Conflict, error)

	// GetPending returns every record still awaiting resolution.
	GetPending(ctx context.Context) ([]models.Conflict, error)

	// HasPending reports whether an unresolved record exists for the
	// entity. A pending record blocks the matching queue item.
	HasPending(ctx context.Context, t models.EntityType, entityID string) (bool, error)

	// MarkResolved records the user's decision.
	MarkResolved(ctx context.Context, id string, selected models.ConflictStrategy, at time.Time) error

	// CountPending reports how many records await resolution.
	CountPending(ctx context.Context) (int, error)
}

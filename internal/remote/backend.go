// Package remote defines the minimal contract the sync engine needs from
// the remote backend, plus a JSON-over-HTTP implementation. Everything
// beyond insert/update/delete/fetch semantics is the backend's concern.
package remote

import (
	"context"
	"time"

	"github.com/talentflow/offlinecache/internal/models"
)

// Record is the backend's canonical view of one entity: a server-assigned
// id, the authoritative updated_at used for conflict checks, and the raw
// domain fields.
type Record struct {
	ID        string
	UpdatedAt time.Time
	Fields    map[string]any
}

// Backend is the remote source of truth, one collection per entity type
// (named entityType + "s").
type Backend interface {
	// Insert creates a record and returns the canonical result, including
	// the server-issued id.
	Insert(ctx context.Context, t models.EntityType, payload map[string]any) (*Record, error)

	// Update overwrites a record by id; the returned record matters only
	// for its updated_at.
	Update(ctx context.Context, t models.EntityType, id string, payload map[string]any) (*Record, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, t models.EntityType, id string) error

	// FetchByID reads the current record for pre-update conflict checks.
	// Returns common.ErrNotFound when the record does not exist.
	FetchByID(ctx context.Context, t models.EntityType, id string) (*Record, error)
}

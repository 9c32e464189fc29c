// Package models defines the data types shared by the offline cache:
// cached entities, sync queue items, conflict records and drafts.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies one of the cached CRM entity kinds. Each type maps
// to its own local table and its own remote collection.
type EntityType string

const (
	EntityRequirement EntityType = "requirement"
	EntityConsultant  EntityType = "consultant"
	EntityInterview   EntityType = "interview"
	EntityDocument    EntityType = "document"
	EntityEmail       EntityType = "email"
)

// EntityTypes lists every supported type, in schema order.
var EntityTypes = []EntityType{
	EntityRequirement,
	EntityConsultant,
	EntityInterview,
	EntityDocument,
	EntityEmail,
}

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityRequirement, EntityConsultant, EntityInterview, EntityDocument, EntityEmail:
		return true
	}
	return false
}

// Table returns the local table / remote collection name for t.
func (t EntityType) Table() string {
	return string(t) + "s"
}

// TempIDPrefix marks locally generated placeholder ids for entities created
// while offline. The sync processor replaces them with server-issued ids.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh placeholder id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a locally generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Entity is one cached row. Payload carries the free-form domain fields;
// the engine never interprets them beyond id rewriting.
type Entity struct {
	ID        string
	UserID    string
	Payload   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SegmentName builds the cache-metadata key for one entity type scoped to
// one owning user, e.g. "requirements_u1".
func SegmentName(t EntityType, userID string) string {
	return fmt.Sprintf("%s_%s", t.Table(), userID)
}

// SegmentMeta tracks the freshness of one cache segment.
type SegmentMeta struct {
	Segment     string
	LastUpdated time.Time
	ExpiresAt   time.Time
	Count       int
}

// Fresh reports whether the segment is still within its TTL at now.
func (m SegmentMeta) Fresh(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// Operation is the kind of remote mutation a queue item performs.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusSyncing QueueStatus = "syncing"
	StatusFailed  QueueStatus = "failed"
)

// QueueItem is one durable pending mutation. Timestamp is the logical
// "as-of" time of the local change and is what conflict detection compares
// against the remote updated_at.
type QueueItem struct {
	ID          string
	Operation   Operation
	EntityType  EntityType
	EntityID    string
	Payload     map[string]any
	Timestamp   time.Time
	Retries     int
	Status      QueueStatus
	LastError   string
	NextAttempt time.Time
}

// ConflictStrategy labels how a conflict is (to be) resolved.
type ConflictStrategy string

const (
	StrategyPending ConflictStrategy = "pending"
	StrategyLocal   ConflictStrategy = "local"
	StrategyRemote  ConflictStrategy = "remote"
	StrategyMerge   ConflictStrategy = "merge"
)

// Conflict records a detected divergence between a queued local change and
// the current remote state. While Strategy is pending the associated queue
// item is blocked.
type Conflict struct {
	ID              string
	EntityType      EntityType
	EntityID        string
	Strategy        ConflictStrategy
	Timestamp       time.Time
	LocalVersion    map[string]any
	RemoteVersion   map[string]any
	UserResolved    bool
	ResolvedAt      *time.Time
	SelectedVersion ConflictStrategy
}

// Draft is one persisted piece of in-progress form state. Value is either
// plain JSON or an encrypted envelope (see cryptox.Envelope).
type Draft struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// SyncStatus is the queryable aggregate the UI polls for badges.
type SyncStatus struct {
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

// SyncResult aggregates one ProcessBatch pass.
type SyncResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

// SyncError is the payload published on the sync-error topic for one
// failed queue item.
type SyncError struct {
	ItemID     string     `json:"id"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Error      string     `json:"error"`
}

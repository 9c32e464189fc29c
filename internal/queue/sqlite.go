package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/dbx"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

// SQLite is the SQLite-backed Mutation Queue.
type SQLite struct {
	db  *sql.DB
	log logging.Logger

	// Now is the clock; tests override it to control backoff scheduling.
	Now func() time.Time
}

func NewSQLite(db *sql.DB, log logging.Logger) *SQLite {
	return &SQLite{db: db, log: log, Now: time.Now}
}

func (r *SQLite) Enqueue(ctx context.Context, op models.Operation, t models.EntityType, entityID string, payload map[string]any) (*models.QueueItem, error) {
	switch op {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidOperation, op)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}

	now := r.Now()
	item := &models.QueueItem{
		ID:          uuid.NewString(),
		Operation:   op,
		EntityType:  t,
		EntityID:    entityID,
		Payload:     payload,
		Timestamp:   now,
		Status:      models.StatusPending,
		NextAttempt: now,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal queue payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, operation, entity_type, entity_id, payload, timestamp, retries, status, last_error, next_attempt)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, '', ?)
	`, item.ID, string(op), string(t), entityID, string(raw),
		models.TimeToMillis(now), string(models.StatusPending), models.TimeToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("enqueue %s %s[%s]: %w", op, t, entityID, err)
	}

	return item, nil
}

func (r *SQLite) DequeueBatch(ctx context.Context, limit int) ([]models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, entity_type, entity_id, payload, timestamp, retries, status, last_error, next_attempt
		FROM sync_queue
		WHERE status IN (?, ?) AND next_attempt <= ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, string(models.StatusPending), string(models.StatusFailed), models.TimeToMillis(r.Now()), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLite) MarkSyncing(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE sync_queue SET status = ? WHERE id = ?`,
		string(models.StatusSyncing), id)
}

func (r *SQLite) MarkFailed(ctx context.Context, id, cause string) error {
	// retries is incremented first so the recorded next_attempt matches
	// the new count: next = now + min(1h, 2^retries s).
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	retries := item.Retries + 1
	next := r.Now().Add(Backoff(retries))

	return r.exec(ctx, `
		UPDATE sync_queue SET status = ?, retries = ?, last_error = ?, next_attempt = ? WHERE id = ?
	`, string(models.StatusFailed), retries, cause, models.TimeToMillis(next), id)
}

func (r *SQLite) MarkPending(ctx context.Context, id, lastError string) error {
	return r.exec(ctx, `UPDATE sync_queue SET status = ?, last_error = ? WHERE id = ?`,
		string(models.StatusPending), lastError, id)
}

func (r *SQLite) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
}

func (r *SQLite) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, operation, entity_type, entity_id, payload, timestamp, retries, status, last_error, next_attempt
		FROM sync_queue WHERE id = ?
	`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *SQLite) FindPendingByEntity(ctx context.Context, t models.EntityType, entityID string) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, operation, entity_type, entity_id, payload, timestamp, retries, status, last_error, next_attempt
		FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND status != ?
		ORDER BY timestamp ASC
		LIMIT 1
	`, string(t), entityID, string(models.StatusSyncing))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *SQLite) ResetPayload(ctx context.Context, id string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	// The logical timestamp moves forward: the retry reflects the user's
	// just-made decision, so the next conflict check compares against it.
	return r.exec(ctx, `
		UPDATE sync_queue SET payload = ?, status = ?, last_error = '', timestamp = ?, next_attempt = ? WHERE id = ?
	`, string(raw), string(models.StatusPending),
		models.TimeToMillis(r.Now()), models.TimeToMillis(r.Now()), id)
}

func (r *SQLite) RewriteTempID(ctx context.Context, tx dbx.DBTX, tempID, canonicalID string) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, entity_id, payload FROM sync_queue WHERE entity_id = ? OR payload LIKE ?
	`, tempID, "%"+tempID+"%")
	if err != nil {
		return 0, fmt.Errorf("scan queue for temp id %s: %w", tempID, err)
	}

	type rewrite struct {
		id       string
		entityID string
		payload  string
	}
	var matches []rewrite
	for rows.Next() {
		var m rewrite
		if err := rows.Scan(&m.id, &m.entityID, &m.payload); err != nil {
			rows.Close()
			return 0, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	rewritten := 0
	for _, m := range matches {
		entityID := m.entityID
		if entityID == tempID {
			entityID = canonicalID
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(m.payload), &payload); err != nil {
			return rewritten, fmt.Errorf("unmarshal payload of queue item %s: %w", m.id, err)
		}
		changed := rewriteValues(payload, tempID, canonicalID)
		raw := m.payload
		if changed {
			b, err := json.Marshal(payload)
			if err != nil {
				return rewritten, err
			}
			raw = string(b)
		}

		if entityID == m.entityID && !changed {
			continue // LIKE matched a substring that is not a real reference
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET entity_id = ?, payload = ? WHERE id = ?`,
			entityID, raw, m.id); err != nil {
			return rewritten, fmt.Errorf("rewrite queue item %s: %w", m.id, err)
		}
		rewritten++
	}

	return rewritten, nil
}

// rewriteValues replaces every string value equal to tempID (foreign keys
// referencing the offline-created entity) with canonicalID, recursing into
// nested objects and arrays.
func rewriteValues(v map[string]any, tempID, canonicalID string) bool {
	changed := false
	for k, val := range v {
		switch value := val.(type) {
		case string:
			if value == tempID {
				v[k] = canonicalID
				changed = true
			}
		case map[string]any:
			if rewriteValues(value, tempID, canonicalID) {
				changed = true
			}
		case []any:
			for i, item := range value {
				switch inner := item.(type) {
				case string:
					if inner == tempID {
						value[i] = canonicalID
						changed = true
					}
				case map[string]any:
					if rewriteValues(inner, tempID, canonicalID) {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

func (r *SQLite) ResetOrphanedSyncing(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, last_error = 'interrupted mid-sync, retrying' WHERE status = ?
	`, string(models.StatusPending), string(models.StatusSyncing))
	if err != nil {
		return 0, fmt.Errorf("reset orphaned syncing items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLite) Counts(ctx context.Context) (pending, failed int, err error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return 0, 0, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, err
		}
		switch models.QueueStatus(status) {
		case models.StatusPending, models.StatusSyncing:
			pending += n
		case models.StatusFailed:
			failed += n
		}
	}
	return pending, failed, rows.Err()
}

func (r *SQLite) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var op, entityType, status, payload string
	var timestamp, nextAttempt int64
	if err := row.Scan(&item.ID, &op, &entityType, &item.EntityID, &payload,
		&timestamp, &item.Retries, &status, &item.LastError, &nextAttempt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload of queue item %s: %w", item.ID, err)
	}
	item.Operation = models.Operation(op)
	item.EntityType = models.EntityType(entityType)
	item.Status = models.QueueStatus(status)
	item.Timestamp = models.MillisToTime(timestamp)
	item.NextAttempt = models.MillisToTime(nextAttempt)
	return &item, nil
}

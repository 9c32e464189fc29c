package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/dbx"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
)

// chunkSize bounds how many rows one upsert transaction carries.
const chunkSize = 500

// Online reports device connectivity. The store consults it so expired
// segments stay readable while disconnected.
type Online interface {
	Online() bool
}

// OnlineFunc adapts a plain function to the Online interface.
type OnlineFunc func() bool

func (f OnlineFunc) Online() bool { return f() }

// TTLFunc returns the freshness window for an entity type.
type TTLFunc func(models.EntityType) time.Duration

// SQLite is the SQLite-backed Local Store.
type SQLite struct {
	db     *sql.DB
	online Online
	ttl    TTLFunc
	log    logging.Logger

	// Now is the clock; tests override it to control freshness.
	Now func() time.Time
}

func NewSQLite(db *sql.DB, online Online, ttl TTLFunc, log logging.Logger) *SQLite {
	return &SQLite{db: db, online: online, ttl: ttl, log: log, Now: time.Now}
}

func (s *SQLite) Cache(ctx context.Context, t models.EntityType, entities []models.Entity, userID string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}

	now := s.Now()

	for start := 0; start < len(entities); start += chunkSize {
		end := min(start+chunkSize, len(entities))
		chunk := entities[start:end]

		err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
			for _, e := range chunk {
				if err := s.upsert(ctx, tx, t, e, userID, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("cache %s chunk: %w", t, err)
		}
	}

	// Finalize: drop rows the batch no longer contains and refresh the
	// segment metadata. Temp rows are local-only creations the server has
	// not seen yet, so the diff-delete must never touch them.
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.diffDelete(ctx, tx, t, entities, userID); err != nil {
			return err
		}
		count, err := s.countRows(ctx, tx, t, userID)
		if err != nil {
			return err
		}
		return s.putMeta(ctx, tx, models.SegmentMeta{
			Segment:     models.SegmentName(t, userID),
			LastUpdated: now,
			ExpiresAt:   now.Add(s.ttl(t)),
			Count:       count,
		})
	})
}

func (s *SQLite) GetCached(ctx context.Context, t models.EntityType, userID string, allowExpired bool) ([]models.Entity, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}

	meta, err := s.Meta(ctx, t, userID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !meta.Fresh(s.Now()) && s.online.Online() && !allowExpired {
		// Stale while online: report a miss so the caller refetches.
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT id, user_id, payload, created_at, updated_at FROM %s WHERE user_id = ? ORDER BY updated_at DESC`,
		t.Table())
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t, err)
	}
	defer rows.Close()

	var result []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLite) Remove(ctx context.Context, t models.EntityType, id, userID string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}

	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.Table())
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete %s[%s]: %w", t, id, err)
		}
		return s.refreshCount(ctx, tx, t, userID)
	})
}

func (s *SQLite) Upsert(ctx context.Context, q dbx.DBTX, t models.EntityType, e models.Entity) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}
	return s.upsert(ctx, q, t, e, e.UserID, s.Now())
}

func (s *SQLite) GetByID(ctx context.Context, t models.EntityType, id string) (*models.Entity, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, t)
	}
	query := fmt.Sprintf(`SELECT id, user_id, payload, created_at, updated_at FROM %s WHERE id = ?`, t.Table())
	row := s.db.QueryRowContext(ctx, query, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLite) ReplaceTempID(ctx context.Context, tx dbx.DBTX, t models.EntityType, userID, tempID string, canonical models.Entity) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.Table())
	if _, err := tx.ExecContext(ctx, query, tempID); err != nil {
		return fmt.Errorf("delete temp row %s[%s]: %w", t, tempID, err)
	}
	if err := s.upsert(ctx, tx, t, canonical, userID, s.Now()); err != nil {
		return err
	}
	return s.refreshCount(ctx, tx, t, userID)
}

func (s *SQLite) Meta(ctx context.Context, t models.EntityType, userID string) (*models.SegmentMeta, error) {
	segment := models.SegmentName(t, userID)
	var lastUpdated, expiresAt int64
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_updated, expires_at, count FROM cache_metadata WHERE segment = ?`, segment).
		Scan(&lastUpdated, &expiresAt, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata[%s]: %w", segment, err)
	}
	return &models.SegmentMeta{
		Segment:     segment,
		LastUpdated: models.MillisToTime(lastUpdated),
		ExpiresAt:   models.MillisToTime(expiresAt),
		Count:       count,
	}, nil
}

func (s *SQLite) upsert(ctx context.Context, q dbx.DBTX, t models.EntityType, e models.Entity, userID string, now time.Time) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	if userID == "" {
		userID = e.UserID
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, t.Table())

	_, err = q.ExecContext(ctx, query,
		e.ID, userID, string(payload),
		models.TimeToMillis(createdAt), models.TimeToMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("upsert %s[%s]: %w", t, e.ID, err)
	}
	return nil
}

// diffDelete removes the user's rows that are absent from the freshly
// cached batch, sparing temp rows.
func (s *SQLite) diffDelete(ctx context.Context, tx dbx.DBTX, t models.EntityType, entities []models.Entity, userID string) error {
	if len(entities) == 0 {
		query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND id NOT LIKE ?`, t.Table())
		_, err := tx.ExecContext(ctx, query, userID, models.TempIDPrefix+"%")
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entities)), ",")
	args := make([]any, 0, len(entities)+2)
	args = append(args, userID)
	for _, e := range entities {
		args = append(args, e.ID)
	}
	args = append(args, models.TempIDPrefix+"%")

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE user_id = ? AND id NOT IN (%s) AND id NOT LIKE ?`,
		t.Table(), placeholders)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("diff-delete %s: %w", t, err)
	}
	return nil
}

func (s *SQLite) countRows(ctx context.Context, q dbx.DBTX, t models.EntityType, userID string) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = ?`, t.Table())
	if err := q.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return count, nil
}

// refreshCount updates only the stored row count, leaving freshness alone.
func (s *SQLite) refreshCount(ctx context.Context, q dbx.DBTX, t models.EntityType, userID string) error {
	count, err := s.countRows(ctx, q, t, userID)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE cache_metadata SET count = ? WHERE segment = ?`,
		count, models.SegmentName(t, userID))
	return err
}

func (s *SQLite) putMeta(ctx context.Context, q dbx.DBTX, m models.SegmentMeta) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cache_metadata (segment, last_updated, expires_at, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(segment) DO UPDATE SET
			last_updated = excluded.last_updated,
			expires_at = excluded.expires_at,
			count = excluded.count
	`, m.Segment, models.TimeToMillis(m.LastUpdated), models.TimeToMillis(m.ExpiresAt), m.Count)
	if err != nil {
		return fmt.Errorf("set metadata[%s]: %w", m.Segment, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var e models.Entity
	var payload string
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.UserID, &payload, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", e.ID, err)
	}
	e.CreatedAt = models.MillisToTime(createdAt)
	e.UpdatedAt = models.MillisToTime(updatedAt)
	return &e, nil
}

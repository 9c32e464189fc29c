package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

// SQLite is the SQLite-backed Conflict Registry.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (r *SQLite) Create(ctx context.Context, c *models.Conflict) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Strategy == "" {
		c.Strategy = models.StrategyPending
	}

	local, err := json.Marshal(c.LocalVersion)
	if err != nil {
		return fmt.Errorf("marshal local version: %w", err)
	}
	remote, err := json.Marshal(c.RemoteVersion)
	if err != nil {
		return fmt.Errorf("marshal remote version: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, entity_type, entity_id, strategy, timestamp, local_version, remote_version, user_resolved, resolved_at, selected_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, '')
	`, c.ID, string(c.EntityType), c.EntityID, string(c.Strategy),
		models.TimeToMillis(c.Timestamp), string(local), string(remote))
	if err != nil {
		return fmt.Errorf("create conflict for %s[%s]: %w", c.EntityType, c.EntityID, err)
	}
	return nil
}

func (r *SQLite) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SQLite) GetPending(ctx context.Context) ([]models.Conflict, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE strategy = ? ORDER BY timestamp ASC`,
		string(models.StrategyPending))
	if err != nil {
		return nil, fmt.Errorf("select pending conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *SQLite) HasPending(ctx context.Context, t models.EntityType, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE entity_type = ? AND entity_id = ? AND strategy = ?`,
		string(t), entityID, string(models.StrategyPending)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending conflict for %s[%s]: %w", t, entityID, err)
	}
	return n > 0, nil
}

func (r *SQLite) MarkResolved(ctx context.Context, id string, selected models.ConflictStrategy, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conflicts SET strategy = ?, user_resolved = 1, resolved_at = ?, selected_version = ? WHERE id = ?
	`, string(selected), models.TimeToMillis(at), string(selected), id)
	if err != nil {
		return fmt.Errorf("resolve conflict %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLite) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE strategy = ?`,
		string(models.StrategyPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending conflicts: %w", err)
	}
	return n, nil
}

const selectColumns = `
	SELECT id, entity_type, entity_id, strategy, timestamp, local_version, remote_version, user_resolved, resolved_at, selected_version
	FROM conflicts`

type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(row scanner) (*models.Conflict, error) {
	var c models.Conflict
	var entityType, strategy, local, remote, selected string
	var timestamp int64
	var userResolved int
	var resolvedAt sql.NullInt64

	if err := row.Scan(&c.ID, &entityType, &c.EntityID, &strategy, &timestamp,
		&local, &remote, &userResolved, &resolvedAt, &selected); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(local), &c.LocalVersion); err != nil {
		return nil, fmt.Errorf("unmarshal local version of conflict %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(remote), &c.RemoteVersion); err != nil {
		return nil, fmt.Errorf("unmarshal remote version of conflict %s: %w", c.ID, err)
	}

	c.EntityType = models.EntityType(entityType)
	c.Strategy = models.ConflictStrategy(strategy)
	c.Timestamp = models.MillisToTime(timestamp)
	c.UserResolved = userResolved != 0
	c.SelectedVersion = models.ConflictStrategy(selected)
	if resolvedAt.Valid {
		t := models.MillisToTime(resolvedAt.Int64)
		c.ResolvedAt = &t
	}
	return &c, nil
}

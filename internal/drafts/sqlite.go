package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

// repository is the persistence contract shared by the primary SQLite
// store and the flat-file fallback.
type repository interface {
	Save(ctx context.Context, key string, value []byte, updatedAt time.Time) error
	Get(ctx context.Context, key string) (*models.Draft, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]models.Draft, error)
}

// SQLiteRepository persists drafts in the drafts table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), models.TimeToMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("save draft[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*models.Draft, error) {
	var value string
	var updatedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM drafts WHERE key = ?`, key).
		Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft[%s]: %w", key, err)
	}
	return &models.Draft{Key: key, Value: []byte(value), UpdatedAt: models.MillisToTime(updatedAt)}, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete draft[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Draft, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM drafts ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var result []models.Draft
	for rows.Next() {
		var d models.Draft
		var value string
		var updatedAt int64
		if err := rows.Scan(&d.Key, &value, &updatedAt); err != nil {
			return nil, err
		}
		d.Value = []byte(value)
		d.UpdatedAt = models.MillisToTime(updatedAt)
		result = append(result, d)
	}
	return result, rows.Err()
}

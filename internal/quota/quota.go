// Package quota reports local storage usage and enforces the draft-store
// entry and byte budgets by evicting the oldest-updated drafts first.
package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/metrics"
)

// Usage is a storage estimate for the local database.
type Usage struct {
	UsedBytes  int64 `json:"usedBytes"`
	QuotaBytes int64 `json:"quotaBytes"`
}

// Report summarizes one enforcement pass.
type Report struct {
	Pruned     int   `json:"pruned"`
	BytesFreed int64 `json:"bytesFreed"`
}

// Limits bounds the draft store.
type Limits struct {
	MaxEntries    int
	MaxTotalBytes int64
}

// Manager reads usage from the SQLite file and prunes drafts.
type Manager struct {
	db         *sql.DB
	quotaBytes int64
	log        logging.Logger
}

func NewManager(db *sql.DB, quotaBytes int64, log logging.Logger) *Manager {
	return &Manager{db: db, quotaBytes: quotaBytes, log: log}
}

// Estimate reports how many bytes the database occupies against the
// configured quota, from SQLite's own page accounting.
func (m *Manager) Estimate(ctx context.Context) (Usage, error) {
	var pageCount, pageSize int64
	if err := m.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return Usage{}, fmt.Errorf("read page_count: %w", err)
	}
	if err := m.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Usage{}, fmt.Errorf("read page_size: %w", err)
	}
	return Usage{UsedBytes: pageCount * pageSize, QuotaBytes: m.quotaBytes}, nil
}

// EnforceDraftLimits evicts the oldest-updated drafts until both the entry
// count and total byte size fit the limits. Recency of edit beats access
// frequency for transient drafts, so this is plain LRU-by-age.
func (m *Manager) EnforceDraftLimits(ctx context.Context, limits Limits) (Report, error) {
	var count int
	var totalBytes int64
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM drafts`).
		Scan(&count, &totalBytes)
	if err != nil {
		return Report{}, fmt.Errorf("measure drafts: %w", err)
	}

	if withinBudget(count, totalBytes, limits) {
		return Report{}, nil
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT key, LENGTH(value) FROM drafts ORDER BY updated_at ASC`)
	if err != nil {
		return Report{}, fmt.Errorf("list drafts for eviction: %w", err)
	}
	defer rows.Close()

	type victim struct {
		key  string
		size int64
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.key, &v.size); err != nil {
			return Report{}, err
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return Report{}, err
	}

	var report Report
	for _, v := range victims {
		if withinBudget(count, totalBytes, limits) {
			break
		}
		if _, err := m.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, v.key); err != nil {
			return report, fmt.Errorf("evict draft[%s]: %w", v.key, err)
		}
		count--
		totalBytes -= v.size
		report.Pruned++
		report.BytesFreed += v.size
		metrics.DraftsPruned.Inc()
	}

	if report.Pruned > 0 {
		m.log.Info(ctx, "draft storage limits enforced",
			"pruned", report.Pruned, "bytesFreed", report.BytesFreed)
	}
	return report, nil
}

func withinBudget(count int, totalBytes int64, limits Limits) bool {
	if limits.MaxEntries > 0 && count > limits.MaxEntries {
		return false
	}
	if limits.MaxTotalBytes > 0 && totalBytes > limits.MaxTotalBytes {
		return false
	}
	return true
}

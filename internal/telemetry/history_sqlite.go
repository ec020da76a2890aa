package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout keeps sub-second precision and sorts lexically.
	historyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteHistory implements HistoryRepository using the sample_history table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history repository over an open SQLite handle.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts one sample.
func (r *SQLiteHistory) Record(ctx context.Context, s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sample_history (device_id, cpu, mem, recorded_at) VALUES (?, ?, ?, ?)",
		s.DeviceID,
		s.CPU,
		s.Mem,
		s.At.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting sample history: %w", err)
	}
	return nil
}

// GetHistory returns recent samples for a device, newest first.
func (r *SQLiteHistory) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, cpu, mem, recorded_at
		 FROM sample_history
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sample history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.CPU, &entry.Mem, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning sample history: %w", err)
		}

		at, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entry.At = at

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sample history: %w", err)
	}

	return entries, nil
}

// Prune deletes samples older than olderThan and returns the number removed.
func (r *SQLiteHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sample_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting sample history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

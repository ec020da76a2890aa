package telemetry

import (
	"context"
)

// HistoryEntry is one persisted sample.
type HistoryEntry struct {
	ID int64 `json:"id"`
	Sample
}

// HistoryRepository stores and retrieves recent samples per device.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	Recorder

	// GetHistory returns the most recent samples for deviceID, newest first.
	// limit is clamped to [1, 200]; zero or negative selects 50.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)
}

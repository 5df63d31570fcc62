// Package storage persists discovery snapshots. Each run may be saved as
// one immutable document; rendering and downstream querying stay outside
// this module.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is one persisted discovery run.
type Snapshot struct {
	RunID         uuid.UUID       `json:"run_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Document      json.RawMessage `json:"document"`
	ResourceCount int             `json:"resource_count"`
	LinkCount     int             `json:"link_count"`
	FailureCount  int             `json:"failure_count"`
}

// SnapshotInfo is a listing row without the document body.
type SnapshotInfo struct {
	RunID         uuid.UUID `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	ResourceCount int       `json:"resource_count"`
	LinkCount     int       `json:"link_count"`
	FailureCount  int       `json:"failure_count"`
}

// SnapshotStore is the persistence boundary for discovery runs.
type SnapshotStore interface {
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// SaveSnapshot writes one run. Saving the same run id twice keeps the
	// latest document.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// ListSnapshots returns the most recent runs, newest first.
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error)

	// Close releases the backend connection.
	Close() error
}

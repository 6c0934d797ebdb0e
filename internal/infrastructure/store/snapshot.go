package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrVersionConflict  = errors.New("snapshot version conflict")
)

// Snapshot is the persisted state of one aggregate. Version grows by one on
// every successful write.
type Snapshot struct {
	Key           string          `json:"key"`
	AggregateType string          `json:"aggregate_type"`
	Version       int64           `json:"version"`
	State         json.RawMessage `json:"state"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SnapshotStore persists snapshots with optimistic concurrency.
type SnapshotStore interface {
	// Load returns ErrSnapshotNotFound when the key has never been written.
	Load(ctx context.Context, key string) (*Snapshot, error)
	// CompareAndSwap writes snap only if the stored version equals
	// expectedVersion. An expectedVersion of 0 means the key must not exist.
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, snap *Snapshot) error
	Delete(ctx context.Context, key string) error
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	c := *s
	c.State = append(json.RawMessage(nil), s.State...)
	return &c
}

package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. It is shared by every
// manager in the same process, so it only synchronises one instance.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return cloneSnapshot(snap), nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.snapshots[key]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return ErrVersionConflict
	}
	stored := cloneSnapshot(snap)
	stored.Key = key
	s.snapshots[key] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}

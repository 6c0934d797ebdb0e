package mocks

import (
	"context"
	"sync"

	"github.com/example/storefront-cart/internal/infrastructure/store"
)

// MockSnapshotStore is an in-memory SnapshotStore that records calls and
// lets tests inject failures.
type MockSnapshotStore struct {
	mu    sync.Mutex
	inner *store.MemoryStore

	// For tracking calls in tests
	LoadCalls   []string
	CASCalls    []CASCall
	DeleteCalls []string

	LoadErr   error
	CASErr    error
	DeleteErr error
	// CASCallback runs before the write; a non-nil error aborts it.
	CASCallback func(ctx context.Context, key string, expectedVersion int64, snap *store.Snapshot) error
}

// CASCall records parameters passed to CompareAndSwap
type CASCall struct {
	Key             string
	ExpectedVersion int64
	Snapshot        store.Snapshot
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{inner: store.NewMemoryStore()}
}

func (m *MockSnapshotStore) Load(ctx context.Context, key string) (*store.Snapshot, error) {
	m.mu.Lock()
	m.LoadCalls = append(m.LoadCalls, key)
	err := m.LoadErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Load(ctx, key)
}

func (m *MockSnapshotStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, snap *store.Snapshot) error {
	m.mu.Lock()
	m.CASCalls = append(m.CASCalls, CASCall{Key: key, ExpectedVersion: expectedVersion, Snapshot: *snap})
	err := m.CASErr
	callback := m.CASCallback
	m.mu.Unlock()

	if callback != nil {
		if err := callback(ctx, key, expectedVersion, snap); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	return m.inner.CompareAndSwap(ctx, key, expectedVersion, snap)
}

func (m *MockSnapshotStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, key)
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Delete(ctx, key)
}

// Seed writes a snapshot directly, bypassing recorded calls. It stands in for
// a write made by another instance.
func (m *MockSnapshotStore) Seed(ctx context.Context, key string, expectedVersion int64, snap *store.Snapshot) error {
	return m.inner.CompareAndSwap(ctx, key, expectedVersion, snap)
}

func (m *MockSnapshotStore) CASCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CASCalls)
}

// Reset clears recorded calls and injected errors
func (m *MockSnapshotStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls = nil
	m.CASCalls = nil
	m.DeleteCalls = nil
	m.LoadErr = nil
	m.CASErr = nil
	m.DeleteErr = nil
	m.CASCallback = nil
}

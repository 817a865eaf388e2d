package testutil

import (
	"sync"
	"testing"

	"lensfeed/internal/storage"
)

// NewTestStore creates an in-memory SQLite store with the schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// MapStore is a lens.Store backed by a map. FailSet and FailDelete make the
// corresponding writes fail.
type MapStore struct {
	mu         sync.Mutex
	Values     map[string]string
	FailSet    error
	FailDelete error
}

func NewMapStore() *MapStore {
	return &MapStore{Values: make(map[string]string)}
}

func (m *MapStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Values[key]
	return v, ok, nil
}

func (m *MapStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.Values[key] = value
	return nil
}

func (m *MapStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	for _, k := range keys {
		delete(m.Values, k)
	}
	return nil
}

func (m *MapStore) Close() error { return nil }

// Value returns the stored value for key, or "" if absent.
func (m *MapStore) Value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Values[key]
}

// Has reports whether key is stored.
func (m *MapStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Values[key]
	return ok
}

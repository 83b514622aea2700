package mocks

import (
	"context"
	"sync"
)

// MockStore is a mock implementation of store.Store for testing. Without
// overrides it keeps records in memory.
type MockStore struct {
	GetFunc   func(ctx context.Context, key string) (map[string]string, error)
	SetFunc   func(ctx context.Context, key string, values map[string]string) error
	KeysFunc  func(ctx context.Context, pattern string) ([]string, error)
	CloseFunc func() error

	mu       sync.Mutex
	records  map[string]map[string]string
	sets     int
	patterns []string
}

func (m *MockStore) Get(ctx context.Context, key string) (map[string]string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return m.Record(key), nil
}

func (m *MockStore) Set(ctx context.Context, key string, values map[string]string) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()

	if m.SetFunc != nil {
		if err := m.SetFunc(ctx, key, values); err != nil {
			return err
		}
	}
	m.Put(key, values)
	return nil
}

func (m *MockStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	m.patterns = append(m.patterns, pattern)
	m.mu.Unlock()

	if m.KeysFunc != nil {
		return m.KeysFunc(ctx, pattern)
	}
	return nil, nil
}

func (m *MockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Put stores a record without counting it as a Set call.
func (m *MockStore) Put(key string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[string]map[string]string{}
	}
	record := make(map[string]string, len(values))
	for k, v := range values {
		record[k] = v
	}
	m.records[key] = record
}

// Record returns a copy of the record under key.
func (m *MockStore) Record(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.records[key] {
		out[k] = v
	}
	return out
}

func (m *MockStore) SetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// KeysPatterns returns the patterns Keys was called with, in order.
func (m *MockStore) KeysPatterns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.patterns...)
}

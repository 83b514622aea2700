package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/tide/internal/appmanager"
	"github.com/RezaEskandarii/tide/types"
)

// MockApplicationManager is a mock implementation of appmanager.ApplicationManager
// for testing. Every call is recorded as "<action>:<application id>".
type MockApplicationManager struct {
	AddFunc             func(ctx context.Context, app types.Application) error
	RemoveFunc          func(ctx context.Context, appID string) error
	DeployContainerFunc func(ctx context.Context, appID string, opts appmanager.DeployOptions) error

	mu    sync.Mutex
	calls []string
	added []types.Application
}

func (m *MockApplicationManager) Add(ctx context.Context, app types.Application) error {
	m.record("add:"+app.ID(), app)
	if m.AddFunc != nil {
		return m.AddFunc(ctx, app)
	}
	return nil
}

func (m *MockApplicationManager) Remove(ctx context.Context, appID string) error {
	m.record("remove:"+appID, nil)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, appID)
	}
	return nil
}

func (m *MockApplicationManager) DeployContainer(ctx context.Context, appID string, opts appmanager.DeployOptions) error {
	m.record("deploy:"+appID, nil)
	if m.DeployContainerFunc != nil {
		return m.DeployContainerFunc(ctx, appID, opts)
	}
	return nil
}

func (m *MockApplicationManager) record(call string, app types.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if app != nil {
		m.added = append(m.added, app)
	}
}

// Calls returns the recorded calls in order.
func (m *MockApplicationManager) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Added returns the applications passed to Add, in order.
func (m *MockApplicationManager) Added() []types.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Application(nil), m.added...)
}

// Count returns how many times call was recorded.
func (m *MockApplicationManager) Count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

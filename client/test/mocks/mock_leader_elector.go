package mocks

import (
	"context"
	"sync/atomic"
)

// MockLeaderElector is a mock implementation of lock.LeaderElector for testing.
type MockLeaderElector struct {
	IsControllingLeaderFunc func(ctx context.Context) bool
	ResignFunc              func(ctx context.Context) error

	checks atomic.Int64
}

func (m *MockLeaderElector) IsControllingLeader(ctx context.Context) bool {
	m.checks.Add(1)
	if m.IsControllingLeaderFunc != nil {
		return m.IsControllingLeaderFunc(ctx)
	}
	return false
}

func (m *MockLeaderElector) Resign(ctx context.Context) error {
	if m.ResignFunc != nil {
		return m.ResignFunc(ctx)
	}
	return nil
}

// Checks returns how many times leadership was queried.
func (m *MockLeaderElector) Checks() int64 {
	return m.checks.Load()
}

package lock

import (
	"context"
	"sync/atomic"
)

// StaticLeaderElector reports a fixed answer. Used for single node deployments and tests.
type StaticLeaderElector struct {
	leader atomic.Bool
}

func NewStaticLeaderElector(leader bool) *StaticLeaderElector {
	e := &StaticLeaderElector{}
	e.leader.Store(leader)
	return e
}

func (e *StaticLeaderElector) SetLeader(leader bool) {
	e.leader.Store(leader)
}

func (e *StaticLeaderElector) IsControllingLeader(context.Context) bool {
	return e.leader.Load()
}

func (e *StaticLeaderElector) Resign(context.Context) error {
	e.leader.Store(false)
	return nil
}

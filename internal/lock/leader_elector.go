package lock

import "context"

// LeaderElector tells whether this node is the controlling leader of the cluster.
type LeaderElector interface {
	IsControllingLeader(ctx context.Context) bool
	Resign(ctx context.Context) error
}

// KeepAliver is implemented by electors whose leadership expires unless refreshed.
type KeepAliver interface {
	KeepAlive(ctx context.Context)
}

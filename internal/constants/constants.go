package constants

import "time"

const (
	// JobsKey is the suffix of the store key holding the serialized registry.
	JobsKey = "tideJobs"
	// Delimiter joins the parts of every key in the shared store.
	Delimiter = "::"
	// ContainersPrefix namespaces container records written by the runtime.
	ContainersPrefix = "containers"
	// LeaderKey is the suffix of the Redis lease key.
	LeaderKey = "tideLeader"
)

// Advisory lock ids used by the Postgres leader elector and schema bootstrap.
const (
	MigrationLock = iota + 7100
	LeaderLock
)

const (
	DrainPollInterval = 15 * time.Second
	LockTimeout       = 30 * time.Second
	LeaderLeaseTTL    = 15 * time.Second
)

const (
	Ancestry = "containership.plugin"
	Plugin   = "tide"
)

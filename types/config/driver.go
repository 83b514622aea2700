package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Redis
	Consul
	Memory
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Redis:
		return "redis"
	case Consul:
		return "consul"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// ParseStorageDriver is the inverse of StorageDriver.String.
func ParseStorageDriver(s string) (StorageDriver, bool) {
	for _, d := range []StorageDriver{Postgres, Redis, Consul, Memory} {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

type LeaderDriver int

const (
	PostgresAdvisory LeaderDriver = iota + 1
	RedisLease
	StaticLeader
)

func (d LeaderDriver) String() string {
	switch d {
	case PostgresAdvisory:
		return "postgres"
	case RedisLease:
		return "redis"
	case StaticLeader:
		return "static"
	}
	return "unknown"
}

// ParseLeaderDriver is the inverse of LeaderDriver.String.
func ParseLeaderDriver(s string) (LeaderDriver, bool) {
	for _, d := range []LeaderDriver{PostgresAdvisory, RedisLease, StaticLeader} {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

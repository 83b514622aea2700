package config

import "github.com/RezaEskandarii/tide/internal/constants"

const (
	DefaultDelimiter         = constants.Delimiter
	DefaultContainersPrefix  = constants.ContainersPrefix
	DefaultStorageDriver     = Postgres
	DefaultLeaderDriver      = PostgresAdvisory
	DefaultLockTimeout       = constants.LockTimeout
	DefaultDrainPollInterval = constants.DrainPollInterval
	DefaultFiringWorkers     = 4
	DefaultLeaderLeaseTTL    = constants.LeaderLeaseTTL
	DefaultLogLevel          = "info"
	DefaultExchange          = "tide"
	DefaultCommandQueue      = "tide.applications"
)

package state

import "time"

// FiringStatus is the progress of the latest firing of a job.
type FiringStatus string

const (
	StatusIdle      FiringStatus = "idle"
	StatusDeploying FiringStatus = "deploying"
	StatusDraining  FiringStatus = "draining"
	StatusDrained   FiringStatus = "drained"
	StatusFailed    FiringStatus = "failed"
)

func (s FiringStatus) String() string {
	return string(s)
}

var AllStatuses = []FiringStatus{
	StatusIdle,
	StatusDeploying,
	StatusDraining,
	StatusDrained,
	StatusFailed,
}

type Transition struct {
	From FiringStatus
	To   FiringStatus
}

var ValidTransitions = []Transition{
	{From: StatusIdle, To: StatusDeploying},
	{From: StatusDeploying, To: StatusDraining},
	{From: StatusDeploying, To: StatusFailed},
	{From: StatusDraining, To: StatusDrained},
	// a later firing may start while the previous generation drains
	{From: StatusDraining, To: StatusDeploying},
	{From: StatusDrained, To: StatusDeploying},
	{From: StatusFailed, To: StatusDeploying},
}

func IsValidTransition(from, to FiringStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// FiringState records the latest firing of a job.
type FiringState struct {
	Status    FiringStatus `json:"status"`
	FiredAt   time.Time    `json:"fired_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Error     string       `json:"error,omitempty"`
}

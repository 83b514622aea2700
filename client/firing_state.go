package client

import (
	"sync"
	"time"

	"github.com/RezaEskandarii/tide/internal/state"
	"go.uber.org/zap"
)

// firingStates tracks the latest firing of every job.
type firingStates struct {
	mu     sync.Mutex
	states map[string]state.FiringState
	now    func() time.Time
	logger *zap.SugaredLogger
}

func newFiringStates(logger *zap.SugaredLogger) *firingStates {
	return &firingStates{
		states: map[string]state.FiringState{},
		now:    time.Now,
		logger: logger,
	}
}

// transition moves id to status. Transitions the status machine does not allow are dropped.
func (f *firingStates) transition(id string, to state.FiringStatus, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.states[id]
	from := state.StatusIdle
	if ok {
		from = current.Status
	}
	if !state.IsValidTransition(from, to) {
		f.logger.Debugw("Ignoring firing status change", "id", id, "from", from, "to", to)
		return
	}

	now := f.now()
	next := state.FiringState{Status: to, FiredAt: current.FiredAt, UpdatedAt: now}
	if to == state.StatusDeploying {
		next.FiredAt = now
	}
	if cause != nil {
		next.Error = cause.Error()
	}
	f.states[id] = next
}

func (f *firingStates) get(id string) (state.FiringState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	return s, ok
}

func (f *firingStates) forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
}

package job

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RezaEskandarii/tide/types"
	"github.com/robfig/cron/v3"
)

// Cadence turns schedule expressions into live registrations. *cron.Cron satisfies it.
type Cadence interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
}

// Job wraps a JobConfig and, once activated, the handle of its cadence registration.
// A Job holds at most one handle.
type Job struct {
	config types.JobConfig

	mu      sync.Mutex
	entryID cron.EntryID
}

func New(cfg types.JobConfig) *Job {
	return &Job{config: cfg.Clone()}
}

func (j *Job) ID() string {
	return j.config.ID
}

// Config returns a deep copy of the job configuration.
func (j *Job) Config() types.JobConfig {
	return j.config.Clone()
}

// Schedule registers fn on the job's cadence. Calling it on an already scheduled job is a no-op.
func (j *Job) Schedule(c Cadence, fn func()) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.entryID != 0 {
		return nil
	}
	id, err := c.AddFunc(j.config.Schedule, fn)
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", j.config.ID, err)
	}
	j.entryID = id
	return nil
}

// Cancel releases the cadence registration, if any.
func (j *Job) Cancel(c Cadence) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.entryID == 0 {
		return
	}
	c.Remove(j.entryID)
	j.entryID = 0
}

func (j *Job) Scheduled() bool {
	return j.EntryID() != 0
}

func (j *Job) EntryID() cron.EntryID {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entryID
}

// WithConfig returns a Job for cfg that keeps the current registration when the
// schedule expression did not change. The receiver is not modified.
func (j *Job) WithConfig(cfg types.JobConfig) *Job {
	next := New(cfg)
	if cfg.Schedule == j.config.Schedule {
		next.entryID = j.EntryID()
	}
	return next
}

// Serialize returns the persisted form of the job: its configuration as JSON.
func (j *Job) Serialize() (string, error) {
	b, err := json.Marshal(j.config)
	if err != nil {
		return "", fmt.Errorf("serialize job %q: %w", j.config.ID, err)
	}
	return string(b), nil
}

// Deserialize rebuilds an unscheduled Job from its persisted form.
func Deserialize(raw string) (*Job, error) {
	var cfg types.JobConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("deserialize job: %w", err)
	}
	return &Job{config: cfg}, nil
}

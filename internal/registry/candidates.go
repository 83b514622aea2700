package registry

import (
	"github.com/RezaEskandarii/tide/internal/job"
	"github.com/RezaEskandarii/tide/types"
)

// WithJob returns a copy of current holding cfg under cfg.ID. An existing job
// keeps its schedule registration when the schedule expression is unchanged.
// The job placed in the result is returned alongside it.
func WithJob(current Jobs, cfg types.JobConfig) (Jobs, *job.Job) {
	next := current.clone()
	var j *job.Job
	if existing, ok := current[cfg.ID]; ok {
		j = existing.WithConfig(cfg)
	} else {
		j = job.New(cfg)
	}
	next[cfg.ID] = j
	return next, j
}

// Without returns a copy of current with id omitted, and the omitted job if present.
func Without(current Jobs, id string) (Jobs, *job.Job) {
	next := current.clone()
	removed, ok := next[id]
	if !ok {
		return next, nil
	}
	delete(next, id)
	return next, removed
}

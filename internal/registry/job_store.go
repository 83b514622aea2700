package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/tide/custom_errors"
	"github.com/RezaEskandarii/tide/internal/constants"
	"github.com/RezaEskandarii/tide/internal/job"
	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Jobs maps job id to Job.
type Jobs map[string]*job.Job

// Mutation builds a candidate registry from the current one. It must not modify current.
type Mutation func(current Jobs) (Jobs, error)

// KeyFor returns the store key of the persisted registry for a cluster.
func KeyFor(clusterID, delimiter string) string {
	return strings.Join([]string{clusterID, constants.JobsKey}, delimiter)
}

// JobStore keeps the in-memory registry and its persisted copy in step.
//
// Persist and Reload are mutually exclusive: both hold a single-slot lock for
// the whole store round trip. Waiters queue in arrival order and give up after
// lockTimeout with custom_errors.ErrLockTimeout.
type JobStore struct {
	store       store.Store
	cadence     job.Cadence
	logger      *zap.SugaredLogger
	lockTimeout time.Duration

	key    string
	lock   *semaphore.Weighted
	locked atomic.Bool

	mu   sync.RWMutex
	jobs Jobs
}

func NewJobStore(s store.Store, cadence job.Cadence, logger *zap.SugaredLogger, lockTimeout time.Duration) *JobStore {
	if lockTimeout <= 0 {
		lockTimeout = constants.LockTimeout
	}
	return &JobStore{
		store:       s,
		cadence:     cadence,
		logger:      logger,
		lockTimeout: lockTimeout,
		lock:        semaphore.NewWeighted(1),
		jobs:        Jobs{},
	}
}

// Initialize sets the store key and clears the lock. It must run before any other call.
func (js *JobStore) Initialize(key string) {
	js.key = key
	js.lock = semaphore.NewWeighted(1)
	js.locked.Store(false)
}

func (js *JobStore) Key() string {
	return js.key
}

// holdsLock reports whether a persist or reload currently holds the lock.
func (js *JobStore) holdsLock() bool {
	return js.locked.Load()
}

func (js *JobStore) Get(id string) (*job.Job, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	j, ok := js.jobs[id]
	return j, ok
}

// Schedule activates the live job id with fn. It reports false when id is not
// registered. The lookup and activation happen under the registry read lock so a
// job replaced by a concurrent commit is never activated.
func (js *JobStore) Schedule(id string, fn func()) (bool, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	j, ok := js.jobs[id]
	if !ok {
		return false, nil
	}
	return true, j.Schedule(js.cadence, fn)
}

// Snapshot returns a shallow copy of the live registry.
func (js *JobStore) Snapshot() Jobs {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return js.jobs.clone()
}

// IDs returns the sorted ids of the live registry.
func (js *JobStore) IDs() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	ids := make([]string, 0, len(js.jobs))
	for id := range js.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (js *JobStore) Len() int {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return len(js.jobs)
}

// Persist writes candidate to the store and, only when the write succeeds,
// makes it the live registry.
func (js *JobStore) Persist(ctx context.Context, candidate Jobs) error {
	return js.Update(ctx, func(Jobs) (Jobs, error) {
		return candidate, nil
	})
}

// Update runs mutate against the live registry while holding the lock, persists
// the result and commits it. A failed mutation or write leaves the live registry untouched.
func (js *JobStore) Update(ctx context.Context, mutate Mutation) error {
	if err := js.acquire(ctx); err != nil {
		return err
	}
	defer js.release()

	candidate, err := mutate(js.Snapshot())
	if err != nil {
		return err
	}

	serialized := make(map[string]string, len(candidate))
	for id, j := range candidate {
		raw, err := j.Serialize()
		if err != nil {
			return custom_errors.BadRequest(err, "persist jobs")
		}
		serialized[id] = raw
	}

	if err := js.store.Set(ctx, js.key, serialized); err != nil {
		js.logger.Errorw("Error persisting jobs", "key", js.key, "error", err)
		return custom_errors.Persistence(err, "persist jobs")
	}

	js.mu.Lock()
	previous := js.jobs
	js.jobs = candidate
	js.mu.Unlock()

	js.releaseOrphans(previous, candidate)
	return nil
}

// Reload replaces the live registry with the persisted one. Schedule handles of
// the previous registry are released; callers re-activate them when leading.
// A failed read leaves the registry empty.
func (js *JobStore) Reload(ctx context.Context) error {
	if err := js.acquire(ctx); err != nil {
		return err
	}
	defer js.release()

	persisted, err := js.store.Get(ctx, js.key)
	if err != nil {
		js.logger.Errorw("Error defrosting jobs", "key", js.key, "error", err)
		js.replace(Jobs{})
		return custom_errors.Persistence(err, "reload jobs")
	}

	jobs := make(Jobs, len(persisted))
	for id, raw := range persisted {
		j, err := job.Deserialize(raw)
		if err != nil {
			js.logger.Errorw("Skipping undecodable job", "id", id, "error", err)
			continue
		}
		if j.ID() != id {
			js.logger.Warnw("Persisted job id does not match its key", "key", id, "id", j.ID())
			cfg := j.Config()
			cfg.ID = id
			j = job.New(cfg)
		}
		jobs[id] = j
	}
	js.replace(jobs)
	return nil
}

func (js *JobStore) replace(next Jobs) {
	js.mu.Lock()
	previous := js.jobs
	js.jobs = next
	js.mu.Unlock()

	for _, j := range previous {
		j.Cancel(js.cadence)
	}
}

// releaseOrphans cancels registrations the committed registry no longer carries.
func (js *JobStore) releaseOrphans(previous, committed Jobs) {
	for id, old := range previous {
		entry := old.EntryID()
		if entry == 0 {
			continue
		}
		if next, ok := committed[id]; ok && next.EntryID() == entry {
			continue
		}
		old.Cancel(js.cadence)
	}
}

func (js *JobStore) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, js.lockTimeout)
	defer cancel()

	if err := js.lock.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Mark(errors.Wrapf(err, "waited %s for registry lock", js.lockTimeout), custom_errors.ErrLockTimeout)
	}
	js.locked.Store(true)
	return nil
}

func (js *JobStore) release() {
	js.locked.Store(false)
	js.lock.Release(1)
}

func (j Jobs) clone() Jobs {
	out := make(Jobs, len(j))
	for id, v := range j {
		out[id] = v
	}
	return out
}

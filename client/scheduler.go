package client

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/tide/custom_errors"
	"github.com/RezaEskandarii/tide/internal/appmanager"
	"github.com/RezaEskandarii/tide/internal/constants"
	"github.com/RezaEskandarii/tide/internal/job"
	"github.com/RezaEskandarii/tide/internal/lock"
	"github.com/RezaEskandarii/tide/internal/registry"
	"github.com/RezaEskandarii/tide/internal/state"
	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/RezaEskandarii/tide/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Cadence is the timer driving job firings. *cron.Cron satisfies it.
type Cadence interface {
	job.Cadence
	Start()
	Stop() context.Context
}

// SchedulerConfig carries the cluster identity and tuning of a Scheduler.
type SchedulerConfig struct {
	ClusterID         string
	Delimiter         string
	ContainersPrefix  string
	LockTimeout       time.Duration
	DrainPollInterval time.Duration
	FiringWorkers     int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Delimiter == "" {
		c.Delimiter = constants.Delimiter
	}
	if c.ContainersPrefix == "" {
		c.ContainersPrefix = constants.ContainersPrefix
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = constants.LockTimeout
	}
	if c.DrainPollInterval <= 0 {
		c.DrainPollInterval = constants.DrainPollInterval
	}
	if c.FiringWorkers < 1 {
		c.FiringWorkers = 1
	}
	return c
}

// Scheduler keeps the job registry and, on the controlling leader, fires every
// job on its cadence to redeploy its application.
type Scheduler struct {
	cfg     SchedulerConfig
	jobs    *registry.JobStore
	elector lock.LeaderElector
	apps    appmanager.ApplicationManager
	cadence Cadence
	logger  *zap.SugaredLogger

	firings *semaphore.Weighted
	watches *drainWatcher
	states  *firingStates

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(
	cfg SchedulerConfig,
	s store.Store,
	elector lock.LeaderElector,
	apps appmanager.ApplicationManager,
	cadence Cadence,
	logger *zap.SugaredLogger,
) *Scheduler {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	states := newFiringStates(logger)
	watches := newDrainWatcher(s, cfg.ContainersPrefix, cfg.Delimiter, cfg.DrainPollInterval, logger)
	watches.onDraining = func(appID string) {
		states.transition(appID, state.StatusDraining, nil)
	}
	watches.onDrained = func(appID string) {
		states.transition(appID, state.StatusDrained, nil)
	}
	return &Scheduler{
		cfg:     cfg,
		jobs:    registry.NewJobStore(s, cadence, logger, cfg.LockTimeout),
		elector: elector,
		apps:    apps,
		cadence: cadence,
		logger:  logger,
		firings: semaphore.NewWeighted(int64(cfg.FiringWorkers)),
		watches: watches,
		states:  states,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Initialize loads the persisted registry. Every node keeps a mirror of the
// job set; only the leader activates the schedules.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.jobs.Initialize(registry.KeyFor(s.cfg.ClusterID, s.cfg.Delimiter))
	return s.Reload(ctx)
}

// Reload replaces the registry with the persisted one and, when leading,
// re-activates every job.
func (s *Scheduler) Reload(ctx context.Context) error {
	if err := s.jobs.Reload(ctx); err != nil {
		return err
	}
	if s.isLeader(ctx) {
		for _, id := range s.jobs.IDs() {
			s.activate(id)
		}
	}
	return nil
}

// AddJob persists cfg and, when leading, creates its application and activates
// its schedule. It returns once the application add has been issued; creation and
// activation complete in the background.
func (s *Scheduler) AddJob(ctx context.Context, cfg types.JobConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	leader := s.isLeader(ctx)

	err := s.jobs.Update(ctx, func(current registry.Jobs) (registry.Jobs, error) {
		next, _ := registry.WithJob(current, cfg)
		return next, nil
	})
	if err != nil {
		return err
	}
	s.logger.Debugw("Added job", "id", cfg.ID)

	if !leader {
		return nil
	}

	app := stamp(cfg)
	s.background(func(ctx context.Context) {
		if err := s.apps.Add(ctx, app); err != nil {
			s.logger.Errorw("Error creating tide application", "id", cfg.ID, "error", err)
			return
		}
		s.logger.Debugw("Created tide application", "id", app.ID())
		s.activate(cfg.ID)
	})
	return nil
}

// UpdateJob deep merges patch onto the job's configuration, then removes and
// re-adds the job. An unknown id is merged onto an empty configuration.
func (s *Scheduler) UpdateJob(ctx context.Context, id string, patch map[string]any) error {
	base := types.JobConfig{ID: id}
	if j, ok := s.jobs.Get(id); ok {
		base = j.Config()
	}

	merged, err := mergeConfig(base, patch)
	if err != nil {
		return custom_errors.BadRequest(err, "merge job patch")
	}
	merged.ID = id
	if err := merged.Validate(); err != nil {
		return err
	}

	if err := s.RemoveJob(ctx, id); err != nil && !errors.Is(err, custom_errors.ErrNotFound) {
		return custom_errors.BadRequest(err, "remove job before update")
	}
	return s.AddJob(ctx, merged)
}

// RemoveJob drops id from the persisted registry when leading and asks the
// application manager to remove its application on every node.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	var err error
	if s.isLeader(ctx) {
		err = s.jobs.Update(ctx, func(current registry.Jobs) (registry.Jobs, error) {
			next, removed := registry.Without(current, id)
			if removed == nil {
				return nil, custom_errors.NotFound(id)
			}
			return next, nil
		})
		if err == nil {
			s.states.forget(id)
			s.logger.Debugw("Removed job", "id", id)
		}
	}

	if rmErr := s.apps.Remove(ctx, id); rmErr != nil {
		s.logger.Errorw("Error removing tide application", "id", id, "error", rmErr)
		err = errors.CombineErrors(err, rmErr)
	}
	return err
}

// Job returns the configuration of id.
func (s *Scheduler) Job(id string) (types.JobConfig, error) {
	j, ok := s.jobs.Get(id)
	if !ok {
		return types.JobConfig{}, custom_errors.NotFound(id)
	}
	return j.Config(), nil
}

// FiringState returns the progress of the latest firing of id on this node.
func (s *Scheduler) FiringState(id string) (state.FiringState, bool) {
	return s.states.get(id)
}

// Jobs returns every registered configuration ordered by id.
func (s *Scheduler) Jobs() []types.JobConfig {
	ids := s.jobs.IDs()
	out := make([]types.JobConfig, 0, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs.Get(id); ok {
			out = append(out, j.Config())
		}
	}
	return out
}

// ListJobs pages through Jobs. page starts at 1.
func (s *Scheduler) ListJobs(page, pageSize int) types.PaginationResult[types.JobConfig] {
	return types.Paginate(s.Jobs(), page, pageSize)
}

// Start runs the cadence.
func (s *Scheduler) Start() {
	s.cadence.Start()
	s.logger.Infow("Scheduler started", "cluster", s.cfg.ClusterID, "key", s.jobs.Key(), "jobs", s.jobs.Len())
}

// Stop halts the cadence, cancels drain watches and waits for in-flight work
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	cadenceDone := s.cadence.Stop()

	done := make(chan struct{})
	go func() {
		<-cadenceDone.Done()
		s.wg.Wait()
		s.watches.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isLeader(ctx context.Context) bool {
	return s.elector.IsControllingLeader(ctx)
}

// activate attaches the firing procedure to the live job id. Already active jobs are left alone.
func (s *Scheduler) activate(id string) {
	ok, err := s.jobs.Schedule(id, func() { s.fire(id) })
	if err != nil {
		s.logger.Errorw("Error scheduling job", "id", id, "error", err)
		return
	}
	if !ok {
		s.logger.Debugw("Job removed before activation", "id", id)
	}
}

// background runs fn on its own goroutine unless the scheduler is stopped.
func (s *Scheduler) background(fn func(ctx context.Context)) {
	if !s.track() {
		return
	}
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

package client

import (
	"context"
	"encoding/json"

	"dario.cat/mergo"
	"github.com/RezaEskandarii/tide/internal/appmanager"
	"github.com/RezaEskandarii/tide/internal/constants"
	"github.com/RezaEskandarii/tide/internal/state"
	"github.com/RezaEskandarii/tide/types"
)

// stamp returns the application of cfg tagged as owned by tide. Respawn is
// forced off since the scheduler owns restart timing.
func stamp(cfg types.JobConfig) types.Application {
	app := cfg.Clone().Application
	if app == nil {
		app = types.Application{}
	}
	app["id"] = cfg.ID
	metadata := app.Metadata()
	metadata["ancestry"] = constants.Ancestry
	metadata["plugin"] = constants.Plugin
	app["respawn"] = false
	return app
}

// fire is the cadence callback of job id. It reads the job at fire time, so
// configuration changes that kept the registration are honoured.
func (s *Scheduler) fire(id string) {
	if !s.track() {
		return
	}
	defer s.wg.Done()

	ctx := s.ctx
	if !s.isLeader(ctx) {
		s.logger.Debugw("Skipping firing on non leader", "id", id)
		return
	}
	j, ok := s.jobs.Get(id)
	if !ok {
		return
	}

	if err := s.firings.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.firings.Release(1)

	if err := s.redeploy(ctx, j.Config()); err != nil {
		s.logger.Errorw("Error firing job", "id", id, "error", err)
	}
}

// redeploy tears down the previous generation of the application, creates a
// fresh one, deploys its instances one at a time and starts the drain watch.
func (s *Scheduler) redeploy(ctx context.Context, cfg types.JobConfig) error {
	app := stamp(cfg)
	appID := app.ID()

	s.states.transition(appID, state.StatusDeploying, nil)
	if err := s.deploy(ctx, app, cfg.Instances); err != nil {
		s.states.transition(appID, state.StatusFailed, err)
		return err
	}
	s.logger.Debugw("Deployed tide application", "id", appID, "instances", cfg.Instances)

	if !s.watches.Watch(ctx, appID) {
		s.logger.Debugw("Drain watch already running", "id", appID)
	}
	return nil
}

func (s *Scheduler) deploy(ctx context.Context, app types.Application, instances int) error {
	appID := app.ID()
	if err := s.apps.Remove(ctx, appID); err != nil {
		return err
	}
	if err := s.apps.Add(ctx, app); err != nil {
		return err
	}
	for i := 0; i < instances; i++ {
		if err := s.apps.DeployContainer(ctx, appID, appmanager.DeployOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// mergeConfig deep merges patch onto base. Keys of patch win; nested maps are merged.
func mergeConfig(base types.JobConfig, patch map[string]any) (types.JobConfig, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return types.JobConfig{}, err
	}
	dst := map[string]any{}
	if err := json.Unmarshal(raw, &dst); err != nil {
		return types.JobConfig{}, err
	}
	if dst["application"] == nil {
		delete(dst, "application")
	}

	if err := mergo.Merge(&dst, patch, mergo.WithOverride); err != nil {
		return types.JobConfig{}, err
	}

	raw, err = json.Marshal(dst)
	if err != nil {
		return types.JobConfig{}, err
	}
	var merged types.JobConfig
	if err := json.Unmarshal(raw, &merged); err != nil {
		return types.JobConfig{}, err
	}
	return merged, nil
}

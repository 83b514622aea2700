package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// drainWatcher polls the shared store until the containers of an application
// are gone. At most one watch runs per application id.
type drainWatcher struct {
	store     store.Store
	prefix    string
	delimiter string
	interval  time.Duration
	logger    *zap.SugaredLogger
	// onDraining runs for every Watch call, including absorbed ones.
	onDraining func(appID string)
	// onDrained runs after a watch saw the application drained.
	onDrained func(appID string)

	mu     sync.Mutex
	active map[string]*watch
	wg     sync.WaitGroup
}

// watch counts the firings a running watch absorbed.
type watch struct {
	generation uint64
}

func newDrainWatcher(s store.Store, prefix, delimiter string, interval time.Duration, logger *zap.SugaredLogger) *drainWatcher {
	return &drainWatcher{
		store:     s,
		prefix:    prefix,
		delimiter: delimiter,
		interval:  interval,
		logger:    logger,
		active:    map[string]*watch{},
	}
}

// Watch starts a watch for appID. It returns false when one is already running,
// in which case that watch absorbs this request and polls again before
// reporting the application drained.
func (w *drainWatcher) Watch(ctx context.Context, appID string) bool {
	w.mu.Lock()
	if w.onDraining != nil {
		w.onDraining(appID)
	}
	if cur, ok := w.active[appID]; ok {
		cur.generation++
		w.mu.Unlock()
		return false
	}
	cur := &watch{}
	w.active[appID] = cur
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.run(ctx, appID, cur)
	}()
	return true
}

// Active reports whether a watch for appID is running.
func (w *drainWatcher) Active(appID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[appID]
	return ok
}

// Wait blocks until every running watch has returned.
func (w *drainWatcher) Wait() {
	w.wg.Wait()
}

func (w *drainWatcher) pattern(appID string) string {
	return strings.Join([]string{w.prefix, appID, "*"}, w.delimiter)
}

func (w *drainWatcher) run(ctx context.Context, appID string, cur *watch) {
	w.mu.Lock()
	seen := cur.generation
	w.mu.Unlock()

	for {
		if err := w.poll(ctx, appID); err != nil {
			w.logger.Debugw("Drain watch stopped", "id", appID, "error", err)
			w.mu.Lock()
			delete(w.active, appID)
			w.mu.Unlock()
			return
		}

		w.mu.Lock()
		if cur.generation != seen {
			seen = cur.generation
			w.mu.Unlock()
			w.logger.Debugw("Firing joined drain watch, polling again", "id", appID)
			continue
		}
		delete(w.active, appID)
		if w.onDrained != nil {
			w.onDrained(appID)
		}
		w.mu.Unlock()

		w.logger.Debugw("Tide application drained", "id", appID)
		return
	}
}

// poll waits one interval, then lists the application's containers until none remain.
func (w *drainWatcher) poll(ctx context.Context, appID string) error {
	pattern := w.pattern(appID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.interval):
	}

	return backoff.Retry(
		func() error {
			containers, err := w.store.Keys(ctx, pattern)
			if err != nil {
				w.logger.Debugw("Error listing containers", "id", appID, "error", err)
				return err
			}
			if len(containers) > 0 {
				return fmt.Errorf("%d containers remaining", len(containers))
			}
			return nil
		},
		backoff.WithContext(backoff.NewConstantBackOff(w.interval), ctx),
	)
}

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/tide/custom_errors"
	"github.com/RezaEskandarii/tide/internal/job"
	"github.com/RezaEskandarii/tide/internal/store/memory"
	"github.com/RezaEskandarii/tide/types"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const key = "c1::tideJobs"

// hookedStore delegates to a MemoryStore unless a hook is set.
type hookedStore struct {
	*memory.MemoryStore
	mu      sync.Mutex
	getHook func() error
	setHook func() error
	calls   []string
}

func newHookedStore() *hookedStore {
	return &hookedStore{MemoryStore: memory.NewMemoryStore()}
}

func (s *hookedStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *hookedStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *hookedStore) Get(ctx context.Context, k string) (map[string]string, error) {
	s.record("get:start")
	defer s.record("get:end")
	if s.getHook != nil {
		if err := s.getHook(); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.Get(ctx, k)
}

func (s *hookedStore) Set(ctx context.Context, k string, v map[string]string) error {
	s.record("set:start")
	defer s.record("set:end")
	if s.setHook != nil {
		if err := s.setHook(); err != nil {
			return err
		}
	}
	return s.MemoryStore.Set(ctx, k, v)
}

func newTestJobStore(s *hookedStore, timeout time.Duration) (*JobStore, *cron.Cron) {
	c := cron.New(cron.WithParser(types.CadenceParser))
	js := NewJobStore(s, c, zap.NewNop().Sugar(), timeout)
	js.Initialize(key)
	return js, c
}

func config(id string, instances int) types.JobConfig {
	return types.JobConfig{
		ID:          id,
		Schedule:    "*/5 * * * *",
		Instances:   instances,
		Application: types.Application{"image": "busybox"},
	}
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "c1::tideJobs", KeyFor("c1", "::"))

	js, _ := newTestJobStore(newHookedStore(), time.Second)
	assert.Equal(t, key, js.Key())
}

func TestJobStore_PersistCommitsOnSuccess(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)
	ctx := context.Background()

	candidate, _ := WithJob(js.Snapshot(), config("A", 2))
	require.NoError(t, js.Persist(ctx, candidate))

	assert.Equal(t, []string{"A"}, js.IDs())
	persisted, err := s.MemoryStore.Get(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, persisted, "A")
	assert.Len(t, persisted, 1)
}

func TestJobStore_FailedPersistLeavesRegistryUnchanged(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)
	ctx := context.Background()

	first, _ := WithJob(js.Snapshot(), config("A", 1))
	require.NoError(t, js.Persist(ctx, first))
	before := js.Snapshot()

	s.setHook = func() error { return assert.AnError }
	candidate, _ := WithJob(js.Snapshot(), config("B", 1))
	err := js.Persist(ctx, candidate)

	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrPersistence))
	assert.Equal(t, before, js.Snapshot())
	assert.False(t, js.holdsLock())
}

func TestJobStore_IDsMatchLastPersistedRecord(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)
	ctx := context.Background()

	apply := func(m Mutation) {
		_ = js.Update(ctx, m)
		persisted, err := s.MemoryStore.Get(ctx, key)
		require.NoError(t, err)
		var ids []string
		for id := range persisted {
			ids = append(ids, id)
		}
		assert.ElementsMatch(t, ids, js.IDs())
	}

	apply(func(cur Jobs) (Jobs, error) { next, _ := WithJob(cur, config("A", 1)); return next, nil })
	apply(func(cur Jobs) (Jobs, error) { next, _ := WithJob(cur, config("B", 1)); return next, nil })
	s.setHook = func() error { return assert.AnError }
	apply(func(cur Jobs) (Jobs, error) { next, _ := WithJob(cur, config("C", 1)); return next, nil })
	s.setHook = nil
	apply(func(cur Jobs) (Jobs, error) { next, _ := Without(cur, "A"); return next, nil })
}

func TestJobStore_UpdateMutationErrorSkipsWrite(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)

	err := js.Update(context.Background(), func(Jobs) (Jobs, error) {
		return nil, custom_errors.NotFound("A")
	})
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.Empty(t, s.Calls())
}

func TestJobStore_CommitReleasesDroppedRegistrations(t *testing.T) {
	s := newHookedStore()
	js, c := newTestJobStore(s, time.Second)
	ctx := context.Background()

	candidate, a := WithJob(js.Snapshot(), config("A", 1))
	require.NoError(t, js.Persist(ctx, candidate))
	require.NoError(t, a.Schedule(c, func() {}))
	require.Len(t, c.Entries(), 1)

	// same schedule: registration carried over
	candidate, carried := WithJob(js.Snapshot(), config("A", 4))
	require.NoError(t, js.Persist(ctx, candidate))
	assert.True(t, carried.Scheduled())
	assert.Len(t, c.Entries(), 1)

	// removed: registration released only after the write succeeded
	s.setHook = func() error { return assert.AnError }
	candidate, _ = Without(js.Snapshot(), "A")
	require.Error(t, js.Persist(ctx, candidate))
	assert.Len(t, c.Entries(), 1)

	s.setHook = nil
	require.NoError(t, js.Persist(ctx, candidate))
	assert.Empty(t, c.Entries())
	assert.False(t, carried.Scheduled())
}

func TestJobStore_Reload(t *testing.T) {
	s := newHookedStore()
	js, c := newTestJobStore(s, time.Second)
	ctx := context.Background()

	a, err := job.New(config("A", 2)).Serialize()
	require.NoError(t, err)
	require.NoError(t, s.MemoryStore.Set(ctx, key, map[string]string{"A": a, "broken": "{"}))

	stale, staleJob := WithJob(js.Snapshot(), config("Z", 1))
	js.mu.Lock()
	js.jobs = stale
	js.mu.Unlock()
	require.NoError(t, staleJob.Schedule(c, func() {}))

	require.NoError(t, js.Reload(ctx))

	assert.Equal(t, []string{"A"}, js.IDs())
	reloaded, ok := js.Get("A")
	require.True(t, ok)
	assert.Equal(t, config("A", 2), reloaded.Config())
	assert.False(t, reloaded.Scheduled())
	assert.Empty(t, c.Entries())
}

func TestJobStore_ReloadFailureResetsRegistry(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)
	ctx := context.Background()

	candidate, _ := WithJob(js.Snapshot(), config("A", 1))
	require.NoError(t, js.Persist(ctx, candidate))

	s.getHook = func() error { return assert.AnError }
	err := js.Reload(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrPersistence))
	assert.Equal(t, 0, js.Len())
	assert.False(t, js.holdsLock())
}

func TestJobStore_ReloadAndPersistAreSerialized(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)
	ctx := context.Background()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	s.getHook = func() error {
		close(entered)
		<-unblock
		return nil
	}

	reloadDone := make(chan error, 1)
	go func() { reloadDone <- js.Reload(ctx) }()
	<-entered
	assert.True(t, js.holdsLock())

	persistDone := make(chan error, 1)
	go func() {
		candidate, _ := WithJob(Jobs{}, config("A", 1))
		persistDone <- js.Persist(ctx, candidate)
	}()

	select {
	case <-persistDone:
		t.Fatal("persist ran while reload held the lock")
	case <-time.After(100 * time.Millisecond):
	}

	close(unblock)
	require.NoError(t, <-reloadDone)
	require.NoError(t, <-persistDone)

	assert.Equal(t, []string{"get:start", "get:end", "set:start", "set:end"}, s.Calls())
	assert.Equal(t, []string{"A"}, js.IDs())
}

func TestJobStore_LockTimeout(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, 50*time.Millisecond)
	ctx := context.Background()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	s.getHook = func() error {
		close(entered)
		<-unblock
		return nil
	}
	go func() { _ = js.Reload(ctx) }()
	<-entered

	err := js.Persist(ctx, Jobs{})
	close(unblock)

	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrLockTimeout))
}

func TestJobStore_CallerCancellation(t *testing.T) {
	s := newHookedStore()
	js, _ := newTestJobStore(s, time.Second)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	s.getHook = func() error {
		close(entered)
		<-unblock
		return nil
	}
	go func() { _ = js.Reload(context.Background()) }()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := js.Persist(ctx, Jobs{})
	close(unblock)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidatesDoNotMutateCurrent(t *testing.T) {
	current := Jobs{"A": job.New(config("A", 1))}

	added, j := WithJob(current, config("B", 1))
	assert.Len(t, current, 1)
	assert.Len(t, added, 2)
	assert.Same(t, j, added["B"])

	removedSet, removed := Without(current, "A")
	assert.Len(t, current, 1)
	assert.Empty(t, removedSet)
	assert.Same(t, current["A"], removed)

	_, missing := Without(current, "missing")
	assert.Nil(t, missing)
}

func TestJobStore_Schedule(t *testing.T) {
	s := newHookedStore()
	js, c := newTestJobStore(s, time.Second)
	ctx := context.Background()

	ok, err := js.Schedule("A", func() {})
	require.NoError(t, err)
	assert.False(t, ok)

	candidate, a := WithJob(js.Snapshot(), config("A", 1))
	require.NoError(t, js.Persist(ctx, candidate))

	ok, err = js.Schedule("A", func() {})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, a.Scheduled())

	// second activation is a no-op
	_, err = js.Schedule("A", func() {})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}

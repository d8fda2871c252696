package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/lifecycle"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage/storefake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// blockingValidator counts validations and holds each one until released.
type blockingValidator struct {
	calls   atomic.Int32
	result  atomic.Bool
	started chan struct{}
	release chan struct{}
}

func newBlockingValidator(result bool) *blockingValidator {
	v := &blockingValidator{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
	v.result.Store(result)
	return v
}

func (v *blockingValidator) EnsureValidToken(ctx context.Context) bool {
	v.calls.Add(1)
	v.started <- struct{}{}
	select {
	case <-v.release:
	case <-ctx.Done():
		return false
	}
	return v.result.Load()
}

type validatorFunc func(ctx context.Context) bool

func (f validatorFunc) EnsureValidToken(ctx context.Context) bool { return f(ctx) }

type testFixture struct {
	bus       *lifecycle.Bus
	watcher   *lifecycle.Watcher
	redirects *atomic.Int32
	registry  *prometheus.Registry
}

func setupTestFixture(t *testing.T, validator lifecycle.Validator, native bool, options ...lifecycle.WatcherOption) *testFixture {
	t.Helper()

	bus := lifecycle.NewBus(native)
	redirects := &atomic.Int32{}
	registry := prometheus.NewRegistry()

	options = append([]lifecycle.WatcherOption{lifecycle.WithMetrics(metrics.New(registry))}, options...)
	watcher, err := lifecycle.NewWatcher(lifecycle.Deps{
		Shell:     bus,
		Validator: validator,
		Navigator: session.NavigatorFunc(func(context.Context) { redirects.Add(1) }),
	}, options...)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	t.Cleanup(func() {
		_ = watcher.Stop()
	})

	return &testFixture{bus: bus, watcher: watcher, redirects: redirects, registry: registry}
}

func waitStarted(t *testing.T, v *blockingValidator) {
	t.Helper()
	select {
	case <-v.started:
	case <-time.After(time.Second):
		t.Fatal("validation did not start")
	}
}

func TestNewWatcher_RequiresDeps(t *testing.T) {
	_, err := lifecycle.NewWatcher(lifecycle.Deps{})
	require.Error(t, err)
}

func TestWatcher_OverlappingResumesRunOneValidation(t *testing.T) {
	v := newBlockingValidator(true)
	f := setupTestFixture(t, v, true)

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	waitStarted(t, v)
	f.bus.Publish(lifecycle.StateChange{IsActive: true})

	close(v.release)
	f.watcher.Wait()

	require.Equal(t, int32(1), v.calls.Load())
	require.Zero(t, f.redirects.Load())
	count, err := testutil.GatherAndCount(f.registry, "slater_session_lifecycle_validations_total")
	require.NoError(t, err)
	require.Equal(t, 2, count) // one valid series, one skipped series
}

func TestWatcher_GateReleasedAfterValidation(t *testing.T) {
	var calls atomic.Int32
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool {
		calls.Add(1)
		return true
	}), true)

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()

	require.Equal(t, int32(2), calls.Load())
}

func TestWatcher_BackgroundResetsStalledValidation(t *testing.T) {
	v := newBlockingValidator(true)
	f := setupTestFixture(t, v, true)

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	waitStarted(t, v)

	f.bus.Publish(lifecycle.StateChange{IsActive: false})
	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	waitStarted(t, v)

	close(v.release)
	f.watcher.Wait()
	require.Equal(t, int32(2), v.calls.Load())
}

func TestWatcher_InvalidSessionRedirects(t *testing.T) {
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool { return false }), true)

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()

	require.Equal(t, int32(1), f.redirects.Load())
}

func TestWatcher_PanicFailsClosedAndReleasesGate(t *testing.T) {
	var calls atomic.Int32
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool {
		if calls.Add(1) == 1 {
			panic("bridge exploded")
		}
		return true
	}), true)

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	require.Equal(t, int32(1), f.redirects.Load())

	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, int32(1), f.redirects.Load())
}

func TestWatcher_WaitsForStorageReadiness(t *testing.T) {
	store := storefake.NewFakeStore()
	store.SetReady(false)

	var readyWhenValidated atomic.Bool
	validator := validatorFunc(func(ctx context.Context) bool {
		readyWhenValidated.Store(store.Ready(ctx))
		return true
	})

	bus := lifecycle.NewBus(true)
	watcher, err := lifecycle.NewWatcher(lifecycle.Deps{
		Shell:     bus,
		Validator: validator,
		Navigator: session.NavigatorFunc(func(context.Context) {}),
		Readiness: store,
	}, lifecycle.WithReadinessPolling(50, 5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	bus.Publish(lifecycle.StateChange{IsActive: true})
	time.AfterFunc(20*time.Millisecond, func() { store.SetReady(true) })
	watcher.Wait()

	require.True(t, readyWhenValidated.Load())
}

func TestWatcher_ValidatesEvenIfStorageNeverReady(t *testing.T) {
	store := storefake.NewFakeStore()
	store.SetReady(false)
	var calls atomic.Int32

	bus := lifecycle.NewBus(true)
	watcher, err := lifecycle.NewWatcher(lifecycle.Deps{
		Shell:     bus,
		Validator: validatorFunc(func(context.Context) bool { calls.Add(1); return true }),
		Navigator: session.NavigatorFunc(func(context.Context) {}),
		Readiness: store,
	}, lifecycle.WithReadinessPolling(3, time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	bus.Publish(lifecycle.StateChange{IsActive: true})
	watcher.Wait()
	require.Equal(t, int32(1), calls.Load())
}

func TestWatcher_NoOpOutsideNativeShell(t *testing.T) {
	var calls atomic.Int32
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool { calls.Add(1); return true }), false)

	require.Zero(t, f.bus.ListenerCount())
	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	require.Zero(t, calls.Load())
}

func TestWatcher_StartIsIdempotentAndStopDeregisters(t *testing.T) {
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool { return true }), true)

	require.NoError(t, f.watcher.Start(context.Background()))
	require.Equal(t, 1, f.bus.ListenerCount())

	require.NoError(t, f.watcher.Stop())
	require.Zero(t, f.bus.ListenerCount())
	require.NoError(t, f.watcher.Stop())

	// Remounting registers a single listener again.
	require.NoError(t, f.watcher.Start(context.Background()))
	require.Equal(t, 1, f.bus.ListenerCount())
}

func TestWatcher_ConcurrentResumes(t *testing.T) {
	v := newBlockingValidator(true)
	f := setupTestFixture(t, v, true)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.bus.Publish(lifecycle.StateChange{IsActive: true})
		}()
	}
	wg.Wait()
	waitStarted(t, v)

	close(v.release)
	f.watcher.Wait()
	require.Equal(t, int32(1), v.calls.Load())
}

// capturingShell hands its listener back to the test so events can be delivered
// after the watcher has deregistered.
type capturingShell struct {
	listener func(active bool)
}

type nopSubscription struct{}

func (nopSubscription) Remove() error { return nil }

func (s *capturingShell) IsNative() bool { return true }

func (s *capturingShell) AddStateListener(listener func(active bool)) (lifecycle.Subscription, error) {
	s.listener = listener
	return nopSubscription{}, nil
}

func TestWatcher_IgnoresEventsDeliveredAfterStop(t *testing.T) {
	var calls atomic.Int32
	shell := &capturingShell{}
	gate := &lifecycle.Gate{}
	watcher, err := lifecycle.NewWatcher(lifecycle.Deps{
		Shell:     shell,
		Validator: validatorFunc(func(context.Context) bool { calls.Add(1); return true }),
		Navigator: session.NavigatorFunc(func(context.Context) {}),
	}, lifecycle.WithGate(gate))
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	require.NotNil(t, shell.listener)

	require.NoError(t, watcher.Stop())
	shell.listener(true)
	watcher.Wait()

	require.Zero(t, calls.Load())
	require.False(t, gate.Busy())
}

func TestWatcher_SharedGateSkipsWhileHeldElsewhere(t *testing.T) {
	var calls atomic.Int32
	gate := &lifecycle.Gate{}
	f := setupTestFixture(t, validatorFunc(func(context.Context) bool {
		calls.Add(1)
		return true
	}), true, lifecycle.WithGate(gate))

	ticket, ok := gate.TryAcquire()
	require.True(t, ok)
	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	require.Zero(t, calls.Load())

	require.True(t, gate.Release(ticket))
	f.bus.Publish(lifecycle.StateChange{IsActive: true})
	f.watcher.Wait()
	require.Equal(t, int32(1), calls.Load())
	require.False(t, gate.Busy())
}

// Package lifecycle re-validates the session whenever the host shell brings the app
// back to the foreground.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/internal/retry"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultReadinessPolls    = 10
	defaultReadinessInterval = 100 * time.Millisecond
)

var errNotReady = errors.New("storage not ready")

// Validator decides whether the persisted session is still usable.
type Validator interface {
	EnsureValidToken(ctx context.Context) bool
}

type Deps struct {
	Shell     Shell
	Validator Validator
	Navigator session.Navigator
	Readiness storage.ReadinessProbe // Optional
}

// Watcher bridges host shell transitions into session validation. At most one
// validation runs at a time; resumes that arrive meanwhile are dropped.
type Watcher struct {
	deps    Deps
	gate    *Gate
	metrics *metrics.Metrics

	readinessPolls    int
	readinessInterval time.Duration

	lock    sync.Mutex
	ctx     context.Context
	sub     Subscription
	running sync.WaitGroup
}

type WatcherOption func(*Watcher)

// WithReadinessPolling bounds how long a resume waits for storage to become ready.
func WithReadinessPolling(polls int, interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.readinessPolls = polls
		w.readinessInterval = interval
	}
}

// WithGate shares an in-flight gate with other owners.
func WithGate(g *Gate) WatcherOption {
	return func(w *Watcher) {
		w.gate = g
	}
}

func WithMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) {
		w.metrics = m
	}
}

func NewWatcher(deps Deps, options ...WatcherOption) (*Watcher, error) {
	if deps.Shell == nil {
		return nil, errors.New("[NewWatcher] Shell is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("[NewWatcher] Validator is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewWatcher] Navigator is required")
	}

	w := &Watcher{
		deps:              deps,
		gate:              &Gate{},
		readinessPolls:    defaultReadinessPolls,
		readinessInterval: defaultReadinessInterval,
	}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

// Start registers the state listener. It does nothing on a non-native shell and
// when the watcher is already started. ctx bounds every validation it triggers.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.deps.Shell.IsNative() {
		log.Debug().Msg("Lifecycle watcher disabled outside the native shell")
		return nil
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if w.sub != nil {
		return nil
	}

	sub, err := w.deps.Shell.AddStateListener(w.onStateChange)
	if err != nil {
		return errors.Wrap(err, "[Watcher.Start] add state listener")
	}
	w.ctx = ctx
	w.sub = sub
	log.Debug().Msg("Lifecycle watcher started")
	return nil
}

// Stop deregisters the listener. Events delivered afterwards are ignored.
// Validations already running are not interrupted; use Wait to block until they finish.
func (w *Watcher) Stop() error {
	w.lock.Lock()
	sub := w.sub
	w.sub = nil
	w.lock.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Remove(); err != nil {
		return errors.Wrap(err, "[Watcher.Stop] remove state listener")
	}
	log.Debug().Msg("Lifecycle watcher stopped")
	return nil
}

// Wait blocks until every validation started by the watcher has returned.
func (w *Watcher) Wait() {
	w.running.Wait()
}

func (w *Watcher) onStateChange(active bool) {
	if !active {
		w.gate.Reset()
		log.Debug().Msg("App moved to background")
		return
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	// A shell may still deliver an event it dispatched before Stop.
	if w.sub == nil {
		return
	}

	ticket, ok := w.gate.TryAcquire()
	if !ok {
		log.Debug().Msg("Session validation already in flight, skipping resume")
		w.metrics.LifecycleValidation("skipped")
		return
	}

	// Add under lock so that Wait after Stop sees every validation.
	w.running.Add(1)
	go w.validate(w.ctx, ticket)
}

func (w *Watcher) validate(ctx context.Context, ticket Ticket) {
	defer w.running.Done()
	defer w.gate.Release(ticket)

	valid := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session validation on resume failed")
			valid = false
		}
		w.metrics.LifecycleValidation(validationResult(valid))
		if !valid {
			w.deps.Navigator.RedirectToLogin(ctx)
		}
	}()

	w.waitForReady(ctx)
	valid = w.deps.Validator.EnsureValidToken(ctx)
	if !valid {
		log.Info().Msg("Session invalid on resume, redirecting to login")
	}
}

// waitForReady polls the readiness probe. Giving up is not fatal: the validation
// then runs against whatever the store answers.
func (w *Watcher) waitForReady(ctx context.Context) {
	if w.deps.Readiness == nil {
		return
	}

	policy := retry.Policy{
		Name:        "lifecycle.readiness",
		MaxAttempts: w.readinessPolls,
		Delay:       w.readinessInterval,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		if w.deps.Readiness.Ready(ctx) {
			return nil
		}
		return errNotReady
	})
	if err != nil {
		log.Warn().Err(err).Msg("Storage not ready, validating anyway")
	}
}

func validationResult(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

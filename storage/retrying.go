package storage

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/internal/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultAttempts = 3
	defaultDelay    = 100 * time.Millisecond
)

// Retrying wraps a backend whose Set and Get may fail transiently. Set surfaces the
// error once the attempts are exhausted; Get degrades to "absent" instead.
type Retrying struct {
	store   KeyValueStore
	metrics *metrics.Metrics
	policy  retry.Policy
}

var _ KeyValueStore = (*Retrying)(nil)
var _ ReadinessProbe = (*Retrying)(nil)

type RetryingOption func(*Retrying)

// WithRetryPolicy overrides the default of 3 attempts 100ms apart.
func WithRetryPolicy(attempts int, delay time.Duration) RetryingOption {
	return func(r *Retrying) {
		r.policy.MaxAttempts = attempts
		r.policy.Delay = delay
	}
}

func WithMetrics(m *metrics.Metrics) RetryingOption {
	return func(r *Retrying) {
		r.metrics = m
	}
}

func NewRetrying(store KeyValueStore, options ...RetryingOption) *Retrying {
	r := &Retrying{
		store: store,
		policy: retry.Policy{
			MaxAttempts: defaultAttempts,
			Delay:       defaultDelay,
		},
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Retrying) policyFor(op string) retry.Policy {
	p := r.policy
	p.Name = "storage." + op
	p.OnRetry = func(int, error) { r.metrics.StorageRetry(op) }
	return p
}

// permanent stops the policy on errors another attempt cannot fix.
func permanent(err error) error {
	if errors.Is(err, apperrors.ErrCorrupt) {
		return retry.Permanent(err)
	}
	return err
}

func (r *Retrying) Set(ctx context.Context, key, value string) error {
	err := r.policyFor("set").Do(ctx, func(ctx context.Context) error {
		return permanent(r.store.Set(ctx, key, value))
	})
	if err != nil {
		return errors.Wrapf(err, "[Retrying.Set] failed to set %s", key)
	}
	return nil
}

type lookup struct {
	value string
	ok    bool
}

// Get never returns an error: an unreachable backend reads as an absent key.
func (r *Retrying) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := retry.Get(ctx, r.policyFor("get"), func(ctx context.Context) (lookup, error) {
		v, ok, err := r.store.Get(ctx, key)
		return lookup{value: v, ok: ok}, permanent(err)
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("storage get failed, treating key as absent")
		return "", false, nil
	}
	return res.value, res.ok, nil
}

func (r *Retrying) Remove(ctx context.Context, key string) error {
	return r.store.Remove(ctx, key)
}

func (r *Retrying) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

func (r *Retrying) Keys(ctx context.Context) ([]string, error) {
	return r.store.Keys(ctx)
}

// Ready forwards to the wrapped backend; backends without a probe are always ready.
func (r *Retrying) Ready(ctx context.Context) bool {
	if probe, ok := r.store.(ReadinessProbe); ok {
		return probe.Ready(ctx)
	}
	return true
}

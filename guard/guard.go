// Package guard protects screens and routes that need an authenticated session. The
// check always completes before anything protected is rendered.
package guard

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/internal/retry"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultRetries    = 2
	defaultRetryDelay = 150 * time.Millisecond
	defaultLoginPath  = "/auth/login"
)

var errInvalidSession = errors.New("session invalid")

// Validator decides whether the persisted session is still usable.
type Validator interface {
	EnsureValidToken(ctx context.Context) bool
}

// View is a protected screen.
type View interface {
	ShowLoading()
	Render(ctx context.Context) error
}

type Deps struct {
	Validator Validator
	Navigator session.Navigator
}

type Guard struct {
	deps    Deps
	metrics *metrics.Metrics

	retries    int
	retryDelay time.Duration
	loginPath  string
}

type GuardOption func(*Guard)

// WithRetries sets how many extra checks run after a failed one, and the wait
// between them.
func WithRetries(retries int, delay time.Duration) GuardOption {
	return func(g *Guard) {
		g.retries = retries
		g.retryDelay = delay
	}
}

// WithLoginPath sets where Require redirects unauthenticated requests.
func WithLoginPath(path string) GuardOption {
	return func(g *Guard) {
		g.loginPath = path
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(deps Deps, options ...GuardOption) (*Guard, error) {
	if deps.Validator == nil {
		return nil, errors.New("[guard.New] Validator is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[guard.New] Navigator is required")
	}

	g := &Guard{
		deps:       deps,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		loginPath:  defaultLoginPath,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Check runs EnsureValidToken, retrying a failed check to absorb startup races.
func (g *Guard) Check(ctx context.Context) bool {
	policy := retry.Policy{
		Name:        "guard.check",
		MaxAttempts: g.retries + 1,
		Delay:       g.retryDelay,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		if g.deps.Validator.EnsureValidToken(ctx) {
			return nil
		}
		return errInvalidSession
	})

	ok := err == nil
	g.metrics.GuardCheck(ok)
	return ok
}

// Require only calls next once the session has been checked, and redirects to the
// login path otherwise.
func (g *Guard) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Check(r.Context()) {
			log.Info().Str("path", r.URL.Path).Msg("Unauthenticated request, redirecting to login")
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// Mount shows the loading state, checks the session and then either renders the
// view or redirects to login. The view is never rendered for an invalid session.
func (g *Guard) Mount(ctx context.Context, view View) error {
	if view == nil {
		return errors.New("[Guard.Mount] view is required")
	}

	view.ShowLoading()
	if !g.Check(ctx) {
		g.deps.Navigator.RedirectToLogin(ctx)
		return nil
	}
	if err := view.Render(ctx); err != nil {
		return errors.Wrap(err, "[Guard.Mount] render")
	}
	return nil
}

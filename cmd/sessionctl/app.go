package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/guard"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/lifecycle"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// app is the composition root: every service is built once here and injected.
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	backend  storage.Backend
	manager  *session.Manager
	guard    *guard.Guard
	shell    *lifecycle.Bus
	watcher  *lifecycle.Watcher
	client   *api.Client

	redirects chan struct{}
}

// loginNavigator is where the CLI ends up when the session is gone.
type loginNavigator struct {
	redirects chan<- struct{}
}

func (n loginNavigator) RedirectToLogin(context.Context) {
	log.Warn().Msg("Session ended, please log in again")
	select {
	case n.redirects <- struct{}{}:
	default:
	}
}

func newApp(cfg config.Config) (*app, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	caps := storage.Capabilities{NativeShell: cfg.IsNativePlatform()}
	backend, err := storage.Open(caps, cfg, m)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] open storage")
	}

	redirects := make(chan struct{}, 1)
	navigator := loginNavigator{redirects: redirects}

	authHTTP := &http.Client{Timeout: cfg.GetRefreshTimeout()}
	manager, err := session.NewManager(session.Deps{
		Store:     backend,
		Auth:      session.NewHTTPAuthClient(cfg.GetBaseURL(), authHTTP),
		Navigator: navigator,
	},
		session.WithNativeShell(caps.NativeShell),
		session.WithRefreshHorizon(cfg.GetRefreshHorizon()),
		session.WithRefreshPolicy(cfg.GetRefreshTimeout(), cfg.GetRefreshBackoff()),
		session.WithMetrics(m),
	)
	if err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(err, "[newApp] session manager")
	}

	g, err := guard.New(guard.Deps{Validator: manager, Navigator: navigator},
		guard.WithRetries(cfg.GetGuardRetries(), cfg.GetGuardRetryDelay()),
		guard.WithMetrics(m),
	)
	if err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(err, "[newApp] guard")
	}

	shell := lifecycle.NewBus(caps.NativeShell)
	watcher, err := lifecycle.NewWatcher(lifecycle.Deps{
		Shell:     shell,
		Validator: manager,
		Navigator: navigator,
		Readiness: backend,
	},
		lifecycle.WithReadinessPolling(cfg.GetReadinessPolls(), cfg.GetReadinessInterval()),
		lifecycle.WithMetrics(m),
	)
	if err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(err, "[newApp] lifecycle watcher")
	}

	return &app{
		cfg:       cfg,
		registry:  registry,
		backend:   backend,
		manager:   manager,
		guard:     g,
		shell:     shell,
		watcher:   watcher,
		client:    api.NewClient(cfg.GetBaseURL(), manager, api.WithHTTPClient(&http.Client{Timeout: 30 * time.Second})),
		redirects: redirects,
	}, nil
}

func (a *app) Close() error {
	if err := a.watcher.Stop(); err != nil {
		log.Err(err).Msg("Error stopping lifecycle watcher")
	}
	a.watcher.Wait()
	return a.backend.Close()
}

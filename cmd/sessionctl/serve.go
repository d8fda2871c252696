package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-client/guard"
	"github.com/jrsteele09/go-session-client/lifecycle"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// routes exposes the session to a local shell: protected pages behind the guard,
// lifecycle hooks the host calls on resume and pause, and metrics.
func (a *app) routes() http.Handler {
	mw := []func(http.HandlerFunc) http.HandlerFunc{
		guard.LoggingMiddleware,
		guard.RecoverMiddleware,
		guard.FrameSecurityMiddleware,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", guard.ChainMiddleware(a.loginPage, mw...))
	mux.HandleFunc("GET /dashboard", guard.ChainMiddleware(a.dashboard, append(mw, a.guard.Require)...))
	mux.HandleFunc("POST /lifecycle/resume", guard.ChainMiddleware(a.publish(true), mw...))
	mux.HandleFunc("POST /lifecycle/pause", guard.ChainMiddleware(a.publish(false), mw...))
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

func (a *app) loginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Please log in: sessionctl login -login <email or phone> -password <password>\n")
}

func (a *app) dashboard(w http.ResponseWriter, r *http.Request) {
	user, err := a.client.Me(r.Context())
	if err != nil {
		log.Err(err).Msg("Error fetching profile")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, user)
}

func (a *app) publish(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.shell.Publish(lifecycle.StateChange{IsActive: active})
		w.WriteHeader(http.StatusAccepted)
	}
}

func runServe(ctx context.Context, a *app, _ []string, out io.Writer) error {
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{Addr: a.cfg.GetPort(), Handler: a.routes()}
	errs := make(chan error, 1)
	go func() {
		fmt.Fprintf(out, "Listening on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return errors.Wrap(err, "server.ListenAndServe")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

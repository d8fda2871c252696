package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/devserver"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running devserver")
	}
	log.Info().Msg("Devserver stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName() + " dev")

	api, err := devserver.New(c.GetDevServerSecret(), devserver.WithAccessTTL(c.GetDevServerAccessTTL()))
	if err != nil {
		return err
	}
	if email := config.GetEnv("DEV_SERVER_SEED_LOGIN", ""); email != "" {
		if _, err := api.CreateAccount(email, "", config.GetEnv("DEV_SERVER_SEED_PASSWORD", "Passw0rd")); err != nil {
			return err
		}
		log.Info().Str("login", email).Msg("Seeded account")
	}

	server := &http.Server{Addr: c.GetPort(), Handler: api.Handler()}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(server)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errs:
		return err
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Devserver listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

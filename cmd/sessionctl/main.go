package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Err(err).Msg("sessionctl failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return fmt.Errorf("no command given")
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.GetLogLevel(), cfg.GetEnv())
	if cmd.name == "serve" {
		displayAppname(out, cfg.GetAppName())
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Err(err).Msg("Error closing storage")
		}
	}()

	return cmd.run(ctx, a, args[1:], out)
}

func displayAppname(out io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(out, myFigure.String())
}

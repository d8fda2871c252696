package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/pkg/errors"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string, out io.Writer) error
}

var commands = []command{
	{name: "login", usage: "login -login <email or phone> -password <password> [-remember]", run: runLogin},
	{name: "status", usage: "status", run: runStatus},
	{name: "ensure", usage: "ensure", run: runEnsure},
	{name: "refresh", usage: "refresh", run: runRefresh},
	{name: "me", usage: "me", run: runMe},
	{name: "logout", usage: "logout", run: runLogout},
	{name: "serve", usage: "serve", run: runServe},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: sessionctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(out, "  %s\n", c.usage)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runLogin(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(out)
	login := fs.String("login", "", "email or phone number")
	password := fs.String("password", "", "password")
	remember := fs.Bool("remember", false, "remember the login on this device")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *login == "" {
		if remembered, ok := a.manager.RememberedEmail(ctx); ok {
			*login = remembered
		}
	}
	if *login == "" || *password == "" {
		return errors.New("login and password are required")
	}

	auth, err := a.manager.Login(ctx, session.Credentials{EmailOrPhone: *login, Password: *password}, *remember)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s %s (%s)\n", auth.Data.FirstName, auth.Data.LastName, auth.Data.ID)
	return nil
}

type statusReport struct {
	State         session.State `json:"state"`
	Authenticated bool          `json:"authenticated"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	User          *session.User `json:"user,omitempty"`
}

func runStatus(ctx context.Context, a *app, _ []string, out io.Writer) error {
	current := a.manager.Current(ctx)
	report := statusReport{
		State:         a.manager.State(ctx),
		Authenticated: a.manager.IsAuthenticated(ctx),
		User:          current.User,
	}
	if exp, ok := token.Expiry(current.AccessToken); ok {
		report.ExpiresAt = &exp
	}
	return writeJSON(out, report)
}

func runEnsure(ctx context.Context, a *app, _ []string, out io.Writer) error {
	if !a.guard.Check(ctx) {
		return errors.New("session is not valid")
	}
	fmt.Fprintln(out, "Session is valid")
	return nil
}

func runRefresh(ctx context.Context, a *app, _ []string, out io.Writer) error {
	if _, ok := a.manager.RefreshAccessToken(ctx); !ok {
		return errors.New("refresh failed")
	}
	fmt.Fprintln(out, "Access token refreshed")
	return nil
}

func runMe(ctx context.Context, a *app, _ []string, out io.Writer) error {
	if !a.guard.Check(ctx) {
		a.manager.Logout(ctx)
		return errors.New("session is not valid")
	}
	user, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, user)
}

func runLogout(ctx context.Context, a *app, _ []string, out io.Writer) error {
	a.manager.Logout(ctx)
	fmt.Fprintln(out, "Logged out")
	return nil
}

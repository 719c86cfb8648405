package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xtrntr/brokerclient/internal/broker"
	"github.com/xtrntr/brokerclient/internal/config"
	"github.com/xtrntr/brokerclient/internal/gateway"
	"github.com/xtrntr/brokerclient/internal/logging"
	"github.com/xtrntr/brokerclient/internal/session"
)

// app is what every command runs against. One invocation is one page load.
type app struct {
	client *broker.Client
	store  *session.Store
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

// Main entry point: restores the session, runs one command and exits
func main() {
	global := pflag.NewFlagSet("brokerctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", "", "path to a config file")
	global.Usage = func() { usage(os.Stderr) }
	if err := global.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	args := global.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerctl: %v\n", err)
		os.Exit(1)
	}
	// stdout carries command output, logs go to stderr
	logger, err := logging.NewWithStdout(cfg.Logger, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister, closePersister, err := session.NewPersister(ctx, cfg.Session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerctl: %v\n", err)
		os.Exit(1)
	}
	defer closePersister()

	store, err := session.Open(ctx, persister, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerctl: %v\n", err)
		os.Exit(1)
	}

	nav := gateway.NavigatorFunc(func() {
		fmt.Fprintln(os.Stderr, "brokerctl: session ended, run 'brokerctl login' again")
	})
	gw := gateway.New(gateway.Config{BaseURL: cfg.API.BaseURL, HealthURL: cfg.API.HealthURL},
		store, nav, logger, nil)
	a := &app{
		client: broker.NewClient(gw, store, logger),
		store:  store,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	if err := a.run(ctx, args); err != nil {
		// backend messages are shown as the backend wrote them
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			err = apiErr
		}
		fmt.Fprintf(os.Stderr, "brokerctl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, args []string) error {
	cmd, ok := commands[args[0]]
	if !ok {
		usage(a.stdout)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, args[0], err)
	}
	return cmd.run(ctx, a, fs)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: brokerctl [--config file] <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
}

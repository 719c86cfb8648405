package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/brokerclient/internal/config"
	"github.com/xtrntr/brokerclient/internal/fakebroker"
	"github.com/xtrntr/brokerclient/internal/logging"
)

// Main entry point: seeds an in-memory backend and serves its REST API
func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file")
	addr := pflag.String("addr", "", "listen address, overrides fakebroker.addr")
	cost := pflag.Int("bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for seeded passwords")
	instruments := pflag.StringSlice("instruments", nil, "serve /api/assets/available with these names")
	noSeed := pflag.Bool("no-seed", false, "start without the development accounts")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fakebroker: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.FakeBroker.Addr = *addr
	}
	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fakebroker: %v\n", err)
		os.Exit(1)
	}

	opts := []fakebroker.Option{fakebroker.WithBcryptCost(*cost), fakebroker.WithLogger(logger)}
	if len(*instruments) > 0 {
		opts = append(opts, fakebroker.WithInstruments(*instruments...))
	}
	backend := fakebroker.New(opts...)
	if !*noSeed {
		if err := backend.Seed(fakebroker.DefaultAccounts); err != nil {
			logger.Error("failed to seed accounts", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Handler:           backend.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.FakeBroker.Addr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.FakeBroker.Addr, "error", err)
		os.Exit(1)
	}

	logger.Info("starting fake broker", "addr", ln.Addr().String(), "seeded", !*noSeed)
	if err := serve(ctx, server, ln, 5*time.Second); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// serve runs server on ln until ctx is done, then drains it within grace.
func serve(ctx context.Context, server *http.Server, ln net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

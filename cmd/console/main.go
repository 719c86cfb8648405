package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/xtrntr/brokerclient/internal/broker"
	"github.com/xtrntr/brokerclient/internal/config"
	"github.com/xtrntr/brokerclient/internal/console"
	"github.com/xtrntr/brokerclient/internal/gateway"
	"github.com/xtrntr/brokerclient/internal/logging"
	"github.com/xtrntr/brokerclient/internal/session"
)

// Main entry point: restores the session and serves the console
func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file")
	addr := pflag.String("addr", "", "listen address, overrides console.addr")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerconsole: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Console.Addr = *addr
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerconsole: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("console stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister, closePersister, err := session.NewPersister(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer closePersister()

	store, err := session.Open(ctx, persister, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// the gateway navigates through the console, which needs the client first
	var srv *console.Server
	gw := gateway.New(gateway.Config{BaseURL: cfg.API.BaseURL, HealthURL: cfg.API.HealthURL},
		store, gateway.NavigatorFunc(func() { srv.ToEntry() }), logger, gateway.NewMetrics(reg))
	client := broker.NewClient(gw, store, logger)
	srv = console.New(client, store, logger, reg)

	httpServer := &http.Server{
		Addr:              cfg.Console.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting console", "addr", cfg.Console.Addr, "backend", cfg.API.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down console")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

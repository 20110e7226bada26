// habsync is the sensor synchronization service of the building digital-twin
// dashboard. It polls an OpenHAB instance for mapped item states, ingests
// numeric readings into the shared database, and records an audit entry per
// sync run.
//
// Usage:
//
//	habsync serve [--config <path>] [--verbose]       # HTTP entry point
//	habsync sync-once --id <configId> [--config ...]  # one automatic run, then exit
//	habsync version                                   # print version
//
// Periodic syncing is driven externally: a cron job either runs sync-once or
// POSTs an auto-sync action to the serve endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habsync/internal/config"
	"habsync/internal/engine"
	"habsync/internal/server"
	"habsync/internal/store"
	"habsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "serve":
		return runServe(os.Args[2:])
	case "sync-once":
		return runSyncOnce(os.Args[2:])
	case "version":
		fmt.Println("habsync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q, run 'habsync' for usage", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "habsync: OpenHAB sensor synchronization for the building twin dashboard")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  habsync serve [--config <path>] [--verbose]        Run the HTTP entry point")
	fmt.Fprintln(os.Stderr, "  habsync sync-once --id <configId> [--config ...]   Single sync run, then exit")
	fmt.Fprintln(os.Stderr, "  habsync version                                    Print version")
}

// loadConfig resolves the config path (flag value or default location) and
// loads it.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildEngine opens the store and wires the executor and discoverer.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*store.Store, *engine.Executor, *engine.Discoverer, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	exec := engine.NewExecutor(st, nil, cfg.SyncConcurrency, logger)
	disc := engine.NewDiscoverer(st, nil, cfg.Discovery.ItemTypes, logger)
	return st, exec, disc, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := setupLogger(*verbose)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTelemetry, err := setupTelemetry(ctx, cfg, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()
	if err != nil {
		return err
	}

	st, exec, disc, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	srv := server.New(server.Deps{
		Runner:     exec,
		Discoverer: disc,
		Audit:      st,
		APIToken:   cfg.APIToken,
		CronToken:  cfg.CronToken,
		Logger:     logger,
	})
	httpSrv := server.NewHTTPServer(cfg.ListenAddr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("habsync listening", "addr", cfg.ListenAddr, "db", cfg.DatabasePath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func runSyncOnce(args []string) error {
	fs := flag.NewFlagSet("sync-once", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	configID := fs.String("id", "", "sync configuration id")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configID == "" {
		return fmt.Errorf("--id is required")
	}

	logger := setupLogger(*verbose)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTelemetry, err := setupTelemetry(ctx, cfg, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()
	if err != nil {
		return err
	}

	st, exec, _, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	res, err := exec.Run(ctx, *configID, store.TriggerAutomatic)
	if err != nil {
		return err
	}

	out, _ := json.Marshal(map[string]any{
		"success": true,
		"synced":  res.Synced,
		"total":   res.Total,
		"errors":  res.Errors,
	})
	fmt.Println(string(out))
	return nil
}

// setupTelemetry starts the OTLP providers when configured. The returned
// shutdown func is always safe to defer.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (telemetry.ShutdownFunc, error) {
	if cfg.Telemetry == nil {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		ServiceName:  cfg.Telemetry.ServiceName,
		Headers:      cfg.Telemetry.Headers,
	})
	if err != nil {
		return shutdown, fmt.Errorf("setting up telemetry: %w", err)
	}
	logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	return shutdown, nil
}

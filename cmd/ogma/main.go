package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ogma/internal/bridge"
	"ogma/internal/checkpoint"
	"ogma/internal/config"
	"ogma/internal/gateway"
	"ogma/internal/natsbus"
	"ogma/internal/orchestrator"
	"ogma/internal/scheduler"
	"ogma/internal/store"
	"ogma/internal/vault"
	"ogma/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("ogma %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: ogma <command>\n\nCommands:\n  serve      Start the orchestration service\n  backup     Archive the data directory\n  restore    Restore a data directory archive\n  version    Print version\n")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting ogma", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Gateway credentials may live sealed in the store.
	resolveAPIKey(cfg, db)

	// Checkpoints
	var cps checkpoint.Store
	if cfg.Checkpoint.Enabled {
		cps, err = checkpoint.NewSQLite(cfg.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("init checkpoints: %w", err)
		}
		defer cps.Close()
		slog.Info("checkpoints enabled", "path", cfg.Checkpoint.Path)
	}

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	natsClient, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer natsClient.Close()

	events := natsbus.NewPublisher(natsClient, cfg.NATS.ChannelPrefix)

	// LLM gateway client
	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	// Orchestrator
	app, err := orchestrator.New(cfg, db, cps, gw, events)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	// Bus worker
	worker := bridge.NewWorker(natsClient, events, cfg.NATS.ChannelPrefix, app)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start bridge worker: %w", err)
	}
	defer worker.Close()

	// Scheduler
	sched := scheduler.New(cps, events, cfg.Scheduler, cfg.Checkpoint.Retention)
	go sched.Start(ctx)

	// Web facade
	if cfg.Web.Enabled {
		srv := web.NewServer(app, natsClient, cfg.NATS.ChannelPrefix, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

// resolveAPIKey fills the gateway key from the sealed store secret when
// the environment does not provide one, and seals a provided key for
// later runs. Requires a vault passphrase; without one keys stay in the
// environment only.
func resolveAPIKey(cfg *config.Config, db *store.Store) {
	if cfg.Vault.Passphrase == "" {
		return
	}
	v := vault.New(cfg.Vault.Passphrase)

	if cfg.Gateway.APIKey == "" {
		sealed, err := db.GetSecret("gateway_api_key")
		if err != nil {
			slog.Debug("no sealed gateway key", "error", err)
			return
		}
		key, err := v.OpenString(sealed)
		if err != nil {
			slog.Warn("sealed gateway key unreadable", "error", err)
			return
		}
		cfg.Gateway.APIKey = key
		slog.Info("gateway key loaded from sealed store")
		return
	}

	sealed, err := v.SealString(cfg.Gateway.APIKey)
	if err != nil {
		slog.Warn("gateway key seal failed", "error", err)
		return
	}
	if err := db.SetSecret("gateway_api_key", sealed); err != nil {
		slog.Warn("gateway key store failed", "error", err)
	}
}

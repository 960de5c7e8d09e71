// Command agora runs the artifact store and message router as a
// long-lived process: it loads configuration, wires telemetry, opens
// the SQLite index, and sweeps expired artifacts until interrupted.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/agora/pkg/config"
	"github.com/jllopis/agora/pkg/router"
	"github.com/jllopis/agora/pkg/runtime"
	"github.com/jllopis/agora/pkg/store"
	"github.com/jllopis/agora/pkg/telemetry"

	_ "modernc.org/sqlite"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agora:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	dumpConfig := flag.Bool("dump-config", false, "print the effective config as YAML and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	log := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig("agora", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	db, err := sql.Open("sqlite", cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// Single writer avoids SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	defer db.Close()

	storeMetrics, err := telemetry.NewStoreMetrics()
	if err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}
	routerMetrics, err := telemetry.NewRouterMetrics()
	if err != nil {
		return fmt.Errorf("router metrics: %w", err)
	}

	st, err := store.New(db, cfg.Store.BlobRoot,
		store.WithCacheSize(cfg.Store.CacheSize),
		store.WithMetrics(storeMetrics),
		store.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	rt := router.New(
		router.WithMetrics(routerMetrics),
		router.WithLogger(log),
	)

	local := runtime.NewLocal(rt, st,
		runtime.WithSweepInterval(cfg.Store.SweepInterval),
		runtime.WithSweepTimeout(cfg.Store.SweepTimeout),
	)
	if err := local.Start(context.Background()); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	log.Info("agora.started",
		slog.String("version", version),
		slog.String("db_path", cfg.Store.DBPath),
		slog.String("blob_root", cfg.Store.BlobRoot),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("agora.stopping")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return local.Stop(stopCtx)
}

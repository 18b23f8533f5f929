package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // IANA zones for per-request bucketing on minimal images

	corecfg "github.com/aevon-lab/healthquery/internal/core/config"
	"github.com/aevon-lab/healthquery/internal/core/storage"
	"github.com/aevon-lab/healthquery/internal/core/storage/memory"
	"github.com/aevon-lab/healthquery/internal/core/storage/postgres"
	"github.com/aevon-lab/healthquery/internal/migrations"
	"github.com/aevon-lab/healthquery/internal/pagination"
	"github.com/aevon-lab/healthquery/internal/query"
	"github.com/aevon-lab/healthquery/internal/server"
	"github.com/aevon-lab/healthquery/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "healthquery.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 1. Load Configuration (includes the metric catalog)
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Mode == "debug" {
		level.Set(slog.LevelDebug)
	}
	slog.Info("Loaded config",
		"database_type", cfg.Database.Type,
		"metrics", cfg.Metrics.Len(),
		"time_zone", cfg.Query.TimeZone,
		"week_start", cfg.Query.WeekStart)

	calendar, err := cfg.Query.Calendar()
	if err != nil {
		slog.Error("Invalid query calendar", "error", err)
		os.Exit(1)
	}
	granularity, err := cfg.Query.Granularity()
	if err != nil {
		slog.Error("Invalid default granularity", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Record Source
	source, closeSource, err := openSource(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize record source", "type", cfg.Database.Type, "error", err)
		os.Exit(1)
	}
	defer closeSource()

	// 3. Initialize Telemetry
	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		recorder = telemetry.NewRecorder()
		source = telemetry.InstrumentSource(source, recorder)
	}

	// 4. Initialize Query Engine
	pages := pagination.New(source, cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)
	querySvc := query.NewService(cfg.Metrics, pages, query.Options{
		Calendar:           calendar,
		DefaultGranularity: granularity,
		RequestTimeout:     cfg.Server.RequestTimeout,
		Recorder:           recorder,
	})

	// 5. Initialize Server
	health, _ := source.(storage.HealthChecker)
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), health, cfg.Server.Mode)
	querySvc.RegisterRoutes(srv.Engine)
	if recorder != nil {
		srv.Mount(cfg.Telemetry.Path, recorder.Handler())
	}

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openSource builds the configured record source and its cleanup.
func openSource(cfg corecfg.DatabaseConfig) (storage.RecordSource, func(), error) {
	switch cfg.Type {
	case "memory":
		src := memory.NewSource()
		if cfg.FixturesPath != "" {
			if err := src.LoadFixtures(cfg.FixturesPath); err != nil {
				return nil, nil, err
			}
		}
		slog.Info("[Memory] Record source ready", "records", src.Len())
		return src, func() {}, nil

	default:
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}

		// Migrations run before the adapter validates the schema and prepares statements.
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}

		adapter, err := postgres.NewAdapter(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return adapter, func() {
			if err := adapter.Close(); err != nil {
				slog.Error("Failed to close record source", "error", err)
			}
		}, nil
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Command worker runs the background job pool as its own process against the
// same database as the API server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbfs "github.com/garnizeh/candidates/db"
	"github.com/garnizeh/candidates/internal/config"
	"github.com/garnizeh/candidates/internal/db"
	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/internal/repository/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, _, err := observability.Init(cfg.Sentry, version, logger)
	if err != nil {
		return err
	}
	defer sink.Flush(2 * time.Second)

	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations); err != nil {
		return err
	}

	repo := sqlite.New(database, logger)
	pool := jobs.NewWorkerPool(repo, jobs.Handlers(repo, logger), logger,
		jobs.WithWorkerCount(cfg.Worker.Count),
		jobs.WithPollInterval(cfg.Worker.PollInterval),
		jobs.WithStaleAfter(cfg.Worker.StaleAfter),
		jobs.WithSink(sink),
	)

	pool.Start(ctx)
	logger.Info("worker pool started", slog.Int("workers", cfg.Worker.Count), slog.String("database", cfg.DatabasePath))

	<-ctx.Done()
	logger.Info("stopping worker pool")
	pool.Stop()

	return nil
}

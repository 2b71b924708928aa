package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/candidates/api"
	dbfs "github.com/garnizeh/candidates/db"
	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/config"
	"github.com/garnizeh/candidates/internal/db"
	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/internal/repository/sqlite"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	api.SetLogger(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting candidates server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, sentryMiddleware, err := observability.Init(cfg.Sentry, version, logger)
	if err != nil {
		return err
	}
	defer sink.Flush(2 * time.Second)

	// Open database connection
	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("error closing db", slog.Any("err", err))
		}
	}()

	if err := db.Migrate(ctx, database, dbfs.Migrations); err != nil {
		return err
	}

	repo := sqlite.New(database, logger)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.TokenDuration)
	if err != nil {
		return err
	}

	if cfg.Worker.Embedded {
		pool := jobs.NewWorkerPool(repo, jobs.Handlers(repo, logger), logger,
			jobs.WithWorkerCount(cfg.Worker.Count),
			jobs.WithPollInterval(cfg.Worker.PollInterval),
			jobs.WithStaleAfter(cfg.Worker.StaleAfter),
			jobs.WithSink(sink),
		)
		pool.Start(ctx)
		defer pool.Stop()
		logger.Info("embedded worker pool started", slog.Int("workers", cfg.Worker.Count))
	}

	handler := api.SetupRoutes(api.Deps{
		Config:           cfg,
		Version:          version,
		BuildTime:        buildTime,
		Users:            repo,
		Candidates:       repo,
		Logs:             repo,
		Jobs:             repo,
		Queue:            jobs.NewQueue(repo),
		Hasher:           auth.NewPasswordHasher(cfg.BcryptCost),
		Tokens:           tokens,
		Sink:             sink,
		SentryMiddleware: sentryMiddleware,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

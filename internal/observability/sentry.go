package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/garnizeh/candidates/internal/config"
)

// SentrySink reports through the Sentry hub bound to the request context,
// falling back to a clone of the current hub.
type SentrySink struct{}

var _ Sink = SentrySink{}

// Init configures the Sentry SDK. With an empty DSN it returns a NopSink and
// the returned middleware is a pass-through.
func Init(cfg config.SentryConfig, release string, logger *slog.Logger) (Sink, func(http.Handler) http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		logger.Info("sentry disabled: no dsn configured")
		return NopSink{}, func(next http.Handler) http.Handler { return next }, nil
	}

	if cfg.Release != "" {
		release = cfg.Release
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		SendDefaultPII:   cfg.SendDefaultPII,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sentry init: %w", err)
	}

	handler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	})

	logger.Info("sentry enabled", slog.String("environment", cfg.Environment), slog.String("release", release))
	return SentrySink{}, handler.Handle, nil
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return sentry.CurrentHub().Clone()
}

func (SentrySink) CaptureException(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

func (SentrySink) CaptureMessage(ctx context.Context, msg string, level Level, tags map[string]string) {
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(level))
		scope.SetTags(tags)
		hub.CaptureMessage(msg)
	})
}

func (SentrySink) Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func sentryLevel(l Level) sentry.Level {
	switch l {
	case LevelInfo:
		return sentry.LevelInfo
	case LevelWarning:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

// Package report forwards account-level failures to an error tracker
package report

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/getsentry/sentry-go"
)

type (
	// Reporter receives failures that need operator attention
	Reporter interface {
		Report(ctx context.Context, err error, tags map[string]string)
		Flush(timeout time.Duration) bool
	}

	// Sentry reports to a Sentry project through its own hub
	Sentry struct {
		hub *sentry.Hub
	}

	// Logger reports by logging at error level
	Logger struct {
		log *slog.Logger
	}
)

var (
	_ Reporter = (*Sentry)(nil)
	_ Reporter = (*Logger)(nil)
)

// NewSentry creates a Sentry reporter. An empty dsn yields a client that
// drops every event
func NewSentry(dsn, env, release string) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return &Sentry{
		hub: sentry.NewHub(client, sentry.NewScope()),
	}, nil
}

// Report captures err with tags on a fresh scope
func (s *Sentry) Report(
	_ context.Context, err error, tags map[string]string,
) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

// NewLogger creates a reporter that logs through lg
func NewLogger(lg *slog.Logger) *Logger {
	if lg == nil {
		lg = slog.Default()
	}
	return &Logger{log: lg}
}

// Report logs err with tags as attributes
func (l *Logger) Report(
	ctx context.Context, err error, tags map[string]string,
) {
	if err == nil {
		return
	}
	attrs := make([]any, 0, len(tags)+1)
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		attrs = append(attrs, slog.String(k, tags[k]))
	}
	attrs = append(attrs, slog.Any("error", err))
	l.log.ErrorContext(ctx, "Failure reported", attrs...)
}

// Flush is a no-op for a Logger
func (l *Logger) Flush(time.Duration) bool {
	return true
}

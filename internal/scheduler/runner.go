// Package scheduler re-invokes recurring generation on a fixed interval while
// the process is running.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/pocket-ledger/internal/application"
	"github.com/example/pocket-ledger/internal/logging"
)

// Generator runs one generation pass. *application.GenerationService satisfies it.
type Generator interface {
	Run(ctx context.Context, opts application.RunOptions) (application.GenerationReport, error)
}

// Runner triggers generation once at start and then on every interval tick.
type Runner struct {
	generator Generator
	interval  time.Duration
	logger    *slog.Logger
}

// NewRunner constructs a runner. A non-positive interval disables the periodic
// passes, leaving only the startup pass.
func NewRunner(generator Generator, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{generator: generator, interval: interval, logger: logger}
}

// Start blocks until ctx ends. Pass failures are logged and never stop the loop.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.generator == nil {
		return errors.New("scheduler: runner has no generator")
	}

	r.RunOnce(ctx)
	if r.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and logs its outcome. A pass that finds another
// one in flight is treated as done.
func (r *Runner) RunOnce(ctx context.Context) (application.GenerationReport, bool) {
	logger := r.loggerFor(ctx)

	report, err := r.generator.Run(ctx, application.RunOptions{})
	switch {
	case err == nil:
	case errors.Is(err, application.ErrGenerationInProgress):
		logger.DebugContext(ctx, "generation pass already in flight")
		return report, false
	case errors.Is(err, context.Canceled):
		return report, false
	default:
		logger.ErrorContext(ctx, "scheduled generation failed", "error", err, "error_kind", application.ErrorKind(err))
		return report, false
	}

	if len(report.Failures) > 0 {
		logger.WarnContext(ctx, "scheduled generation finished with failures",
			"failures", len(report.Failures),
			"message", report.UserMessage,
		)
	}
	return report, true
}

func (r *Runner) loggerFor(ctx context.Context) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = r.logger
	}
	return logger.With("component", "scheduler.Runner", "interval", r.interval)
}

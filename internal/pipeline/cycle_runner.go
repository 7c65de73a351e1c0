package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/service"
)

// CycleRunner runs one evaluation cycle.
type CycleRunner interface {
	Run(ctx context.Context) (domain.CycleReport, error)
}

// CycleScheduler triggers evaluation cycles on a cron schedule.
type CycleScheduler struct {
	cycles     CycleRunner
	runOnStart bool
	logger     *slog.Logger
}

// NewCycleScheduler creates a CycleScheduler.
func NewCycleScheduler(cycles CycleRunner, runOnStart bool, logger *slog.Logger) *CycleScheduler {
	return &CycleScheduler{
		cycles:     cycles,
		runOnStart: runOnStart,
		logger:     logger.With(slog.String("component", "cycle_scheduler")),
	}
}

// RunOnce runs a single cycle. A cycle already started by the HTTP trigger
// is not an error.
func (s *CycleScheduler) RunOnce(ctx context.Context) error {
	_, err := s.cycles.Run(ctx)
	if errors.Is(err, service.ErrCycleInProgress) {
		s.logger.InfoContext(ctx, "cycle already running, trigger skipped")
		return nil
	}
	return err
}

// RunCron runs cycles on cronExpr until ctx is cancelled, optionally once
// immediately.
func (s *CycleScheduler) RunCron(ctx context.Context, cronExpr string) error {
	if s.runOnStart {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "startup cycle failed", slog.String("error", err.Error()))
		}
	}
	return runCron(ctx, "cycle", cronExpr, s.RunOnce, s.logger)
}

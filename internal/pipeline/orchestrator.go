package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the scheduled goroutines of the daemon: evaluation
// cycles and, when enabled, cold-storage archival.
type Orchestrator struct {
	cycles      *CycleScheduler
	archiver    *Archiver
	cycleCron   string
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. archiver may be nil.
func NewOrchestrator(
	cycles *CycleScheduler,
	archiver *Archiver,
	cycleCron string,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cycles:      cycles,
		archiver:    archiver,
		cycleCron:   cycleCron,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every scheduled job in an errgroup. It returns when ctx is
// cancelled, or with the first job error that was not caused by shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.String("cycle_cron", o.cycleCron),
		slog.String("archive_cron", o.archiveCron),
		slog.Bool("archive_enabled", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.cycles.RunCron(ctx, o.cycleCron)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("cycle scheduler: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Archiver moves trade events past the retention window to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Cutoff is the timestamp before which events are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run and returns the number of events moved.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveTradeEvents(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archiving trade events before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("trade_events_archived", n))
	return n, nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled,
// e.g. "0 3 1 * *" for 03:00 on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	return runCron(ctx, "archive", cronExpr, func(ctx context.Context) error {
		_, err := a.Run(ctx)
		return err
	}, a.logger)
}

// ArchiveSummary describes what cold storage currently holds.
type ArchiveSummary struct {
	Objects     int
	TotalBytes  int64
	Newest      string
	NewestCount int
}

// Verify lists the archived batches and decodes the newest one, so a broken
// export is noticed before the rows it replaced are needed.
func (a *Archiver) Verify(ctx context.Context) (ArchiveSummary, error) {
	infos, err := a.blobArchiver.Archives(ctx)
	if err != nil {
		return ArchiveSummary{}, fmt.Errorf("listing archives: %w", err)
	}
	var sum ArchiveSummary
	for _, info := range infos {
		sum.Objects++
		sum.TotalBytes += info.Size
	}
	if len(infos) == 0 {
		return sum, nil
	}

	sum.Newest = infos[len(infos)-1].Path
	events, err := a.blobArchiver.ReadArchive(ctx, sum.Newest)
	if err != nil {
		return sum, fmt.Errorf("reading archive %s: %w", sum.Newest, err)
	}
	sum.NewestCount = len(events)
	a.logger.InfoContext(ctx, "archive verified",
		slog.Int("objects", sum.Objects),
		slog.Int64("bytes", sum.TotalBytes),
		slog.String("newest", sum.Newest),
		slog.Int("newest_events", sum.NewestCount),
	)
	return sum, nil
}

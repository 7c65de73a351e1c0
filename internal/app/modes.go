package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/pipeline"
	"github.com/alanyoungcy/pairbot/internal/server"
	"github.com/alanyoungcy/pairbot/internal/server/handler"
	"github.com/alanyoungcy/pairbot/internal/server/ws"
	"github.com/alanyoungcy/pairbot/internal/store/postgres"
)

// OnceMode seeds the state table, runs a single evaluation cycle and exits.
// It fails only when the risk gate cannot be read.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.States.Seed(ctx, deps.Cycles.Pairs()); err != nil {
		return fmt.Errorf("once: seed state: %w", err)
	}

	report, err := deps.Cycles.Run(ctx)
	if err != nil {
		return fmt.Errorf("once: %w", err)
	}
	for _, r := range report.Results {
		attrs := []any{
			slog.String("pair", r.PairID),
			slog.String("outcome", string(r.Outcome)),
		}
		if r.Reason != "" {
			attrs = append(attrs, slog.String("reason", string(r.Reason)))
		}
		if r.Outcome == domain.OutcomeTransitioned {
			attrs = append(attrs, slog.String("from", string(r.From)), slog.String("to", string(r.To)))
		}
		a.logger.InfoContext(ctx, "pair result", attrs...)
	}
	return nil
}

// DaemonMode runs the cycle and archive schedules together with the HTTP
// API and WebSocket hub until ctx is cancelled.
func (a *App) DaemonMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.States.Seed(ctx, deps.Cycles.Pairs()); err != nil {
		return fmt.Errorf("daemon: seed state: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}
	orch := pipeline.NewOrchestrator(
		pipeline.NewCycleScheduler(deps.Cycles, a.cfg.Schedule.RunOnStart, a.logger),
		archiver,
		a.cfg.Schedule.CycleCron,
		a.cfg.Archive.Cron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// VerifyMode checks that the engine's tables exist and logs their row
// counts. A missing table is an error. When object storage is configured the
// newest trade-log archive is read back as well.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies) error {
	statuses, err := deps.Postgres.VerifyTables(ctx, postgres.RequiredTables)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	var missing []string
	for _, st := range statuses {
		if !st.Exists {
			missing = append(missing, st.Name)
			a.logger.ErrorContext(ctx, "table missing", slog.String("table", st.Name))
			continue
		}
		a.logger.InfoContext(ctx, "table ok",
			slog.String("table", st.Name),
			slog.Int64("rows", st.Rows),
		)
	}
	if len(missing) > 0 {
		return fmt.Errorf("verify: %d table(s) missing: %v", len(missing), missing)
	}

	if _, err := deps.Risk.Current(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("verify: %w", err)
		}
		a.logger.WarnContext(ctx, "market_sentiment is empty; cycles will abort until a reading is submitted")
	}

	a.logger.InfoContext(ctx, "database verified", slog.Int("tables", len(statuses)))

	if deps.Archiver != nil {
		if _, err := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).Verify(ctx); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	return nil
}

// ArchiveMode runs one archive pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("archive: object storage is not configured")
	}
	n, err := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive finished", slog.Int64("archived", n))
	return nil
}

// startHTTPServer adds the HTTP server, and the WebSocket hub when the signal
// bus is wired, to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checks := map[string]handler.Pinger{
		"postgres": deps.Postgres,
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	if deps.S3 != nil {
		checks["s3"] = handler.PingFunc(deps.S3.Health)
	}
	if deps.Exchange != nil {
		checks["exchange"] = handler.PingFunc(deps.Exchange.Ping)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Pairs:  handler.NewPairHandler(deps.Cycles, deps.States, a.logger),
		Trades: handler.NewTradeHandler(deps.TradeLog, a.logger),
		Risk:   handler.NewRiskHandler(deps.Risk, a.cfg.Engine.MaxRiskScore, a.logger),
		Cycle:  handler.NewCycleHandler(deps.Cycles, a.logger),
		Audit:  handler.NewAuditHandler(deps.Audit, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Pairs:     len(a.cfg.Pairs),
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.RateWindow(),
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

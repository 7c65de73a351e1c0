// Package notify delivers operator alerts for trade events and cycle
// outcomes to every configured channel (Telegram, Discord). Alerts are
// filtered by event kind so operators only receive what they subscribed to.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Event kinds accepted by the notify.events filter.
const (
	EventEntry       = "entry"
	EventExit        = "exit"
	EventCycleHalted = "cycle_halted"
	EventError       = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. Only event kinds
// listed in events are forwarded; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends a message if its event kind passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyTrade formats and sends a trade event alert.
func (n *Notifier) NotifyTrade(ctx context.Context, ev domain.TradeEvent) error {
	kind := EventEntry
	if ev.Type == domain.TradeEventExit {
		kind = EventExit
	}
	title := fmt.Sprintf("%s %s", ev.Type, ev.PairID)
	var b strings.Builder
	fmt.Fprintf(&b, "side: %s\nz: %.2f\nratio: %.6f", ev.Side, ev.ZScore, ev.Ratio)
	if ev.Type == domain.TradeEventExit {
		fmt.Fprintf(&b, "\npnl: %.2f%%\nreason: %s", ev.PnLPercent, ev.ExitReason)
	}
	return n.Notify(ctx, kind, title, b.String())
}

// NotifyCycle alerts on a halted cycle or on pairs that failed internally.
// Ordinary cycles are not reported.
func (n *Notifier) NotifyCycle(ctx context.Context, report domain.CycleReport) error {
	if report.Halted {
		return n.Notify(ctx, EventCycleHalted, "cycle halted",
			fmt.Sprintf("risk score %d (%s) above ceiling; no pairs evaluated", report.RiskScore, report.RiskLevel))
	}
	var failed []string
	for _, r := range report.Results {
		if r.Outcome == domain.OutcomeSkipped && (r.Reason == domain.SkipInternal || r.Reason == domain.SkipStateError || r.Reason == domain.SkipLockUnavailable) {
			failed = append(failed, fmt.Sprintf("%s: %s", r.PairID, r.Reason))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return n.Notify(ctx, EventError, "cycle errors", strings.Join(failed, "\n"))
}

// dispatch sends to every sender. One failing sender does not stop delivery
// to the rest; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

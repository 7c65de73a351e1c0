package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// cronField represents a parsed cron field that can match against a value.
// star is set for any field starting with "*", including "*/n".
type cronField struct {
	wildcard bool
	star     bool
	values   map[int]bool
}

func (f cronField) matches(val int) bool {
	return f.wildcard || f.values[val]
}

// parseCronField parses one field. Supported forms are "*", "*/n", "a",
// "a-b", "a-b/n" and comma-separated lists of those.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true, star: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = n
		}

		start, end := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			if end, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			start = v
			if !hasStep {
				end = v
			}
		}
		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("cron field %q outside %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			values[v] = true
		}
	}
	return cronField{star: strings.HasPrefix(field, "*"), values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.month.matches(int(t.Month())) &&
		c.matchesDay(t)
}

func (c parsedCron) matchesDay(t time.Time) bool {
	dom := c.dayOfMonth.matches(t.Day())
	dow := c.dayOfWeek.matches(int(t.Weekday()))
	if c.dayOfMonth.star || c.dayOfWeek.star {
		return dom && dow
	}
	return dom || dow
}

// parseCron parses a 5-field "minute hour day-of-month month day-of-week"
// expression. As in standard cron, when both day fields are restricted a
// time matches if either of them does; a day field starting with "*"
// combines with the other by AND.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}

	return parsedCron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}

// runCron calls job at every trigger of cronExpr until ctx is cancelled.
// Triggers are computed after each job returns, so runs never overlap and a
// run that overshoots a trigger skips it. Job errors are logged only.
func runCron(ctx context.Context, name, cronExpr string, job func(context.Context) error, logger *slog.Logger) error {
	if _, err := parseCron(cronExpr); err != nil {
		return fmt.Errorf("%s: parsing cron expression %q: %w", name, cronExpr, err)
	}
	logger.Info("cron started", slog.String("job", name), slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		wait := time.Until(next)
		logger.Debug("waiting for next cron trigger",
			slog.String("job", name),
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("cron stopped", slog.String("job", name))
			return ctx.Err()
		case <-timer.C:
			if err := job(ctx); err != nil {
				logger.Error("cron job failed",
					slog.String("job", name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

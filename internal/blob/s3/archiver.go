package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart uploader.
const multipartThreshold = 8 << 20

// tradeLogPrefix is where archived trade-log batches live.
const tradeLogPrefix = "archive/trade_logs/"

// defaultBatchSize bounds how many trade events are exported per object.
const defaultBatchSize = 5000

// TradeArchiveStore is the slice of the trade log the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeEvent, error)
	DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error)
}

// ArchiveImpl implements domain.Archiver. It exports trade events older than
// the cutoff to S3 as JSONL, one object per batch, and removes them from the
// primary store only after the upload succeeded.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	trades    TradeArchiveStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates a new ArchiveImpl. A batchSize <= 0 uses the default.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	trades TradeArchiveStore,
	audit domain.AuditStore,
	batchSize int,
) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ArchiveImpl{
		writer:    writer,
		reader:    reader,
		trades:    trades,
		audit:     audit,
		batchSize: batchSize,
	}
}

// archivedEvent is the JSONL row layout.
type archivedEvent struct {
	ID         string  `json:"id"`
	Pair       string  `json:"pair"`
	Type       string  `json:"type"`
	Side       string  `json:"side"`
	Ratio      float64 `json:"price"`
	ZScore     float64 `json:"z_score"`
	PnLPercent float64 `json:"pnl_percent"`
	Comment    string  `json:"comment"`
	ExitReason string  `json:"exit_reason,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

func toArchived(ev domain.TradeEvent) archivedEvent {
	return archivedEvent{
		ID:         ev.ID,
		Pair:       ev.PairID,
		Type:       string(ev.Type),
		Side:       string(ev.Side),
		Ratio:      ev.Ratio,
		ZScore:     ev.ZScore,
		PnLPercent: ev.PnLPercent,
		Comment:    ev.Comment,
		ExitReason: string(ev.ExitReason),
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func fromArchived(row archivedEvent) (domain.TradeEvent, error) {
	ts, err := time.Parse(time.RFC3339Nano, row.Timestamp)
	if err != nil {
		return domain.TradeEvent{}, fmt.Errorf("event %s timestamp: %w", row.ID, err)
	}
	return domain.TradeEvent{
		ID:         row.ID,
		PairID:     row.Pair,
		Type:       domain.TradeEventType(row.Type),
		Side:       domain.PositionType(row.Side),
		Ratio:      row.Ratio,
		ZScore:     row.ZScore,
		PnLPercent: row.PnLPercent,
		Comment:    row.Comment,
		ExitReason: domain.ExitReason(row.ExitReason),
		Timestamp:  ts,
	}, nil
}

// ArchiveTradeEvents moves every trade event older than before to S3 and
// returns how many were archived. An object left behind by an earlier run
// whose delete failed is not uploaded twice.
func (a *ArchiveImpl) ArchiveTradeEvents(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	var paths []string

	for {
		events, err := a.trades.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trade events query: %w", err)
		}
		if len(events) == 0 {
			break
		}

		rows := make([]archivedEvent, len(events))
		ids := make([]string, len(events))
		for i, ev := range events {
			rows[i] = toArchived(ev)
			ids[i] = ev.ID
		}

		path := archivePath("trade_logs", events[0].Timestamp, events[len(events)-1].Timestamp)
		if err := a.upload(ctx, path, rows); err != nil {
			return total, err
		}

		deleted, err := a.trades.DeleteBefore(ctx, before, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trade events prune: %w", err)
		}
		total += deleted
		paths = append(paths, path)

		if deleted == 0 {
			// Nothing removed means the next query returns the same rows.
			return total, fmt.Errorf("s3blob: archive trade events: batch at %s was not pruned", path)
		}
		if len(events) < a.batchSize {
			break
		}
	}

	if total == 0 {
		return 0, nil
	}

	if err := a.audit.Log(ctx, "archive.trade_logs", map[string]any{
		"paths":  paths,
		"count":  total,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return total, fmt.Errorf("s3blob: archive trade events audit log: %w", err)
	}
	return total, nil
}

func (a *ArchiveImpl) upload(ctx context.Context, path string, rows []archivedEvent) error {
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("s3blob: archive trade events head: %w", err)
		}
		if exists {
			return nil
		}
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return fmt.Errorf("s3blob: archive trade events marshal: %w", err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive trade events upload: %w", err)
	}
	return nil
}

// Archives lists the trade-log objects in the bucket, oldest batch first.
func (a *ArchiveImpl) Archives(ctx context.Context) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: list archives: no reader configured")
	}
	infos, err := a.reader.List(ctx, tradeLogPrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: list archives: %w", err)
	}
	// Keys embed the first and last event time, so lexical order is
	// chronological.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// ReadArchive downloads one archived batch and decodes its events.
func (a *ArchiveImpl) ReadArchive(ctx context.Context, path string) ([]domain.TradeEvent, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: read archive %s: no reader configured", path)
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read archive: %w", err)
	}
	defer body.Close()

	var events []domain.TradeEvent
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var row archivedEvent
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("s3blob: read archive %s line %d: %w", path, line, err)
		}
		ev, err := fromArchived(row)
		if err != nil {
			return nil, fmt.Errorf("s3blob: read archive %s line %d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read archive %s: %w", path, err)
	}
	return events, nil
}

// archivePath builds the S3 key for one archived batch, partitioned by the
// month of its first record.
//
//	archive/trade_logs/2026-01/20260101T000000Z_20260131T230000Z.jsonl
func archivePath(kind string, first, last time.Time) string {
	const stamp = "20060102T150405Z"
	return fmt.Sprintf("archive/%s/%s/%s_%s.jsonl",
		kind, first.UTC().Format("2006-01"), first.UTC().Format(stamp), last.UTC().Format(stamp))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

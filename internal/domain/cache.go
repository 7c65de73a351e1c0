package domain

import (
	"context"
	"time"
)

// CandleCache stores recently fetched candle series keyed by symbol and
// timeframe.
type CandleCache interface {
	SetCandles(ctx context.Context, symbol, timeframe string, candles []Candle, ttl time.Duration) error
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelTrade = "ch:trade"
	ChannelCycle = "ch:cycle"
	StreamTrades = "stream:trades"
)

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CandleCache implements domain.CandleCache using one sorted set per
// (symbol, timeframe), scored by candle open time in milliseconds.
//
// Key schema:
//
//	candles:{symbol}:{timeframe} - zset of JSON candles
type CandleCache struct {
	rdb *redis.Client
}

// NewCandleCache creates a CandleCache backed by the given Client.
func NewCandleCache(c *Client) *CandleCache {
	return &CandleCache{rdb: c.Underlying()}
}

func candleKey(symbol, timeframe string) string {
	return "candles:" + symbol + ":" + timeframe
}

// cachedCandle is the JSON form stored in the sorted set.
type cachedCandle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

func encodeCandle(c domain.Candle) ([]byte, error) {
	return json.Marshal(cachedCandle{
		T: c.OpenTime.UnixMilli(), O: c.Open, H: c.High, L: c.Low, C: c.Close, V: c.Volume,
	})
}

func decodeCandle(data []byte) (domain.Candle, error) {
	var cc cachedCandle
	if err := json.Unmarshal(data, &cc); err != nil {
		return domain.Candle{}, err
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(cc.T).UTC(),
		Open:     cc.O, High: cc.H, Low: cc.L, Close: cc.C, Volume: cc.V,
	}, nil
}

// SetCandles replaces the cached series for symbol/timeframe atomically and
// sets its TTL.
func (cc *CandleCache) SetCandles(ctx context.Context, symbol, timeframe string, candles []domain.Candle, ttl time.Duration) error {
	if len(candles) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(candles))
	for _, c := range candles {
		data, err := encodeCandle(c)
		if err != nil {
			return fmt.Errorf("redis: marshal candle %s: %w", symbol, err)
		}
		members = append(members, redis.Z{Score: float64(c.OpenTime.UnixMilli()), Member: data})
	}

	key := candleKey(symbol, timeframe)
	pipe := cc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set candles %s: %w", symbol, err)
	}
	return nil
}

// GetCandles returns the most recent count candles, oldest first. It returns
// domain.ErrNotFound when fewer than count candles are cached.
func (cc *CandleCache) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	if count <= 0 {
		return nil, domain.ErrNotFound
	}
	raw, err := cc.rdb.ZRevRange(ctx, candleKey(symbol, timeframe), 0, int64(count-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get candles %s: %w", symbol, err)
	}
	if len(raw) < count {
		return nil, domain.ErrNotFound
	}

	out := make([]domain.Candle, len(raw))
	for i, s := range raw {
		c, err := decodeCandle([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("redis: unmarshal candle %s: %w", symbol, err)
		}
		out[len(raw)-1-i] = c
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CandleCache = (*CandleCache)(nil)

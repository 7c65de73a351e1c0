package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type stubSource struct {
	series map[string][]domain.Candle
	errs   map[string]error
	asked  []string
}

func (s *stubSource) GetCandles(_ context.Context, symbol, _ string, _ int) ([]domain.Candle, error) {
	s.asked = append(s.asked, symbol)
	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	c, ok := s.series[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type memCandleCache struct {
	data map[string][]domain.Candle
	sets int
	ttl  time.Duration
}

func (m *memCandleCache) SetCandles(_ context.Context, symbol, tf string, candles []domain.Candle, ttl time.Duration) error {
	if m.data == nil {
		m.data = map[string][]domain.Candle{}
	}
	m.sets++
	m.ttl = ttl
	m.data[symbol+"|"+tf] = candles
	return nil
}

func (m *memCandleCache) GetCandles(_ context.Context, symbol, tf string, count int) ([]domain.Candle, error) {
	c, ok := m.data[symbol+"|"+tf]
	if !ok || len(c) < count {
		return nil, domain.ErrNotFound
	}
	return c[len(c)-count:], nil
}

func TestCandidates(t *testing.T) {
	svc := NewMarketService(nil, nil, MarketConfig{QuoteFallbacks: []string{"USDT", "usdc", "BUSD"}}, discardLogger())
	got := svc.Candidates([]string{"ATOM/USDT", "ATOMUSDT"})
	want := []string{"ATOM/USDT", "ATOMUSDT", "ATOM/USDC", "ATOM/BUSD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Candidates = %v, want %v", got, want)
	}
}

func TestFetchSeriesFallsBackAndCaches(t *testing.T) {
	a, _ := legs(revertingSpread(3, 0.1))
	src := &stubSource{series: map[string][]domain.Candle{"CVX/USDC": a}}
	cache := &memCandleCache{}
	svc := NewMarketService(src, cache, MarketConfig{QuoteFallbacks: []string{"USDT", "USDC"}, CacheTTL: time.Minute}, discardLogger())
	svc.now = func() time.Time { return a[2].OpenTime.Add(10 * time.Minute) }

	got, sym, err := svc.FetchSeries(context.Background(), []string{"CVX/USDT"}, "1h", 3)
	if err != nil {
		t.Fatalf("FetchSeries: %v", err)
	}
	if sym != "CVX/USDC" || len(got) != 3 {
		t.Fatalf("sym = %s len = %d", sym, len(got))
	}
	if !reflect.DeepEqual(src.asked, []string{"CVX/USDT", "CVX/USDC"}) {
		t.Fatalf("asked = %v", src.asked)
	}
	if cache.sets != 1 || cache.ttl != time.Minute {
		t.Fatalf("cache sets = %d ttl = %s", cache.sets, cache.ttl)
	}

	src.asked = nil
	if _, sym, err = svc.FetchSeries(context.Background(), []string{"CVX/USDT"}, "1h", 3); err != nil || sym != "CVX/USDC" {
		t.Fatalf("second fetch sym=%s err=%v", sym, err)
	}
	if !reflect.DeepEqual(src.asked, []string{"CVX/USDT"}) {
		t.Fatalf("cached candidate refetched: asked = %v", src.asked)
	}
}

func TestFetchSeriesShortSeriesNotCached(t *testing.T) {
	a, _ := legs(revertingSpread(2, 0.1))
	src := &stubSource{series: map[string][]domain.Candle{"ATOM/USDT": a}}
	cache := &memCandleCache{}
	svc := NewMarketService(src, cache, MarketConfig{CacheTTL: time.Minute}, discardLogger())

	got, _, err := svc.FetchSeries(context.Background(), []string{"ATOM/USDT"}, "1h", 100)
	if err != nil || len(got) != 2 {
		t.Fatalf("len = %d err = %v", len(got), err)
	}
	if cache.sets != 0 {
		t.Fatal("partial series cached")
	}
}

func TestFetchSeriesAllCandidatesFail(t *testing.T) {
	boom := errors.New("503 upstream")
	src := &stubSource{errs: map[string]error{"ATOM/USDC": boom}}
	svc := NewMarketService(src, nil, MarketConfig{QuoteFallbacks: []string{"USDC"}}, discardLogger())

	_, _, err := svc.FetchSeries(context.Background(), []string{"ATOM/USDT"}, "1h", 10)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("last candidate error not wrapped: %v", err)
	}
}

func TestFetchSeriesRejectsUnorderedCandles(t *testing.T) {
	a, _ := legs(revertingSpread(3, 0.1))
	a[2].OpenTime = a[0].OpenTime
	src := &stubSource{series: map[string][]domain.Candle{"ATOM/USDT": a}}
	svc := NewMarketService(src, nil, MarketConfig{}, discardLogger())

	if _, _, err := svc.FetchSeries(context.Background(), []string{"ATOM/USDT"}, "1h", 3); !errors.Is(err, domain.ErrMisalignedSeries) {
		t.Fatalf("expected ErrMisalignedSeries, got %v", err)
	}
}

func TestFetchSeriesCacheFollowsBarBoundary(t *testing.T) {
	a, b := legs(revertingSpread(3, 0.1))
	src := &stubSource{series: map[string][]domain.Candle{"ATOM/USDT": a, "DOT/USDT": b}}
	cache := &memCandleCache{}
	svc := NewMarketService(src, cache, MarketConfig{CacheTTL: 5 * time.Minute}, discardLogger())
	nextOpen := a[2].OpenTime.Add(time.Hour)

	svc.now = func() time.Time { return nextOpen.Add(-2 * time.Minute) }
	if _, _, err := svc.FetchSeries(context.Background(), []string{"ATOM/USDT"}, "1h", 3); err != nil {
		t.Fatal(err)
	}
	if cache.ttl != 2*time.Minute {
		t.Fatalf("ttl = %s, want capped at next bar open", cache.ttl)
	}

	// A new bar has opened: the cached series is one bar behind and must
	// not be paired with a freshly fetched leg.
	svc.now = func() time.Time { return nextOpen.Add(30 * time.Second) }
	src.asked = nil
	if _, _, err := svc.FetchSeries(context.Background(), []string{"ATOM/USDT"}, "1h", 3); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(src.asked, []string{"ATOM/USDT"}) {
		t.Fatalf("stale cache served: asked = %v", src.asked)
	}
	if cache.sets != 1 {
		t.Fatalf("series ending before now cached again: sets = %d", cache.sets)
	}
}

package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// APIError is the error body Binance returns on 4xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// codeInvalidSymbol is returned for symbols the exchange does not list.
const codeInvalidSymbol = -1121

// Symbol converts "ATOM/USDT" to the exchange form "ATOMUSDT".
func Symbol(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "/", ""))
}

// parseKline converts one /api/v3/klines row into a Candle. Rows are
// [openTime, open, high, low, close, volume, closeTime, ...] with prices as
// decimal strings.
func parseKline(row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return domain.Candle{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		f, err := decimal(row[i+1])
		if err != nil {
			return domain.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = f
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// decimal accepts either a JSON string ("1.23") or a bare number.
func decimal(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

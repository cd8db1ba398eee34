package massive

import (
	"sort"
	"time"

	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/pkg/errors"
)

// Providers disagree on field spellings, so raw rows arrive as loose
// maps and are normalized here before anything downstream sees them.

func firstValue(row map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func floatField(row map[string]interface{}, keys ...string) (float64, bool) {
	v, ok := firstValue(row, keys...)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func optionalFloat(row map[string]interface{}, keys ...string) *float64 {
	if f, ok := floatField(row, keys...); ok {
		return &f
	}
	return nil
}

// parseBarTime accepts epoch milliseconds (polygon), epoch seconds, or
// an RFC 3339 / ISO timestamp string
func parseBarTime(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, ts); err == nil {
				return parsed, true
			}
		}
	default:
		if f, ok := asFloat(v); ok && f > 0 {
			// epoch seconds until ~2286, milliseconds beyond that
			if f > 1e12 {
				return time.UnixMilli(int64(f)).UTC(), true
			}
			return time.Unix(int64(f), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeBar converts one raw provider row into a validated Bar
func normalizeBar(row map[string]interface{}) (scan.Bar, error) {
	tsRaw, ok := firstValue(row, "t", "ts", "timestamp")
	if !ok {
		return scan.Bar{}, errors.Wrap(errors.ErrMalformedBar, "missing timestamp")
	}
	ts, ok := parseBarTime(tsRaw)
	if !ok {
		return scan.Bar{}, errors.Wrapf(errors.ErrMalformedBar, "unparseable timestamp %v", tsRaw)
	}

	open, okO := floatField(row, "o", "open")
	high, okH := floatField(row, "h", "high")
	low, okL := floatField(row, "l", "low")
	closePx, okC := floatField(row, "c", "close")
	if !okO || !okH || !okL || !okC {
		return scan.Bar{}, errors.Wrap(errors.ErrMalformedBar, "missing OHLC field")
	}
	volume, _ := floatField(row, "v", "volume")

	bar := scan.Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
	}
	if err := bar.Validate(); err != nil {
		return scan.Bar{}, err
	}
	return bar, nil
}

// normalizeBars converts raw rows into ascending, validated bars.
// Malformed rows fail the whole batch: a silently dropped bar would
// shift the box and produce a wrong signal.
func normalizeBars(rows []map[string]interface{}) ([]scan.Bar, error) {
	bars := make([]scan.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := normalizeBar(row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// normalizeSnapshot maps a ticker snapshot payload to the daily volume
// and IV fields, tolerating both snake_case and camelCase spellings
func normalizeSnapshot(data map[string]interface{}) *scan.DailySnapshot {
	ticker := data
	if t, ok := data["ticker"].(map[string]interface{}); ok {
		ticker = t
	}

	day := map[string]interface{}{}
	if d, ok := ticker["day"].(map[string]interface{}); ok {
		day = d
	} else if d, ok := ticker["today"].(map[string]interface{}); ok {
		day = d
	}

	snap := &scan.DailySnapshot{
		AvgDailyVolume: optionalFloat(ticker, "avg_daily_volume", "avgDailyVolume"),
		Volume:         optionalFloat(day, "v"),
		IVPercentile:   optionalFloat(ticker, "iv_percentile", "ivPercentile"),
	}
	if snap.AvgDailyVolume == nil {
		snap.AvgDailyVolume = optionalFloat(day, "v")
	}
	if snap.Volume == nil {
		snap.Volume = optionalFloat(ticker, "volume", "v")
	}
	return snap
}

// normalizeContract maps one chain row to a Contract; expiration is the
// chain's expiration when the row does not carry its own
func normalizeContract(row map[string]interface{}, expiration string) options.Contract {
	symbol := ""
	if v, ok := firstValue(row, "ticker", "contract_symbol", "symbol"); ok {
		if s, isStr := v.(string); isStr {
			symbol = s
		}
	}

	expiry := expiration
	if v, ok := row["expiration_date"].(string); ok && v != "" {
		expiry = v
	}

	callPut := options.Call
	if v, ok := firstValue(row, "contract_type", "call_put", "type"); ok {
		if s, isStr := v.(string); isStr && len(s) > 0 && (s[0] == 'p' || s[0] == 'P') {
			callPut = options.Put
		}
	}

	strike, _ := floatField(row, "strike_price", "strike")
	bid, _ := floatField(row, "bid")
	ask, _ := floatField(row, "ask")
	volume, _ := floatField(row, "volume")
	oi, _ := floatField(row, "oi", "open_interest")

	return options.Contract{
		ContractSymbol: symbol,
		Expiry:         expiry,
		Strike:         strike,
		CallPut:        callPut,
		Bid:            bid,
		Ask:            ask,
		Volume:         volume,
		OpenInterest:   oi,
		Delta:          optionalFloat(row, "delta"),
		Gamma:          optionalFloat(row, "gamma"),
		Theta:          optionalFloat(row, "theta"),
		IV:             optionalFloat(row, "iv", "implied_volatility"),
		IVPercentile:   optionalFloat(row, "iv_percentile"),
	}
}

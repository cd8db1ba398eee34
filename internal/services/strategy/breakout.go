package strategy

import (
	"fmt"
	"math"
	"time"

	"boxscout/internal/domain/scan"
	"boxscout/internal/domain/trace"
	"boxscout/internal/indicators"
	"boxscout/internal/services/markettime"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

const strategyName = "BreakoutStrategy"

const atrPeriod = 14

// Skip reasons, in gate order. The first failing gate becomes the
// trace's skip reason.
const (
	ReasonInsufficientBars     = "insufficient_bars"
	ReasonPriceBelowMin        = "price_below_min"
	ReasonPriceAboveMax        = "price_above_max"
	ReasonAvgVolumeUnavailable = "avg_volume_unavailable"
	ReasonAvgVolumeBelowFloor  = "avg_daily_volume_below_threshold"
	ReasonWindowGate           = "window_gate"
	ReasonMarketPanic          = "market_panic"
	ReasonBoxRangeTooWide      = "box_range_too_wide"
	ReasonATRHistoryTooShort   = "atr_insufficient_history"
	ReasonATRRatioTooHigh      = "atr_ratio_too_high"
	ReasonVolumeNotContracting = "volume_not_contracting"
	ReasonTooManyClosesOutside = "too_many_closes_outside_box"
	ReasonNoBreakoutDirection  = "no_breakout_direction"
	ReasonVWAPNotConfirmed     = "vwap_not_confirmed"
	ReasonZeroRisk             = "zero_risk"
)

// Breakout evaluates a symbol's bar history for a box-breakout setup.
// It is a pure, synchronous computation: safe for concurrent use across
// symbols as long as each call gets its own slices and trace.
type Breakout struct {
	cfg     Config
	tz      *time.Location
	windows []markettime.Window
	log     *logger.Logger
}

// New builds a strategy from an explicit config snapshot
func New(cfg Config) (*Breakout, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad timezone %q", cfg.Timezone)
	}
	windows, err := markettime.ParseWindows(cfg.AllowedWindows)
	if err != nil {
		return nil, err
	}
	return &Breakout{
		cfg:     cfg,
		tz:      tz,
		windows: windows,
		log:     logger.Get().With("strategy", strategyName),
	}, nil
}

// Evaluate runs the gate pipeline over one symbol's bars. It returns a
// scored trade idea and the populated trace, or nil and a trace whose
// skip reason names the first failing gate. It never returns an error:
// unfavorable input is a recorded skip, not a fault.
func (s *Breakout) Evaluate(symbol string, bars []scan.Bar, daily *scan.DailySnapshot, indexBars []scan.Bar) (*scan.TradeIdea, *trace.DecisionTrace) {
	cfg := s.cfg
	tr := trace.New(symbol, strategyName)
	tr.AddInputs(map[string]interface{}{
		"bar_count": len(bars),
		"timezone":  cfg.Timezone,
	})

	skip := func(reason string, details map[string]interface{}) (*scan.TradeIdea, *trace.DecisionTrace) {
		tr.Record(trace.Fail(reason, details))
		tr.MarkSkip(reason, details)
		return nil, tr
	}

	minBars := cfg.BoxBars * 3
	if len(bars) < minBars {
		return skip(ReasonInsufficientBars, map[string]interface{}{"bar_count": len(bars)})
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}
	lastClose := closes[len(closes)-1]

	estAvg := s.estimateAvgVolume(bars)
	avgVol, fromSnapshot := resolveAvgVolume(daily, estAvg)
	tr.Record(trace.Pass("missing_daily_snapshot", map[string]interface{}{
		"has_daily":            daily != nil,
		"from_snapshot":        fromSnapshot,
		"estimated_avg_volume": estAvg,
	}))
	tr.AddInputs(map[string]interface{}{
		"last_close": lastClose,
		"avg_volume": avgVol,
	})
	tr.AddComputeds(map[string]interface{}{
		"min_price":      cfg.MinPrice,
		"max_price":      cfg.MaxPrice,
		"min_avg_volume": cfg.MinAvgDailyVolume,
	})

	if lastClose < cfg.MinPrice {
		return skip(ReasonPriceBelowMin, map[string]interface{}{"last_close": lastClose, "min_price": cfg.MinPrice})
	}
	if lastClose > cfg.MaxPrice {
		return skip(ReasonPriceAboveMax, map[string]interface{}{"last_close": lastClose, "max_price": cfg.MaxPrice})
	}
	tr.Record(trace.Pass("price_band", map[string]interface{}{"last_close": lastClose}))

	asOf := bars[len(bars)-1].Timestamp.In(s.tz)
	session := markettime.Session(asOf)
	minRequiredVolume := cfg.MinAvgDailyVolume
	if session != markettime.SessionRTH {
		minRequiredVolume = cfg.MinAvgDailyVolume * cfg.OffSessionVolumeFrac
	}
	tr.AddComputed("min_avg_volume", minRequiredVolume)
	if avgVol <= 0 {
		return skip(ReasonAvgVolumeUnavailable, map[string]interface{}{
			"avg_volume":           avgVol,
			"estimated_avg_volume": estAvg,
			"has_daily":            daily != nil,
		})
	}
	if avgVol < minRequiredVolume {
		return skip(ReasonAvgVolumeBelowFloor, map[string]interface{}{
			"avg_volume":   avgVol,
			"min_volume":   minRequiredVolume,
			"window_label": session,
		})
	}
	tr.Record(trace.Pass("avg_volume_floor", map[string]interface{}{
		"avg_volume":   avgVol,
		"min_volume":   minRequiredVolume,
		"window_label": session,
	}))

	tr.AddComputed("as_of", asOf.Format(time.RFC3339))
	windowOK := markettime.InAnyWindow(asOf, s.windows)
	tr.Record(trace.GateOutcome{
		Name:   ReasonWindowGate,
		Passed: windowOK || cfg.ScanOutsideWindow,
		Details: map[string]interface{}{
			"now":                 asOf.Format("15:04"),
			"windows":             cfg.AllowedWindows,
			"scan_outside_window": cfg.ScanOutsideWindow,
		},
	})
	if !cfg.ScanOutsideWindow && !windowOK {
		tr.MarkSkip(ReasonWindowGate, map[string]interface{}{"now": asOf.Format("15:04"), "windows": cfg.AllowedWindows})
		return nil, tr
	}
	if cfg.ScanOutsideWindow {
		tr.AddComputed("window_override", true)
	}

	var marketBias *scan.Direction
	marketPanic := false
	if len(indexBars) > 0 {
		marketBias, marketPanic = s.MarketBias(indexBars)
	}
	tr.AddComputeds(map[string]interface{}{
		"market_bias":  directionLabel(marketBias),
		"market_panic": marketPanic,
	})
	if marketPanic {
		return skip(ReasonMarketPanic, nil)
	}
	tr.Record(trace.Pass(ReasonMarketPanic, map[string]interface{}{"panic": false}))

	// The most recent bar is the candidate breakout bar; the box is the
	// BoxBars bars immediately before it.
	n := len(bars)
	breakoutBar := bars[n-1]
	box := bars[n-1-cfg.BoxBars : n-1]
	priorBox := bars[n-1-2*cfg.BoxBars : n-1-cfg.BoxBars]

	boxHigh := box[0].High
	boxLow := box[0].Low
	for _, b := range box[1:] {
		boxHigh = math.Max(boxHigh, b.High)
		boxLow = math.Min(boxLow, b.Low)
	}
	rangePct := (boxHigh - boxLow) / lastClose
	tr.AddComputeds(map[string]interface{}{
		"box_high":  boxHigh,
		"box_low":   boxLow,
		"range_pct": rangePct,
	})
	if rangePct > cfg.BoxMaxRangePct {
		return skip(ReasonBoxRangeTooWide, map[string]interface{}{
			"range_pct":     rangePct,
			"max_range_pct": cfg.BoxMaxRangePct,
		})
	}
	tr.Record(trace.Pass("box_range", map[string]interface{}{"range_pct": rangePct}))

	atrSeries := indicators.ATR(highs, lows, closes, atrPeriod)
	if len(atrSeries) < 15 {
		return skip(ReasonATRHistoryTooShort, map[string]interface{}{"atr_points": len(atrSeries)})
	}
	atrCurrent := atrSeries[len(atrSeries)-1]
	atrMean := mean(tail(atrSeries, 50))
	atrRatio := 0.0
	if atrMean != 0 {
		atrRatio = atrCurrent / atrMean
	}
	tr.AddComputeds(map[string]interface{}{
		"atr_ratio":   atrRatio,
		"atr_mean_50": atrMean,
	})
	if atrRatio > cfg.ATRCompFactor {
		return skip(ReasonATRRatioTooHigh, map[string]interface{}{
			"atr_ratio": atrRatio,
			"max_ratio": cfg.ATRCompFactor,
		})
	}
	tr.Record(trace.Pass("atr_compression", map[string]interface{}{"atr_ratio": atrRatio}))

	avgVolBox := meanVolume(box)
	avgVolPrior := avgVolBox
	if len(priorBox) > 0 {
		avgVolPrior = meanVolume(priorBox)
	}
	volRatio := 1.0
	if avgVolPrior != 0 {
		volRatio = avgVolBox / avgVolPrior
	}
	tr.AddComputeds(map[string]interface{}{
		"vol_ratio":     volRatio,
		"avg_vol_box":   avgVolBox,
		"avg_vol_prior": avgVolPrior,
	})
	if volRatio > cfg.VolContractionFactor {
		return skip(ReasonVolumeNotContracting, map[string]interface{}{
			"vol_ratio":     volRatio,
			"max_vol_ratio": cfg.VolContractionFactor,
		})
	}
	tr.Record(trace.Pass("volume_contraction", map[string]interface{}{"vol_ratio": volRatio}))

	closesOutside := 0
	for _, b := range box {
		if b.Close > boxHigh || b.Close < boxLow {
			closesOutside++
		}
	}
	tr.AddComputed("closes_outside_box", closesOutside)
	if closesOutside > 2 {
		return skip(ReasonTooManyClosesOutside, map[string]interface{}{"closes_outside": closesOutside})
	}
	tr.Record(trace.Pass("box_integrity", map[string]interface{}{"closes_outside": closesOutside}))

	breakVolMult := 0.0
	if avgVolBox != 0 {
		breakVolMult = breakoutBar.Volume / avgVolBox
	}
	vwapPrice := indicators.VWAP(bars)
	extensionPct := (boxLow - lastClose) / boxLow
	if lastClose >= boxHigh {
		extensionPct = (lastClose - boxHigh) / boxHigh
	}
	vwapPosition := "Below"
	if lastClose > vwapPrice {
		vwapPosition = "Above"
	}
	tr.AddComputeds(map[string]interface{}{
		"break_vol_mult": breakVolMult,
		"extension_pct":  extensionPct,
		"vwap":           vwapPrice,
		"vwap_position":  vwapPosition,
	})

	var direction scan.Direction
	haveDirection := false
	if lastClose >= boxHigh*(1+cfg.BreakBufferPct) &&
		breakVolMult >= cfg.BreakVolMult &&
		lastClose <= boxHigh*(1+cfg.MaxExtensionPct) {
		if !cfg.VWAPConfirm || lastClose > vwapPrice {
			direction = scan.Long
			haveDirection = true
		} else {
			tr.MarkSkip(ReasonVWAPNotConfirmed, nil)
		}
	}
	if lastClose <= boxLow*(1-cfg.BreakBufferPct) &&
		breakVolMult >= cfg.BreakVolMult &&
		lastClose >= boxLow*(1-cfg.MaxExtensionPct) {
		if !cfg.VWAPConfirm || lastClose < vwapPrice {
			direction = scan.Short
			haveDirection = true
		} else {
			tr.MarkSkip(ReasonVWAPNotConfirmed, nil)
		}
	}
	if !haveDirection {
		return skip(ReasonNoBreakoutDirection, nil)
	}
	tr.Record(trace.Pass("breakout_direction", map[string]interface{}{"direction": string(direction)}))

	vwapOK := lastClose > vwapPrice
	if direction == scan.Short {
		vwapOK = lastClose < vwapPrice
	}

	var entry, stopCandidate float64
	midpoint := (boxHigh + boxLow) / 2
	if direction == scan.Long {
		entry = boxHigh * (1 + cfg.EntryBufferPct)
		// Midpoint clamp keeps the stop no tighter than box center
		stopCandidate = math.Min(boxHigh*(1-cfg.StopBufferPct), midpoint)
	} else {
		entry = boxLow * (1 - cfg.EntryBufferPct)
		stopCandidate = math.Max(boxLow*(1+cfg.StopBufferPct), midpoint)
	}
	risk := math.Abs(entry - stopCandidate)
	if risk == 0 {
		return skip(ReasonZeroRisk, nil)
	}
	tr.Record(trace.Pass("risk_construction", map[string]interface{}{"entry": entry, "stop": stopCandidate, "risk": risk}))

	var t1, t2 float64
	if direction == scan.Long {
		t1, t2 = entry+risk, entry+2*risk
	} else {
		t1, t2 = entry-risk, entry-2*risk
	}

	expectedWindow := scan.Window1To3Days
	if asOf.Hour() < 14 {
		expectedWindow = scan.WindowSameDay
	}

	confidence := 7.0
	if marketBias != nil && *marketBias == direction {
		confidence += 0.5
	}
	if breakVolMult >= 2.0 {
		confidence += 0.5
	}
	candleRange := breakoutBar.High - breakoutBar.Low
	if candleRange > 0 {
		posInRange := (breakoutBar.Close - breakoutBar.Low) / candleRange
		if direction == scan.Long && posInRange >= 0.8 {
			confidence += 0.5
		}
		if direction == scan.Short && posInRange <= 0.2 {
			confidence += 0.5
		}
	}
	confidence = s.capScore(confidence)

	tr.AddComputeds(map[string]interface{}{
		"vwap_ok": vwapOK,
		"score":   confidence,
	})

	return &scan.TradeIdea{
		Symbol:         symbol,
		Direction:      direction,
		Entry:          entry,
		Stop:           stopCandidate,
		T1:             t1,
		T2:             t2,
		ExpectedWindow: expectedWindow,
		Confidence:     confidence,
		TraceID:        tr.ID,
	}, tr
}

// MarketBias derives the reference index's directional bias and a panic
// flag from its bars. Bias is LONG when the last close is above VWAP
// with a rising 20-period EMA, SHORT under the mirror, nil otherwise.
// Panic is set on 3+ VWAP crossings or an ATR spike above 1.5x the mean
// of the last 20 values.
func (s *Breakout) MarketBias(bars []scan.Bar) (*scan.Direction, bool) {
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	vwapPrice := indicators.VWAP(bars)
	emaSeries := indicators.EMA(closes, 20)
	slope := 0.0
	if len(emaSeries) > 5 {
		slope = emaSeries[len(emaSeries)-1] - emaSeries[len(emaSeries)-5]
	}

	var bias *scan.Direction
	last := closes[len(closes)-1]
	if last > vwapPrice && slope > 0 {
		d := scan.Long
		bias = &d
	} else if last < vwapPrice && slope < 0 {
		d := scan.Short
		bias = &d
	}

	crossings := 0
	for i := 1; i < len(closes); i++ {
		abovePrev := closes[i-1] > vwapPrice
		aboveNow := closes[i] > vwapPrice
		if abovePrev != aboveNow {
			crossings++
		}
	}

	panicked := crossings >= 3
	atrVals := indicators.ATR(highs, lows, closes, atrPeriod)
	if len(atrVals) > 20 {
		recentAvg := mean(atrVals[len(atrVals)-20:])
		if atrVals[len(atrVals)-1] > 1.5*recentAvg {
			panicked = true
		}
	}
	return bias, panicked
}

// estimateAvgVolume extrapolates a daily volume from the trailing
// intraday sample when no snapshot is available
func (s *Breakout) estimateAvgVolume(bars []scan.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sample := bars
	if limit := s.cfg.BoxBars * 3; len(bars) > limit {
		sample = bars[len(bars)-limit:]
	}
	total := 0.0
	for _, b := range sample {
		total += b.Volume
	}
	return math.Max(total, 0) * s.cfg.VolumeExtrapolation
}

func (s *Breakout) capScore(score float64) float64 {
	capped := math.Max(0, math.Min(10, score))
	if capped != score {
		s.log.Debugf("score capped: %s", fmt.Sprintf("%.2f -> %.2f", score, capped))
	}
	return capped
}

// resolveAvgVolume prefers the snapshot's average daily volume, then its
// day volume, then the extrapolated estimate. Returns whether the value
// came from the snapshot.
func resolveAvgVolume(daily *scan.DailySnapshot, estimate float64) (float64, bool) {
	if daily != nil {
		if daily.AvgDailyVolume != nil && *daily.AvgDailyVolume != 0 {
			return *daily.AvgDailyVolume, true
		}
		if daily.Volume != nil && *daily.Volume != 0 {
			return *daily.Volume, true
		}
	}
	return estimate, false
}

func directionLabel(d *scan.Direction) interface{} {
	if d == nil {
		return nil
	}
	return string(*d)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanVolume(bars []scan.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

func tail(vals []float64, n int) []float64 {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}

package indicators

import "math"

// ATR computes a running average true range over aligned high/low/close
// series. True range at i>=1 is max(high[i], close[i-1]) - min(low[i],
// close[i-1]); index 0 has none. Each point is the simple mean of true
// ranges in the trailing window of up to period values (not Wilder's
// smoothing). The output carries one leading zero so it aligns with the
// input length.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if period <= 0 {
		period = 14
	}
	n := len(highs)
	if n == 0 {
		return nil
	}

	trs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := math.Max(highs[i], closes[i-1]) - math.Min(lows[i], closes[i-1])
		trs = append(trs, tr)
	}

	atr := make([]float64, 1, n)
	atr[0] = 0
	for i := range trs {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for _, tr := range trs[start : i+1] {
			sum += tr
		}
		atr = append(atr, sum/float64(i+1-start))
	}
	return atr
}

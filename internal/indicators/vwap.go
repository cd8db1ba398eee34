package indicators

import "boxscout/internal/domain/scan"

// VWAP computes the volume-weighted average price over the given bars
// using (high+low+close)/3 as the typical price. When total volume is
// zero it degenerates to the last bar's close.
func VWAP(bars []scan.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}

	totalVol := 0.0
	for _, b := range bars {
		totalVol += b.Volume
	}
	if totalVol == 0 {
		return bars[len(bars)-1].Close
	}

	weighted := 0.0
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		weighted += typical * b.Volume
	}
	return weighted / totalVol
}

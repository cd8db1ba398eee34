package massive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxscout/internal/domain/options"
	"boxscout/pkg/errors"
)

func TestNormalizeBars_AlternateSpellings(t *testing.T) {
	rows := []map[string]interface{}{
		{"timestamp": "2026-09-01T10:01:00Z", "open": 100.1, "high": 100.6, "low": 100.0, "close": 100.5, "volume": 1200.0},
		{"t": float64(1787824800000), "o": 100.0, "h": 100.5, "l": 99.9, "c": 100.1, "v": 1000.0},
	}

	bars, err := normalizeBars(rows)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// sorted ascending regardless of input order
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	assert.Equal(t, 100.5, bars[1].Close)
	assert.Equal(t, 1200.0, bars[1].Volume)
}

func TestNormalizeBars_EpochSeconds(t *testing.T) {
	rows := []map[string]interface{}{
		{"ts": float64(1787824800), "o": 10.0, "h": 10.5, "l": 9.9, "c": 10.1, "v": 50.0},
	}
	bars, err := normalizeBars(rows)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1787824800, 0).UTC(), bars[0].Timestamp)
}

func TestNormalizeBars_MalformedRowFailsBatch(t *testing.T) {
	rows := []map[string]interface{}{
		{"t": float64(1787824800000), "o": 100.0, "h": 100.5, "l": 99.9, "c": 100.1, "v": 1000.0},
		{"t": float64(1787824860000), "o": 100.0, "h": 100.5, "l": 99.9}, // no close
	}
	_, err := normalizeBars(rows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedBar))
}

func TestNormalizeBars_RejectsInvertedRange(t *testing.T) {
	rows := []map[string]interface{}{
		{"t": float64(1787824800000), "o": 100.0, "h": 99.0, "l": 100.5, "c": 100.1, "v": 1000.0},
	}
	_, err := normalizeBars(rows)
	assert.Error(t, err)
}

func TestNormalizeSnapshot_PolygonShape(t *testing.T) {
	snap := normalizeSnapshot(map[string]interface{}{
		"ticker": map[string]interface{}{
			"day":            map[string]interface{}{"v": 1_500_000.0},
			"avgDailyVolume": 6_000_000.0,
			"iv_percentile":  0.42,
		},
	})

	require.NotNil(t, snap.AvgDailyVolume)
	assert.Equal(t, 6_000_000.0, *snap.AvgDailyVolume)
	require.NotNil(t, snap.Volume)
	assert.Equal(t, 1_500_000.0, *snap.Volume)
	require.NotNil(t, snap.IVPercentile)
	assert.Equal(t, 0.42, *snap.IVPercentile)
}

func TestNormalizeSnapshot_MissingFieldsStayNil(t *testing.T) {
	snap := normalizeSnapshot(map[string]interface{}{"ticker": map[string]interface{}{}})
	assert.Nil(t, snap.AvgDailyVolume)
	assert.Nil(t, snap.Volume)
	assert.Nil(t, snap.IVPercentile)
}

func TestNormalizeSnapshot_DayVolumeBacksAvg(t *testing.T) {
	snap := normalizeSnapshot(map[string]interface{}{
		"ticker": map[string]interface{}{
			"day": map[string]interface{}{"v": 2_000_000.0},
		},
	})
	require.NotNil(t, snap.AvgDailyVolume)
	assert.Equal(t, 2_000_000.0, *snap.AvgDailyVolume)
}

func TestNormalizeContract(t *testing.T) {
	c := normalizeContract(map[string]interface{}{
		"ticker":        "O:AAPL260904C00150000",
		"strike_price":  150.0,
		"contract_type": "call",
		"bid":           1.20,
		"ask":           1.25,
		"volume":        300.0,
		"open_interest": 900.0,
		"delta":         0.52,
	}, "2026-09-04")

	assert.Equal(t, "O:AAPL260904C00150000", c.ContractSymbol)
	assert.Equal(t, "2026-09-04", c.Expiry)
	assert.Equal(t, options.Call, c.CallPut)
	assert.Equal(t, 150.0, c.Strike)
	assert.Equal(t, 900.0, c.OpenInterest)
	require.NotNil(t, c.Delta)
	assert.Equal(t, 0.52, *c.Delta)
	assert.Nil(t, c.Gamma)
}

func TestNormalizeContract_PutSpellings(t *testing.T) {
	for _, typ := range []string{"put", "P", "PUT"} {
		c := normalizeContract(map[string]interface{}{
			"contract_symbol": "X",
			"call_put":        typ,
			"strike":          95.0,
			"oi":              400.0,
		}, "2026-09-04")
		assert.Equal(t, options.Put, c.CallPut, typ)
		assert.Equal(t, 400.0, c.OpenInterest)
	}
}

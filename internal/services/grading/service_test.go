package grading

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxscout/internal/domain/scan"
)

func gradeBar(high, low float64) scan.Bar {
	return scan.Bar{Timestamp: time.Now(), Open: low, High: high, Low: low, Close: high, Volume: 100}
}

func TestComputeGrade_LongHitsBothTargets(t *testing.T) {
	alert := &scan.Alert{
		ID:        uuid.New(),
		Direction: scan.Long,
		Entry:     100.0,
		T1:        101.0,
		T2:        102.0,
	}
	bars := []scan.Bar{
		gradeBar(100.5, 99.8),
		gradeBar(101.2, 100.4), // T1 at idx 1
		gradeBar(100.9, 100.2),
		gradeBar(102.3, 101.0), // T2 at idx 3
	}

	grade := ComputeGrade(alert, bars)
	assert.True(t, grade.HitT1)
	assert.True(t, grade.HitT2)
	require.NotNil(t, grade.TimeToT1Min)
	assert.Equal(t, 5, *grade.TimeToT1Min)
	require.NotNil(t, grade.TimeToT2Min)
	assert.Equal(t, 15, *grade.TimeToT2Min)

	require.NotNil(t, grade.MFEStockPct)
	assert.InDelta(t, 0.023, *grade.MFEStockPct, 1e-9) // (102.3-100)/100
	require.NotNil(t, grade.MAEStockPct)
	assert.InDelta(t, -0.002, *grade.MAEStockPct, 1e-9) // (99.8-100)/100
}

func TestComputeGrade_ShortMissesTargets(t *testing.T) {
	alert := &scan.Alert{
		ID:        uuid.New(),
		Direction: scan.Short,
		Entry:     100.0,
		T1:        99.0,
		T2:        98.0,
	}
	bars := []scan.Bar{
		gradeBar(100.8, 99.6),
		gradeBar(101.2, 100.1),
	}

	grade := ComputeGrade(alert, bars)
	assert.False(t, grade.HitT1)
	assert.False(t, grade.HitT2)
	assert.Nil(t, grade.TimeToT1Min)
	assert.Nil(t, grade.TimeToT2Min)

	require.NotNil(t, grade.MFEStockPct)
	assert.InDelta(t, 0.004, *grade.MFEStockPct, 1e-9) // (100-99.6)/100
	require.NotNil(t, grade.MAEStockPct)
	assert.InDelta(t, -0.012, *grade.MAEStockPct, 1e-9) // (100-101.2)/100
}

func TestComputeGrade_NoBarsYieldsNilExcursions(t *testing.T) {
	alert := &scan.Alert{ID: uuid.New(), Direction: scan.Long, Entry: 100, T1: 101, T2: 102}
	grade := ComputeGrade(alert, nil)
	assert.False(t, grade.HitT1)
	assert.Nil(t, grade.MFEStockPct)
	assert.Nil(t, grade.MAEStockPct)
}

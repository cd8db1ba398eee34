package strategy

// Config holds every breakout gate threshold. It is injected per
// strategy instance and never mutated during an evaluation, so varied
// settings per call are just separate strategy values.
type Config struct {
	Timezone          string
	AllowedWindows    string
	ScanOutsideWindow bool

	MinAvgDailyVolume float64
	MinPrice          float64
	MaxPrice          float64

	BoxBars              int
	BoxMaxRangePct       float64
	ATRCompFactor        float64
	VolContractionFactor float64

	BreakBufferPct  float64
	MaxExtensionPct float64
	BreakVolMult    float64
	VWAPConfirm     bool

	EntryBufferPct float64
	StopBufferPct  float64

	// Calibration heuristics for the average-volume fallback. Tunable
	// because their intended calibration is uncertain.
	VolumeExtrapolation  float64
	OffSessionVolumeFrac float64
}

// DefaultConfig returns production thresholds
func DefaultConfig() Config {
	return Config{
		Timezone:             "America/New_York",
		AllowedWindows:       "09:35-11:00,13:30-15:50",
		ScanOutsideWindow:    false,
		MinAvgDailyVolume:    5_000_000,
		MinPrice:             10.0,
		MaxPrice:             1000.0,
		BoxBars:              12,
		BoxMaxRangePct:       0.012,
		ATRCompFactor:        0.75,
		VolContractionFactor: 0.80,
		BreakBufferPct:       0.001,
		MaxExtensionPct:      0.006,
		BreakVolMult:         1.5,
		VWAPConfirm:          true,
		EntryBufferPct:       0.0005,
		StopBufferPct:        0.0015,
		VolumeExtrapolation:  3,
		OffSessionVolumeFrac: 0.25,
	}
}

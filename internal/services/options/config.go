package options

// Config holds the liquidity floors and IV caps used when selecting
// contracts. Lenient mode halves the volume/OI/mid floors and loosens
// the spread cap by 1.4x, for thin pre-market chains.
type Config struct {
	Timezone        string
	SpreadPctMax    float64
	MinVolume       float64
	MinOpenInterest float64
	MinMid          float64
	IVPctlMaxForAgg float64
	IVPctlMaxForAny float64
	LenientMode     bool
}

// DefaultConfig returns production liquidity thresholds
func DefaultConfig() Config {
	return Config{
		Timezone:        "America/New_York",
		SpreadPctMax:    0.08,
		MinVolume:       200,
		MinOpenInterest: 500,
		MinMid:          0.25,
		IVPctlMaxForAgg: 0.70,
		IVPctlMaxForAny: 0.85,
		LenientMode:     false,
	}
}

// effective floors after the lenient multipliers are applied
func (c Config) floors() (minVolume, minOI, minMid, spreadMax float64) {
	minVolume = c.MinVolume
	minOI = c.MinOpenInterest
	minMid = c.MinMid
	spreadMax = c.SpreadPctMax
	if c.LenientMode {
		minVolume *= 0.5
		minOI *= 0.5
		minMid *= 0.5
		spreadMax *= 1.4
	}
	return minVolume, minOI, minMid, spreadMax
}

package scan

import (
	"time"

	"github.com/google/uuid"

	"boxscout/pkg/errors"
)

// Direction is the side of a trade idea
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Expected holding window labels
const (
	WindowSameDay  = "same_day"
	Window1To3Days = "1_3_days"
)

// Bar is a single OHLCV bar, immutable once constructed.
// Sequences are ordered ascending by timestamp with no duplicates.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate fails fast on bars that would silently produce wrong numbers downstream
func (b Bar) Validate() error {
	if b.Timestamp.IsZero() {
		return errors.NewValidationError("timestamp", "missing", b.Timestamp)
	}
	if b.High < b.Low {
		return errors.NewValidationError("high", "below low", b.High)
	}
	if b.Open <= 0 || b.Close <= 0 {
		return errors.NewValidationError("close", "non-positive price", b.Close)
	}
	if b.Volume < 0 {
		return errors.NewValidationError("volume", "negative", b.Volume)
	}
	return nil
}

// DailySnapshot carries the daily volume and IV context for a symbol.
// All fields are optional; nil means the provider had no value.
type DailySnapshot struct {
	AvgDailyVolume *float64
	Volume         *float64
	IVPercentile   *float64
}

// TradeIdea is a scored breakout setup. Immutable once created.
// Invariant: |Entry-Stop| > 0 and T1/T2 sit beyond Entry in the trade direction.
type TradeIdea struct {
	Symbol         string
	Direction      Direction
	Entry          float64
	Stop           float64
	T1             float64
	T2             float64
	ExpectedWindow string
	Confidence     float64
	TraceID        uuid.UUID
}

// Risk returns the per-share risk of the idea
func (t TradeIdea) Risk() float64 {
	if t.Entry >= t.Stop {
		return t.Entry - t.Stop
	}
	return t.Stop - t.Entry
}

// Alert is the persisted record of a triggered idea
type Alert struct {
	ID             uuid.UUID  `db:"id"`
	CreatedAt      time.Time  `db:"created_at"`
	Symbol         string     `db:"symbol"`
	Direction      Direction  `db:"direction"`
	Confidence     float64    `db:"confidence"`
	ExpectedWindow string     `db:"expected_window"`
	Entry          float64    `db:"entry"`
	Stop           float64    `db:"stop"`
	T1             float64    `db:"t1"`
	T2             float64    `db:"t2"`
	BoxHigh        float64    `db:"box_high"`
	BoxLow         float64    `db:"box_low"`
	RangePct       float64    `db:"range_pct"`
	ATRRatio       float64    `db:"atr_ratio"`
	VolRatio       float64    `db:"vol_ratio"`
	BreakVolMult   float64    `db:"break_vol_mult"`
	ExtensionPct   float64    `db:"extension_pct"`
	MarketBias     *Direction `db:"market_bias"`
	VWAPOk         bool       `db:"vwap_ok"`
	TextShort      string     `db:"text_short"`
	TextMedium     string     `db:"text_medium"`
	TextDeep       string     `db:"text_deep"`
	StockOnly      bool       `db:"stock_only"`
	TraceID        uuid.UUID  `db:"trace_id"`
}

// OptionCandidate is a persisted option pick attached to an alert
type OptionCandidate struct {
	ID             uuid.UUID `db:"id"`
	AlertID        uuid.UUID `db:"alert_id"`
	Tier           string    `db:"tier"`
	ContractSymbol string    `db:"contract_symbol"`
	Expiry         string    `db:"expiry"`
	Strike         float64   `db:"strike"`
	CallPut        string    `db:"call_put"`
	Bid            float64   `db:"bid"`
	Ask            float64   `db:"ask"`
	Mid            float64   `db:"mid"`
	SpreadPct      float64   `db:"spread_pct"`
	Volume         float64   `db:"volume"`
	OpenInterest   float64   `db:"open_interest"`
	Delta          *float64  `db:"delta"`
	Gamma          *float64  `db:"gamma"`
	Theta          *float64  `db:"theta"`
	IV             *float64  `db:"iv"`
	IVPercentile   *float64  `db:"iv_percentile"`
	Rationale      string    `db:"rationale"`
	ExitPlan       string    `db:"exit_plan"`
}

// Run records one pass over the symbol universe
type Run struct {
	ID             uuid.UUID  `db:"id"`
	StartedAt      time.Time  `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
	Universe       string     `db:"universe"`
	SymbolsScanned []string   `db:"-"`
	Notes          string     `db:"notes"`
	ErrorsCount    int        `db:"errors_count"`
}

// Grade is the post-hoc outcome measurement for an alert
type Grade struct {
	ID          uuid.UUID `db:"id"`
	AlertID     uuid.UUID `db:"alert_id"`
	GradedAt    time.Time `db:"graded_at"`
	HitT1       bool      `db:"hit_t1"`
	HitT2       bool      `db:"hit_t2"`
	MFEStockPct *float64  `db:"mfe_stock_pct"`
	MAEStockPct *float64  `db:"mae_stock_pct"`
	TimeToT1Min *int      `db:"time_to_t1_min"`
	TimeToT2Min *int      `db:"time_to_t2_min"`
}

package options

import (
	"github.com/shopspring/decimal"
)

// Tier labels the three risk/reward buckets, keyed by target delta
type Tier string

const (
	TierConservative Tier = "Conservative"
	TierStandard     Tier = "Standard"
	TierAggressive   Tier = "Aggressive"
)

// Side of an option contract
const (
	Call = "CALL"
	Put  = "PUT"
)

// Contract is an immutable snapshot of one options-chain entry
type Contract struct {
	ContractSymbol string
	Expiry         string
	Strike         float64
	CallPut        string
	Bid            float64
	Ask            float64
	Volume         float64
	OpenInterest   float64
	Delta          *float64
	Gamma          *float64
	Theta          *float64
	IV             *float64
	IVPercentile   *float64
}

// Mid returns the bid/ask midpoint rounded to 4 decimals
func (c Contract) Mid() float64 {
	mid := decimal.NewFromFloat(c.Bid).
		Add(decimal.NewFromFloat(c.Ask)).
		Div(decimal.NewFromInt(2)).
		Round(4)
	f, _ := mid.Float64()
	return f
}

// SpreadPct returns (ask-bid)/max(mid, 0.01)
func (c Contract) SpreadPct() float64 {
	mid := c.Mid()
	if mid < 0.01 {
		mid = 0.01
	}
	return (c.Ask - c.Bid) / mid
}

// Pick is a selected contract for one tier
type Pick struct {
	Tier      Tier
	Contract  Contract
	Rationale string
	ExitPlan  string
}

// Result is the selector output: either tiered picks or stock-only
type Result struct {
	StockOnly bool
	Reason    string
	Picks     []Pick
}

package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"boxscout/internal/domain/scan"
	"boxscout/internal/services/markettime"
)

// Texts are the three renderings of one alert: a one-line summary for
// chat previews, the full markdown card, and a plain deep-dive dump.
type Texts struct {
	Short  string
	Medium string
	Deep   string
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f", v*100)
}

func formatOptionalDelta(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatBias(bias *scan.Direction) string {
	if bias == nil {
		return "Unknown"
	}
	if *bias == scan.Long {
		return "Bullish"
	}
	return "Bearish"
}

func formatWindow(window string) string {
	switch window {
	case scan.WindowSameDay:
		return "Same day - 1-3 days"
	case scan.Window1To3Days:
		return "1-3 days"
	}
	return "Unknown"
}

func formatVWAP(ok bool) string {
	if ok {
		return "Confirmed"
	}
	return "Not confirmed"
}

// formatDTE counts calendar days from asOf's date in its own location
// to the expiry date; truncating to UTC days would shift evening alerts
// by one.
func formatDTE(expiry string, asOf time.Time) string {
	expDate, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "DTE N/A"
	}
	y, m, d := asOf.Date()
	asOfDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dte := int(expDate.Sub(asOfDate).Hours() / 24)
	if dte < 0 {
		return "DTE N/A"
	}
	return fmt.Sprintf("%d DTE", dte)
}

func trendDescription(direction scan.Direction) string {
	if direction == scan.Short {
		return "Downtrend"
	}
	return "Uptrend"
}

// BuildTexts renders the short, medium and deep alert texts from the
// persisted alert row and its option candidates
func BuildTexts(alert *scan.Alert, picks []scan.OptionCandidate, tz *time.Location) Texts {
	short := fmt.Sprintf("%s %s entry %s stop %s T1 %s T2 %s (conf %.1f)",
		alert.Symbol, alert.Direction,
		formatPrice(alert.Entry), formatPrice(alert.Stop),
		formatPrice(alert.T1), formatPrice(alert.T2),
		alert.Confidence,
	)

	entryPhrase := "hold above"
	if alert.Direction == scan.Short {
		entryPhrase = "hold below"
	}
	asOf := alert.CreatedAt.In(tz)
	session := markettime.Session(asOf)

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("BREAKPOINT ALERT - %s", alert.Symbol)
	line("%s | %s | Bias: %s", asOf.Format("01-02-2006 03:04 PM ET"), session, formatBias(alert.MarketBias))
	line("")
	line("SETUP")
	line("- Box range: %s%% | Break: %s%% | Vol: %.2fx", formatPercent(alert.RangePct), formatPercent(alert.ExtensionPct), alert.BreakVolMult)
	line("- VWAP: %s | Trend: %s", formatVWAP(alert.VWAPOk), trendDescription(alert.Direction))
	line("")
	line("STOCK PLAN")
	line("- Entry: %s (%s)", formatPrice(alert.Entry), entryPhrase)
	line("- Invalidation: %s (back inside box)", formatPrice(alert.Stop))
	line("- Targets: %s -> %s", formatPrice(alert.T1), formatPrice(alert.T2))
	line("- Window: %s", formatWindow(alert.ExpectedWindow))
	line("")
	line("OPTIONS")
	if len(picks) == 0 {
		line("- stock-only (no liquid contracts / IV too high / unavailable)")
	} else {
		for _, p := range picks {
			line("- %s: %s %s", p.Tier, p.ContractSymbol, formatDTE(p.Expiry, asOf))
			line("  (delta %s | mid %s | sprd %s%% | vol %s | oi %s)",
				formatOptionalDelta(p.Delta), formatPrice(p.Mid), formatPercent(p.SpreadPct),
				humanize.Comma(int64(p.Volume)), humanize.Comma(int64(p.OpenInterest)))
		}
	}
	line("")
	line("RISK NOTES")
	line("- Take 40-60%% at T1, runner to T2")
	line("- Time stop: 30-60 min if no continuation")
	line("- Hard exit if invalidation triggers")
	line("")
	line("Confidence: %.1f / 10", alert.Confidence)
	medium := b.String()

	var d strings.Builder
	dline := func(format string, args ...interface{}) {
		fmt.Fprintf(&d, format+"\n", args...)
	}
	dline("%s %s compression breakout", alert.Symbol, alert.Direction)
	dline("Box: %s-%s (range %s%%)", formatPrice(alert.BoxLow), formatPrice(alert.BoxHigh), formatPercent(alert.RangePct))
	dline("Trigger close beyond box: %s%% beyond edge", formatPercent(alert.ExtensionPct))
	dline("Breakout volume: %.2fx box avg", alert.BreakVolMult)
	dline("ATR compression ratio: %.2f", alert.ATRRatio)
	dline("VWAP confirmation: %v", alert.VWAPOk)
	dline("Market bias: %s", formatBias(alert.MarketBias))
	dline("Plan: entry %s stop %s T1 %s T2 %s (conf %.1f)",
		formatPrice(alert.Entry), formatPrice(alert.Stop), formatPrice(alert.T1), formatPrice(alert.T2), alert.Confidence)
	for _, p := range picks {
		dline("%s: %s mid %s sprd %s%% vol %s oi %s delta %s",
			p.Tier, p.ContractSymbol, formatPrice(p.Mid), formatPercent(p.SpreadPct),
			humanize.Comma(int64(p.Volume)), humanize.Comma(int64(p.OpenInterest)), formatOptionalDelta(p.Delta))
	}
	dline("Exit: Take 40-60%% at T1, runner to T2, time stop 30-60m if no continuation, exit on invalidation")
	deep := d.String()

	return Texts{Short: short, Medium: medium, Deep: deep}
}

package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"boxscout/internal/domain/scan"
)

// Compile-time check
var _ scan.AlertRepository = (*AlertRepository)(nil)

// AlertRepository implements scan.AlertRepository using sqlx
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateAlert inserts a new alert row
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *scan.Alert) error {
	query := `
		INSERT INTO alerts (
			id, created_at, symbol, direction, confidence, expected_window,
			entry, stop, t1, t2,
			box_high, box_low, range_pct, atr_ratio, vol_ratio,
			break_vol_mult, extension_pct, market_bias, vwap_ok,
			text_short, text_medium, text_deep, stock_only, trace_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24
		)`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.CreatedAt, alert.Symbol, alert.Direction, alert.Confidence, alert.ExpectedWindow,
		alert.Entry, alert.Stop, alert.T1, alert.T2,
		alert.BoxHigh, alert.BoxLow, alert.RangePct, alert.ATRRatio, alert.VolRatio,
		alert.BreakVolMult, alert.ExtensionPct, alert.MarketBias, alert.VWAPOk,
		alert.TextShort, alert.TextMedium, alert.TextDeep, alert.StockOnly, alert.TraceID,
	)
	trackQuery("create_alert", err)
	return err
}

// CreateOptionCandidates inserts the option picks attached to an alert
func (r *AlertRepository) CreateOptionCandidates(ctx context.Context, candidates []scan.OptionCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	query := `
		INSERT INTO option_candidates (
			id, alert_id, tier, contract_symbol, expiry, strike, call_put,
			bid, ask, mid, spread_pct, volume, open_interest,
			delta, gamma, theta, iv, iv_percentile, rationale, exit_plan
		) VALUES (
			:id, :alert_id, :tier, :contract_symbol, :expiry, :strike, :call_put,
			:bid, :ask, :mid, :spread_pct, :volume, :open_interest,
			:delta, :gamma, :theta, :iv, :iv_percentile, :rationale, :exit_plan
		)`

	_, err := r.db.NamedExecContext(ctx, query, candidates)
	trackQuery("create_option_candidates", err)
	return err
}

// ListAlertsSince retrieves alerts created at or after the given time
func (r *AlertRepository) ListAlertsSince(ctx context.Context, since time.Time) ([]scan.Alert, error) {
	var alerts []scan.Alert

	query := `
		SELECT * FROM alerts
		WHERE created_at >= $1
		ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &alerts, query, since)
	trackQuery("list_alerts", err)
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

// ListUngradedSince retrieves alerts without a grade row, oldest first
// so grading catches up in order
func (r *AlertRepository) ListUngradedSince(ctx context.Context, since time.Time) ([]scan.Alert, error) {
	var alerts []scan.Alert

	query := `
		SELECT a.* FROM alerts a
		LEFT JOIN grades g ON g.alert_id = a.id
		WHERE a.created_at >= $1 AND g.id IS NULL
		ORDER BY a.created_at ASC`

	err := r.db.SelectContext(ctx, &alerts, query, since)
	trackQuery("list_ungraded", err)
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

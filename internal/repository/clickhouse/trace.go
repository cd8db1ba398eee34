package clickhouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"boxscout/internal/domain/trace"
	"boxscout/internal/metrics"
)

// Compile-time check
var _ trace.Archive = (*TraceArchive)(nil)

// TraceArchive persists decision traces to ClickHouse for post-hoc
// analysis of gate outcomes across the whole symbol universe
type TraceArchive struct {
	conn driver.Conn
}

// NewTraceArchive creates a new trace archive
func NewTraceArchive(conn driver.Conn) *TraceArchive {
	return &TraceArchive{conn: conn}
}

// Insert stores one decision trace. Inputs, computed values and gate
// outcomes go in as JSON columns since their shapes vary per gate.
func (r *TraceArchive) Insert(ctx context.Context, t *trace.DecisionTrace) error {
	inputs, err := json.Marshal(t.Inputs)
	if err != nil {
		return err
	}
	computed, err := json.Marshal(t.Computed)
	if err != nil {
		return err
	}
	gates, err := json.Marshal(t.Gates)
	if err != nil {
		return err
	}
	skipDetails, err := json.Marshal(t.SkipDetails)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO decision_traces (
			id, symbol, strategy, created_at,
			skipped, skip_reason, skip_details,
			inputs, computed, gates
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	err = r.conn.Exec(ctx, query,
		t.ID.String(), t.Symbol, t.Strategy, t.CreatedAt.Truncate(time.Millisecond),
		t.Skipped(), t.SkipReason, string(skipDetails),
		string(inputs), string(computed), string(gates),
	)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueries.WithLabelValues("clickhouse", "insert_trace", status).Inc()
	return err
}

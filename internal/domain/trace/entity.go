package trace

import (
	"time"

	"github.com/google/uuid"
)

// GateOutcome is the explicit result of one gate step.
// Gates return these; the evaluation loop records them in order.
type GateOutcome struct {
	Name    string                 `json:"name"`
	Passed  bool                   `json:"passed"`
	Details map[string]interface{} `json:"details"`
}

// Pass builds a passing outcome
func Pass(name string, details map[string]interface{}) GateOutcome {
	return GateOutcome{Name: name, Passed: true, Details: details}
}

// Fail builds a failing outcome
func Fail(name string, details map[string]interface{}) GateOutcome {
	return GateOutcome{Name: name, Passed: false, Details: details}
}

// DecisionTrace is the audit record for one strategy evaluation.
// One instance per (symbol, evaluation); mutated only during the call,
// read-only after it returns.
type DecisionTrace struct {
	ID          uuid.UUID
	Symbol      string
	Strategy    string
	CreatedAt   time.Time
	Inputs      map[string]interface{}
	Computed    map[string]interface{}
	Gates       []GateOutcome
	SkipReason  string
	SkipDetails map[string]interface{}
}

// New creates an empty trace for one evaluation
func New(symbol, strategy string) *DecisionTrace {
	return &DecisionTrace{
		ID:        uuid.New(),
		Symbol:    symbol,
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
		Inputs:    make(map[string]interface{}),
		Computed:  make(map[string]interface{}),
	}
}

// AddInput records a single evaluation input, last write wins
func (t *DecisionTrace) AddInput(key string, value interface{}) {
	t.Inputs[key] = value
}

// AddInputs merges a batch of inputs
func (t *DecisionTrace) AddInputs(data map[string]interface{}) {
	for k, v := range data {
		t.Inputs[k] = v
	}
}

// AddComputed records a single derived value, last write wins
func (t *DecisionTrace) AddComputed(key string, value interface{}) {
	t.Computed[key] = value
}

// AddComputeds merges a batch of derived values
func (t *DecisionTrace) AddComputeds(data map[string]interface{}) {
	for k, v := range data {
		t.Computed[k] = v
	}
}

// Record appends a gate outcome. The first failing gate fixes the skip
// reason; later failures are kept in the log but do not overwrite it.
func (t *DecisionTrace) Record(outcome GateOutcome) {
	t.Gates = append(t.Gates, outcome)
	if !outcome.Passed && t.SkipReason == "" {
		t.SkipReason = outcome.Name
		t.SkipDetails = outcome.Details
	}
}

// RecordGate appends an outcome built from its parts
func (t *DecisionTrace) RecordGate(name string, passed bool, details map[string]interface{}) {
	t.Record(GateOutcome{Name: name, Passed: passed, Details: details})
}

// MarkSkip force-sets the skip reason for terminal exits that are not
// modeled as a discrete gate. A synthetic gate entry is added unless one
// with the same name already exists.
func (t *DecisionTrace) MarkSkip(reason string, details map[string]interface{}) {
	t.SkipReason = reason
	t.SkipDetails = details
	for _, g := range t.Gates {
		if g.Name == reason {
			return
		}
	}
	t.Gates = append(t.Gates, Fail(reason, details))
}

// Skipped reports whether the evaluation ended in a skip
func (t *DecisionTrace) Skipped() bool {
	return t.SkipReason != ""
}

// FailedGates returns the failing outcomes in recorded order
func (t *DecisionTrace) FailedGates() []GateOutcome {
	var failed []GateOutcome
	for _, g := range t.Gates {
		if !g.Passed {
			failed = append(failed, g)
		}
	}
	return failed
}

// Snapshot exposes the whole trace as a single structured value,
// suitable for JSON serialization and archival
func (t *DecisionTrace) Snapshot() map[string]interface{} {
	gates := make([]map[string]interface{}, 0, len(t.Gates))
	for _, g := range t.Gates {
		gates = append(gates, map[string]interface{}{
			"name":    g.Name,
			"passed":  g.Passed,
			"details": g.Details,
		})
	}
	return map[string]interface{}{
		"symbol":       t.Symbol,
		"strategy":     t.Strategy,
		"inputs":       t.Inputs,
		"computed":     t.Computed,
		"gates":        gates,
		"skip_reason":  t.SkipReason,
		"skip_details": t.SkipDetails,
	}
}

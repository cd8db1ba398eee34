package trace

import "context"

// Archive persists evaluation traces for post-hoc analysis.
// Writes are best-effort; the scan pipeline never blocks on them.
type Archive interface {
	Insert(ctx context.Context, t *DecisionTrace) error
}

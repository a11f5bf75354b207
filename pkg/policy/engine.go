package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldgrid/device-policy-engine/pkg/device"
	"github.com/fieldgrid/device-policy-engine/pkg/metrics"
	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// Result is the outcome of evaluating one policy against one device.
type Result struct {
	Policy string      `json:"policy"`
	Target string      `json:"target"`
	Value  types.Value `json:"value"`
}

// Engine runs the active policy set against devices. Each policy's result
// is staged into its target attribute, so later policies in the same pass
// observe earlier results through the in-process scope.
type Engine struct {
	store   *Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an engine over the given store.
func NewEngine(store *Store, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{store: store, metrics: m, logger: logger}
}

// EvaluateDevice runs all enabled policies against the device in priority
// order. When commit is true the staged results are promoted to the
// current scope at the end of the pass; otherwise they stay staged for
// inspection. Returns one result per evaluated policy.
func (e *Engine) EvaluateDevice(ctx context.Context, d *device.Device, commit bool) ([]Result, error) {
	policies := e.store.List()
	results := make([]Result, 0, len(policies))

	for _, p := range policies {
		if p.Disabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		value := p.Compute(d)
		e.metrics.ObserveEvaluation(p.Name, time.Since(start))
		if value.IsNaN() {
			e.metrics.ObserveNaNResult(p.Name)
		}

		d.Stage(p.Target, value)
		results = append(results, Result{Policy: p.Name, Target: p.Target, Value: value})

		e.logger.Debug("policy evaluated",
			"policy", p.Name,
			"device", d.Name,
			"target", p.Target,
			"value", value.String(),
		)
	}

	if commit {
		changed := d.Commit()
		e.logger.Info("policy results committed",
			"device", d.Name,
			"changed", len(changed),
		)
	}
	return results, nil
}

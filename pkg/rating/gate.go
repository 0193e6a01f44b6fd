package rating

import (
	"context"
	"fmt"
	"sort"
)

// Evaluator produces a raw score in [0,1] for a single metric. Implementations
// should return an error rather than guess when the snapshot lacks the data
// they need; the gate substitutes the metric's neutral score.
type Evaluator interface {
	Score(ctx context.Context, metric string, snap *Snapshot) (float64, error)
}

// Policy is the admission threshold applied after scoring.
type Policy struct {
	// NetScoreFloor is the minimum weighted net score. Artifacts below it
	// are disqualified.
	NetScoreFloor float64

	// MetricFloors holds optional per-metric minimums. A metric scoring
	// below its floor disqualifies the artifact regardless of net score.
	MetricFloors map[string]float64
}

// DefaultPolicy matches the registry's standing admission bar.
func DefaultPolicy() Policy {
	return Policy{NetScoreFloor: 0.5}
}

// Validate rejects floors outside [0,1] and floors on unknown metrics.
func (p Policy) Validate() error {
	if p.NetScoreFloor < 0 || p.NetScoreFloor > 1 {
		return fmt.Errorf("rating: net score floor %v outside [0,1]", p.NetScoreFloor)
	}
	for name, floor := range p.MetricFloors {
		if !KnownMetric(name) {
			return fmt.Errorf("rating: floor on unknown metric %q", name)
		}
		if floor < 0 || floor > 1 {
			return fmt.Errorf("rating: floor %v for %q outside [0,1]", floor, name)
		}
	}
	return nil
}

// Result is the outcome of scoring one artifact.
type Result struct {
	// Scores holds the per-metric scores actually used, including any
	// neutral substitutions.
	Scores map[string]float64
	// NetScore is the weighted sum over the fixed table.
	NetScore float64
	// Passed reports whether the artifact cleared every floor.
	Passed bool
	// Failed lists the checks that did not clear, sorted. Per-metric
	// entries carry the metric name; a net score miss is "net_score".
	Failed []string
}

// Gate scores a snapshot with an Evaluator and applies a Policy.
type Gate struct {
	Evaluator Evaluator
	Policy    Policy
}

// NewGate wires an evaluator to the default policy.
func NewGate(ev Evaluator) *Gate {
	return &Gate{Evaluator: ev, Policy: DefaultPolicy()}
}

// Evaluate scores every metric in the table. Evaluator errors and
// out-of-range scores fall back to the metric's neutral value; scoring never
// fails as a whole.
func (g *Gate) Evaluate(ctx context.Context, snap *Snapshot) Result {
	res := Result{Scores: make(map[string]float64, len(metricTable))}
	for _, m := range metricTable {
		score, err := g.Evaluator.Score(ctx, m.Name, snap)
		if err != nil || score < 0 || score > 1 {
			score = m.Neutral
		}
		res.Scores[m.Name] = score
		if floor, ok := g.Policy.MetricFloors[m.Name]; ok && score < floor {
			res.Failed = append(res.Failed, m.Name)
		}
	}
	res.NetScore = NetScore(res.Scores)
	if res.NetScore < g.Policy.NetScoreFloor {
		res.Failed = append(res.Failed, "net_score")
	}
	sort.Strings(res.Failed)
	res.Passed = len(res.Failed) == 0
	return res
}

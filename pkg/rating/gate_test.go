package rating

import (
	"context"
	"errors"
	"math"
	"testing"
)

type stubEvaluator struct {
	scores map[string]float64
	errOn  map[string]bool
}

func (s stubEvaluator) Score(_ context.Context, metric string, _ *Snapshot) (float64, error) {
	if s.errOn[metric] {
		return 0, errors.New("no data")
	}
	return s.scores[metric], nil
}

func constEvaluator(v float64) stubEvaluator {
	scores := make(map[string]float64)
	for _, m := range Metrics() {
		scores[m.Name] = v
	}
	return stubEvaluator{scores: scores}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, m := range Metrics() {
		if m.Weight <= 0 {
			t.Errorf("metric %s has non-positive weight %v", m.Name, m.Weight)
		}
		sum += m.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v, want 1.0", sum)
	}
}

func TestGateBounds(t *testing.T) {
	ctx := context.Background()
	snap := &Snapshot{}

	g := NewGate(constEvaluator(1))
	res := g.Evaluate(ctx, snap)
	if math.Abs(res.NetScore-1.0) > 1e-9 {
		t.Errorf("all-ones net score = %v, want 1.0", res.NetScore)
	}
	if !res.Passed {
		t.Errorf("all-ones rating did not pass: failed=%v", res.Failed)
	}

	g = NewGate(constEvaluator(0))
	res = g.Evaluate(ctx, snap)
	if res.NetScore != 0 {
		t.Errorf("all-zeros net score = %v, want 0", res.NetScore)
	}
	if res.Passed {
		t.Error("all-zeros rating passed")
	}
	if len(res.Failed) != 1 || res.Failed[0] != "net_score" {
		t.Errorf("failed = %v, want [net_score]", res.Failed)
	}
}

func TestGateNeutralOnEvaluatorError(t *testing.T) {
	ev := constEvaluator(1)
	ev.errOn = map[string]bool{MetricLicense: true}
	res := NewGate(ev).Evaluate(context.Background(), &Snapshot{})
	if got := res.Scores[MetricLicense]; got != 0.5 {
		t.Errorf("errored metric scored %v, want neutral 0.5", got)
	}
	if !res.Passed {
		t.Errorf("rating with one neutral metric did not pass: failed=%v", res.Failed)
	}
}

func TestGateNeutralOnOutOfRangeScore(t *testing.T) {
	ev := constEvaluator(1)
	ev.scores[MetricBusFactor] = 1.7
	ev.scores[MetricTreeScore] = -0.2
	res := NewGate(ev).Evaluate(context.Background(), &Snapshot{})
	if res.Scores[MetricBusFactor] != 0.5 || res.Scores[MetricTreeScore] != 0.5 {
		t.Errorf("out-of-range scores not replaced: %v %v",
			res.Scores[MetricBusFactor], res.Scores[MetricTreeScore])
	}
}

func TestGateMetricFloor(t *testing.T) {
	g := NewGate(constEvaluator(0.8))
	g.Policy.MetricFloors = map[string]float64{MetricLicense: 0.9}
	res := g.Evaluate(context.Background(), &Snapshot{})
	if res.Passed {
		t.Error("rating passed despite metric floor miss")
	}
	if len(res.Failed) != 1 || res.Failed[0] != MetricLicense {
		t.Errorf("failed = %v, want [%s]", res.Failed, MetricLicense)
	}
	// Net score itself is fine at 0.8.
	if res.NetScore < 0.5 {
		t.Errorf("net score = %v, expected above floor", res.NetScore)
	}
}

func TestGateMonotonic(t *testing.T) {
	low := NewGate(constEvaluator(0.3)).Evaluate(context.Background(), &Snapshot{})
	high := NewGate(constEvaluator(0.7)).Evaluate(context.Background(), &Snapshot{})
	if low.NetScore >= high.NetScore {
		t.Errorf("net score not monotone: %v >= %v", low.NetScore, high.NetScore)
	}
}

func TestPolicyValidate(t *testing.T) {
	cases := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"floor too high", Policy{NetScoreFloor: 1.5}, true},
		{"floor negative", Policy{NetScoreFloor: -0.1}, true},
		{"unknown metric", Policy{NetScoreFloor: 0.5,
			MetricFloors: map[string]float64{"velocity": 0.3}}, true},
		{"metric floor out of range", Policy{NetScoreFloor: 0.5,
			MetricFloors: map[string]float64{MetricLicense: 2}}, true},
		{"valid metric floor", Policy{NetScoreFloor: 0.5,
			MetricFloors: map[string]float64{MetricLicense: 0.9}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte("net_score_floor: 0.7\nmetric_floors:\n  license: 0.9\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.NetScoreFloor != 0.7 {
		t.Errorf("NetScoreFloor = %v, want 0.7", p.NetScoreFloor)
	}
	if p.MetricFloors[MetricLicense] != 0.9 {
		t.Errorf("license floor = %v, want 0.9", p.MetricFloors[MetricLicense])
	}

	p, err = ParsePolicy(nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.NetScoreFloor != 0.5 {
		t.Errorf("empty policy NetScoreFloor = %v, want default 0.5", p.NetScoreFloor)
	}

	if _, err := ParsePolicy([]byte("metric_floors:\n  velocity: 0.3\n")); err == nil {
		t.Error("unknown metric floor accepted")
	}
	if _, err := ParsePolicy([]byte("bogus_field: 1\n")); err == nil {
		t.Error("unknown field accepted")
	}
}

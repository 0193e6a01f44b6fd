package rating

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type policyFile struct {
	NetScoreFloor *float64           `yaml:"net_score_floor"`
	MetricFloors  map[string]float64 `yaml:"metric_floors"`
}

// LoadPolicy reads an admission policy from a YAML file. Missing fields keep
// their defaults; unknown metric names are rejected.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("rating: read policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(raw []byte) (Policy, error) {
	var pf policyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("rating: parse policy: %w", err)
	}
	p := DefaultPolicy()
	if pf.NetScoreFloor != nil {
		p.NetScoreFloor = *pf.NetScoreFloor
	}
	if len(pf.MetricFloors) > 0 {
		p.MetricFloors = pf.MetricFloors
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

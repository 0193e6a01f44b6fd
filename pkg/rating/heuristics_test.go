package rating

import (
	"context"
	"strings"
	"testing"

	"trustreg/pkg/source"
)

func TestHeuristicsInRange(t *testing.T) {
	snaps := []*Snapshot{
		{},
		{
			Readme:     strings.Repeat("benchmark accuracy f1 ", 400),
			Files:      []string{"train.py", "requirements.txt", "tests/test_model.py", "src/model.py"},
			Commits:    []source.Commit{{Author: "a"}, {Author: "b"}, {Author: "c"}},
			Metadata:   source.Metadata{SizeBytes: 1 << 20, License: "mit", Downloads: 500000, Likes: 900},
			DatasetRef: "https://huggingface.co/datasets/squad",
			CodeRef:    "https://github.com/acme/trainer",
			Config:     map[string]any{"model_type": "bert"},
		},
	}
	var h Heuristics
	for _, snap := range snaps {
		for _, m := range Metrics() {
			score, err := h.Score(context.Background(), m.Name, snap)
			if err != nil {
				t.Fatalf("%s: %v", m.Name, err)
			}
			if score < 0 || score > 1 {
				t.Errorf("%s scored %v outside [0,1]", m.Name, score)
			}
		}
	}
}

func TestHeuristicsUnknownMetric(t *testing.T) {
	if _, err := (Heuristics{}).Score(context.Background(), "velocity", &Snapshot{}); err == nil {
		t.Error("unknown metric did not error")
	}
}

func TestScoreLicense(t *testing.T) {
	cases := []struct {
		license string
		want    float64
	}{
		{"mit", 1},
		{"Apache-2.0", 1},
		{"gpl-3.0", 0.5},
		{"creativeml-openrail-m", 1},
		{"cc-by-nc-4.0", 0.2},
		{"", 0},
		{"proprietary", 0.4},
	}
	for _, tc := range cases {
		snap := &Snapshot{Metadata: source.Metadata{License: tc.license}}
		if got := scoreLicense(snap); got != tc.want {
			t.Errorf("scoreLicense(%q) = %v, want %v", tc.license, got, tc.want)
		}
	}
}

func TestScoreBusFactor(t *testing.T) {
	solo := &Snapshot{Commits: []source.Commit{{Author: "a"}, {Author: "a"}, {Author: "a"}}}
	if got := scoreBusFactor(solo); got != 0 {
		t.Errorf("single-author bus factor = %v, want 0", got)
	}
	spread := &Snapshot{Commits: []source.Commit{
		{Author: "a"}, {Author: "b"}, {Author: "c"}, {Author: "d"},
	}}
	if got := scoreBusFactor(spread); got != 0.75 {
		t.Errorf("even-spread bus factor = %v, want 0.75", got)
	}
	if got := scoreBusFactor(&Snapshot{}); got != 0 {
		t.Errorf("no-commits bus factor = %v, want 0", got)
	}
}

func TestScoreSizeBuckets(t *testing.T) {
	const gib = int64(1) << 30
	cases := []struct {
		size int64
		want float64
	}{
		{0, 0.5},
		{512 << 20, 1},
		{8 * gib, 0.75},
		{30 * gib, 0.5},
		{100 * gib, 0.25},
		{500 * gib, 0.1},
	}
	for _, tc := range cases {
		snap := &Snapshot{Metadata: source.Metadata{SizeBytes: tc.size}}
		if got := scoreSize(snap); got != tc.want {
			t.Errorf("scoreSize(%d) = %v, want %v", tc.size, got, tc.want)
		}
	}
}

func TestScoreDatasetAndCode(t *testing.T) {
	if got := scoreDatasetAndCode(&Snapshot{}); got != 0 {
		t.Errorf("bare snapshot = %v, want 0", got)
	}
	both := &Snapshot{DatasetRef: "d", CodeRef: "c"}
	if got := scoreDatasetAndCode(both); got != 1 {
		t.Errorf("both refs = %v, want 1", got)
	}
}

func TestScoreTree(t *testing.T) {
	flat := &Snapshot{Files: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	if got := scoreTree(flat); got != 0 {
		t.Errorf("all-flat tree = %v, want 0", got)
	}
	nested := &Snapshot{Files: []string{
		"README.md", "src/a.py", "src/b.py", "src/c.py",
		"tests/t.py", "docs/d.md", "data/x.csv", "data/y.csv",
	}}
	if got := scoreTree(nested); got <= 0.8 {
		t.Errorf("mostly-nested tree = %v, want > 0.8", got)
	}
	tiny := &Snapshot{Files: []string{"model.bin", "config.json"}}
	if got := scoreTree(tiny); got != 0.8 {
		t.Errorf("tiny repo = %v, want 0.8", got)
	}
}

package rating

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Heuristics scores metrics from the prefetched snapshot alone, without
// cloning the repository or running its code.
type Heuristics struct{}

var _ Evaluator = Heuristics{}

// Licenses compatible with redistribution through the registry.
var permissiveLicenses = map[string]bool{
	"apache-2.0":            true,
	"mit":                   true,
	"bsd-2-clause":          true,
	"bsd-3-clause":          true,
	"isc":                   true,
	"unlicense":             true,
	"cc0-1.0":               true,
	"cc-by-4.0":             true,
	"openrail":              true,
	"bigscience-openrail-m": true,
}

// Copyleft terms score half credit: usable, but a burden downstream.
var copyleftLicenses = map[string]bool{
	"gpl-2.0":      true,
	"gpl-3.0":      true,
	"lgpl-2.1":     true,
	"lgpl-3.0":     true,
	"agpl-3.0":     true,
	"mpl-2.0":      true,
	"cc-by-sa-4.0": true,
}

func (Heuristics) Score(ctx context.Context, metric string, snap *Snapshot) (float64, error) {
	switch metric {
	case MetricRampUpTime:
		return scoreRampUp(snap), nil
	case MetricBusFactor:
		return scoreBusFactor(snap), nil
	case MetricPerfClaims:
		return scorePerfClaims(snap), nil
	case MetricLicense:
		return scoreLicense(snap), nil
	case MetricSizeScore:
		return scoreSize(snap), nil
	case MetricDatasetAndCode:
		return scoreDatasetAndCode(snap), nil
	case MetricDatasetQuality:
		return scoreDatasetQuality(snap), nil
	case MetricCodeQuality:
		return scoreCodeQuality(snap), nil
	case MetricReproducibility:
		return scoreReproducibility(snap), nil
	case MetricTreeScore:
		return scoreTree(snap), nil
	case MetricReviewedness:
		return scoreReviewedness(snap), nil
	default:
		return 0, fmt.Errorf("rating: no heuristic for metric %q", metric)
	}
}

// scoreRampUp treats README length as a proxy for onboarding effort. Around
// 4KB of prose earns full credit.
func scoreRampUp(snap *Snapshot) float64 {
	n := len(snap.Readme)
	if n == 0 {
		return 0
	}
	return clamp(float64(n) / 4096)
}

// scoreBusFactor measures contributor diversity in the recent commit window.
func scoreBusFactor(snap *Snapshot) float64 {
	if len(snap.Commits) == 0 {
		return 0
	}
	authors := make(map[string]int)
	top := 0
	for _, c := range snap.Commits {
		authors[c.Author]++
		if authors[c.Author] > top {
			top = authors[c.Author]
		}
	}
	// 1 minus the dominant author's share: a single-author repo scores 0.
	return clamp(1 - float64(top)/float64(len(snap.Commits)))
}

var perfKeywords = []string{
	"benchmark", "eval", "accuracy", "f1", "bleu", "rouge",
	"leaderboard", "state-of-the-art", "sota", "wer", "perplexity",
}

// scorePerfClaims looks for benchmark evidence in the README and model card.
func scorePerfClaims(snap *Snapshot) float64 {
	body := strings.ToLower(snap.Readme)
	hits := 0
	for _, kw := range perfKeywords {
		if strings.Contains(body, kw) {
			hits++
		}
	}
	if _, ok := snap.Config["eval_results"]; ok {
		hits += 2
	}
	return clamp(float64(hits) / 4)
}

func scoreLicense(snap *Snapshot) float64 {
	lic := strings.ToLower(strings.TrimSpace(snap.Metadata.License))
	switch {
	case lic == "":
		return 0
	case permissiveLicenses[lic]:
		return 1
	case copyleftLicenses[lic]:
		return 0.5
	case strings.Contains(lic, "openrail"):
		return 1
	case strings.Contains(lic, "noderivatives") || strings.Contains(lic, "nc-"):
		return 0.2
	default:
		return 0.4
	}
}

// scoreSize buckets total repository size. Small artifacts deploy anywhere;
// past ~50GB most consumers cannot host them.
func scoreSize(snap *Snapshot) float64 {
	const gib = 1 << 30
	sz := snap.Metadata.SizeBytes
	switch {
	case sz <= 0:
		return 0.5
	case sz < 2*gib:
		return 1
	case sz < 16*gib:
		return 0.75
	case sz < 50*gib:
		return 0.5
	case sz < 200*gib:
		return 0.25
	default:
		return 0.1
	}
}

func scoreDatasetAndCode(snap *Snapshot) float64 {
	score := 0.0
	if snap.DatasetRef != "" {
		score += 0.5
	}
	if snap.CodeRef != "" {
		score += 0.5
	}
	return score
}

func scoreDatasetQuality(snap *Snapshot) float64 {
	if snap.ArtifactType == "dataset" {
		// Judge the dataset itself: documented and actively used.
		score := 0.0
		if len(snap.Readme) > 512 {
			score += 0.5
		}
		if snap.Metadata.Downloads > 100 {
			score += 0.5
		}
		return score
	}
	if snap.DatasetRef == "" {
		return 0
	}
	// A named training dataset is all we can verify from here.
	return 0.6
}

var codeQualitySignals = []string{
	"test", "tests", "ci", ".github/workflows", "makefile", "tox.ini",
	"pyproject.toml", "setup.py", "setup.cfg",
}

func scoreCodeQuality(snap *Snapshot) float64 {
	hits := 0
	for _, f := range snap.Files {
		lower := strings.ToLower(f)
		for _, sig := range codeQualitySignals {
			if strings.Contains(lower, sig) {
				hits++
				break
			}
		}
	}
	if hits == 0 {
		return 0.2
	}
	return clamp(0.4 + float64(hits)/10)
}

// scoreReproducibility checks for the files a rerun needs: pinned
// dependencies, configs, training or inference entrypoints.
func scoreReproducibility(snap *Snapshot) float64 {
	var deps, config, entry bool
	for _, f := range snap.Files {
		switch strings.ToLower(path.Base(f)) {
		case "requirements.txt", "environment.yml", "poetry.lock", "uv.lock", "pipfile.lock":
			deps = true
		case "config.json", "params.yaml", "hparams.yaml", "training_args.bin":
			config = true
		case "train.py", "run.py", "main.py", "inference.py", "handler.py":
			entry = true
		}
	}
	if len(snap.Config) > 0 {
		config = true
	}
	score := 0.0
	if deps {
		score += 0.4
	}
	if config {
		score += 0.3
	}
	if entry {
		score += 0.3
	}
	return score
}

// scoreTree rewards a conventional layout over a dump of loose files at the
// repository root.
func scoreTree(snap *Snapshot) float64 {
	if len(snap.Files) == 0 {
		return 0
	}
	rooted := 0
	for _, f := range snap.Files {
		if !strings.Contains(f, "/") {
			rooted++
		}
	}
	if len(snap.Files) <= 6 {
		// Tiny repos are legitimately flat.
		return 0.8
	}
	return clamp(1 - float64(rooted)/float64(len(snap.Files)))
}

// scoreReviewedness is a popularity proxy: downloads and likes stand in for
// community review.
func scoreReviewedness(snap *Snapshot) float64 {
	score := 0.0
	switch d := snap.Metadata.Downloads; {
	case d > 100000:
		score += 0.6
	case d > 1000:
		score += 0.4
	case d > 10:
		score += 0.2
	}
	switch l := snap.Metadata.Likes; {
	case l > 500:
		score += 0.4
	case l > 20:
		score += 0.2
	case l > 0:
		score += 0.1
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

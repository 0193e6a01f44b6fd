// Package rating scores artifacts against the fixed metric table and
// gates admission into the registry. Evaluation is a pure function of a
// prefetched Snapshot, so the whole package runs without network access.
package rating

import "trustreg/pkg/source"

// Snapshot is the bounded metadata bundle the prefetcher assembles for
// scoring. Every field is size-capped at collection time, so a Snapshot's
// memory footprint is independent of repository size.
type Snapshot struct {
	Repo         source.Repo
	ArtifactType string
	Revision     string

	// Readme holds the documentation text, truncated to the prefetcher's
	// character budget.
	Readme string
	// Config is the parsed repository config (config.json or similar),
	// nil when absent.
	Config map[string]any
	// Files is a truncated listing of paths in the revision.
	Files []string
	// Commits is a bounded window of recent history.
	Commits []source.Commit

	Metadata source.Metadata

	// DatasetRef and CodeRef are dependency mentions extracted from the
	// readme (training dataset, companion code repository).
	DatasetRef string
	CodeRef    string
}

package ingestd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"trustreg/pkg/rating"
	"trustreg/pkg/source"
)

// Caps on what the prefetcher pulls per repository. Rating works on a
// bounded sample, never the full content.
const (
	maxReadmeBytes = 64 << 10
	maxConfigBytes = 16 << 10
	maxListedFiles = 2000
	commitWindow   = 30
)

// prefetch assembles the rating snapshot for one repository. Provider
// metadata is mandatory; every other sub-fetch degrades to an empty value so
// a missing readme or commit API outage cannot fail the whole rating.
func prefetch(ctx context.Context, client source.Client, repo source.Repo, typ, revision string) (*rating.Snapshot, error) {
	meta, err := client.Metadata(ctx, repo, revision)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", repo.ID, err)
	}

	snap := &rating.Snapshot{
		Repo:         repo,
		ArtifactType: typ,
		Revision:     revision,
		Metadata:     meta,
	}

	if files, err := client.ListFiles(ctx, repo, revision); err == nil {
		if len(files) > maxListedFiles {
			files = files[:maxListedFiles]
		}
		snap.Files = make([]string, 0, len(files))
		for _, f := range files {
			snap.Files = append(snap.Files, f.Path)
		}
	}

	if path := findFile(snap.Files, isReadme); path != "" {
		if body, err := readCapped(ctx, client, repo, revision, path, maxReadmeBytes); err == nil {
			snap.Readme = string(body)
		}
	}

	if path := findFile(snap.Files, isConfig); path != "" {
		if body, err := readCapped(ctx, client, repo, revision, path, maxConfigBytes); err == nil {
			var cfg map[string]any
			if json.Unmarshal(body, &cfg) == nil {
				snap.Config = cfg
			}
		}
	}

	if commits, err := client.RecentCommits(ctx, repo, revision, commitWindow); err == nil {
		snap.Commits = commits
	}

	snap.DatasetRef, snap.CodeRef = extractDependencies(snap.Readme, repo)
	return snap, nil
}

func findFile(files []string, match func(string) bool) string {
	for _, f := range files {
		if match(f) {
			return f
		}
	}
	return ""
}

func isReadme(path string) bool {
	if strings.Contains(path, "/") {
		return false
	}
	lower := strings.ToLower(path)
	return lower == "readme.md" || lower == "readme" || lower == "readme.rst" || lower == "readme.txt"
}

func isConfig(path string) bool {
	return path == "config.json"
}

func readCapped(ctx context.Context, client source.Client, repo source.Repo, revision, path string, limit int64) ([]byte, error) {
	rc, err := client.OpenFile(ctx, repo, path, revision)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}

var (
	datasetLinkRe = regexp.MustCompile(`https?://huggingface\.co/datasets/[\w.-]+(?:/[\w.-]+)?`)
	codeLinkRe    = regexp.MustCompile(`https?://github\.com/[\w.-]+/[\w.-]+`)
)

// extractDependencies pulls the first dataset and code repository links
// mentioned in the readme. Links back to the repository itself do not count
// as a code dependency.
func extractDependencies(readme string, repo source.Repo) (datasetRef, codeRef string) {
	datasetRef = datasetLinkRe.FindString(readme)
	for _, m := range codeLinkRe.FindAllString(readme, -1) {
		if repo.Kind == source.KindGitHub && strings.HasSuffix(m, repo.ID) {
			continue
		}
		codeRef = m
		break
	}
	return datasetRef, codeRef
}

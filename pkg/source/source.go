// Package source abstracts the hosting providers artifacts are ingested
// from. A submission URL is resolved once into a tagged Repo; everything
// downstream dispatches on the tag through the Client interface instead of
// re-inspecting URL strings.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind identifies a hosting provider.
type Kind string

const (
	KindHuggingFace Kind = "huggingface"
	KindGitHub      Kind = "github"
)

// Repo is a resolved reference to one repository on one provider.
type Repo struct {
	Kind Kind
	// ID is the provider-native identifier: "owner/name", or a bare name
	// for top-level Hugging Face repos.
	ID string
	// HubType is the Hugging Face namespace ("models", "datasets",
	// "spaces"); empty for other providers.
	HubType string
}

func (r Repo) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// FileInfo describes one file in a repository revision.
type FileInfo struct {
	Path string
	Size int64
}

// Commit is one entry of a repository's revision history.
type Commit struct {
	SHA     string
	Author  string
	Message string
	Date    time.Time
}

// Metadata is the provider-reported summary used for scoring without a
// full download.
type Metadata struct {
	SizeBytes int64
	License   string
	Downloads int
	Likes     int
}

// Client lists, streams, and describes repositories of one provider.
type Client interface {
	// ListFiles returns every file in the revision, in the provider's
	// listing order. Archives preserve this order.
	ListFiles(ctx context.Context, repo Repo, revision string) ([]FileInfo, error)
	// OpenFile streams one file's bytes. The caller closes the reader.
	OpenFile(ctx context.Context, repo Repo, path, revision string) (io.ReadCloser, error)
	// Metadata fetches the repository-level summary.
	Metadata(ctx context.Context, repo Repo, revision string) (Metadata, error)
	// RecentCommits returns up to limit entries of recent history.
	RecentCommits(ctx context.Context, repo Repo, revision string, limit int) ([]Commit, error)
}

// Clients dispatches to the Client registered for a Repo's Kind.
type Clients map[Kind]Client

// ErrUnsupportedKind is returned when no client is registered for a kind.
var ErrUnsupportedKind = errors.New("source: unsupported repository kind")

// For returns the client handling the given repo.
func (c Clients) For(repo Repo) (Client, error) {
	client, ok := c[repo.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, repo.Kind)
	}
	return client, nil
}

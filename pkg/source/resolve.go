package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrBadURL reports a submission URL that no provider adapter understands.
var ErrBadURL = errors.New("source: unrecognised repository URL")

// hubTypeFor maps an artifact type onto the Hugging Face API namespace.
func hubTypeFor(artifactType string) string {
	switch artifactType {
	case "dataset":
		return "datasets"
	case "code":
		return "spaces"
	default:
		return "models"
	}
}

// Resolve parses a submission URL into a tagged Repo. Provider detection
// happens here, exactly once; the rest of the pipeline dispatches on
// Repo.Kind.
func Resolve(sourceURL, artifactType string) (Repo, error) {
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return Repo{}, fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Repo{}, fmt.Errorf("%w: %q", ErrBadURL, sourceURL)
	}

	host := strings.ToLower(parsed.Hostname())
	segments := splitPath(parsed.Path)

	switch {
	case host == "huggingface.co" || host == "www.huggingface.co":
		return resolveHuggingFace(segments, artifactType, sourceURL)
	case host == "github.com" || host == "www.github.com":
		if len(segments) < 2 {
			return Repo{}, fmt.Errorf("%w: github URL needs owner and repository: %q", ErrBadURL, sourceURL)
		}
		name := strings.TrimSuffix(segments[1], ".git")
		return Repo{Kind: KindGitHub, ID: segments[0] + "/" + name}, nil
	default:
		return Repo{}, fmt.Errorf("%w: host %q", ErrBadURL, host)
	}
}

func resolveHuggingFace(segments []string, artifactType, sourceURL string) (Repo, error) {
	// Drop the namespace prefix the website puts in front of dataset and
	// space URLs; the remaining segments are the repo id.
	if len(segments) > 0 && (segments[0] == "datasets" || segments[0] == "spaces") {
		segments = segments[1:]
	}
	// Strip trailing site paths such as /tree/main or /blob/main/file.
	for i, seg := range segments {
		if seg == "tree" || seg == "blob" || seg == "resolve" {
			segments = segments[:i]
			break
		}
	}

	switch len(segments) {
	case 0:
		return Repo{}, fmt.Errorf("%w: no repository in %q", ErrBadURL, sourceURL)
	case 1:
		return Repo{Kind: KindHuggingFace, ID: segments[0], HubType: hubTypeFor(artifactType)}, nil
	default:
		return Repo{Kind: KindHuggingFace, ID: segments[0] + "/" + segments[1], HubType: hubTypeFor(artifactType)}, nil
	}
}

// DisplayName derives the human-readable artifact name from a repo id.
func DisplayName(repo Repo) string {
	if idx := strings.LastIndex(repo.ID, "/"); idx >= 0 {
		return repo.ID[idx+1:]
	}
	return repo.ID
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

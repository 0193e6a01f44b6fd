package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GitHub talks to the GitHub REST API. File bytes are streamed through the
// contents endpoint with the raw media type, so a single base URL serves
// listings, metadata, and payloads.
type GitHub struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewGitHub creates a GitHub client. token may be empty for public repos.
func NewGitHub(token string) *GitHub {
	return &GitHub{
		baseURL: "https://api.github.com",
		token:   token,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type ghTree struct {
	Truncated bool `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"tree"`
}

type ghRepoInfo struct {
	SizeKB      int `json:"size"`
	Stargazers  int `json:"stargazers_count"`
	Subscribers int `json:"subscribers_count"`
	License     *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

type ghCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

func (g *GitHub) ListFiles(ctx context.Context, repo Repo, revision string) ([]FileInfo, error) {
	var tree ghTree
	path := fmt.Sprintf("/repos/%s/git/trees/%s?recursive=1", repo.ID, revision)
	if err := g.apiGet(ctx, path, "", &tree); err != nil {
		return nil, fmt.Errorf("github: list %s: %w", repo.ID, err)
	}

	files := make([]FileInfo, 0, len(tree.Tree))
	for _, e := range tree.Tree {
		if e.Type != "blob" {
			continue
		}
		files = append(files, FileInfo{Path: e.Path, Size: e.Size})
	}
	return files, nil
}

func (g *GitHub) OpenFile(ctx context.Context, repo Repo, path, revision string) (io.ReadCloser, error) {
	rawURL := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", g.baseURL, repo.ID, path, revision)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	g.authorize(req)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: fetch %s/%s: %w", repo.ID, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("github: fetch %s/%s: status %d", repo.ID, path, resp.StatusCode)
	}
	return resp.Body, nil
}

func (g *GitHub) Metadata(ctx context.Context, repo Repo, revision string) (Metadata, error) {
	var info ghRepoInfo
	if err := g.apiGet(ctx, "/repos/"+repo.ID, "", &info); err != nil {
		return Metadata{}, fmt.Errorf("github: info %s: %w", repo.ID, err)
	}

	md := Metadata{
		SizeBytes: int64(info.SizeKB) * 1024,
		Likes:     info.Stargazers,
	}
	if info.License != nil {
		md.License = info.License.SPDXID
	}
	return md, nil
}

func (g *GitHub) RecentCommits(ctx context.Context, repo Repo, revision string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 30
	}
	var raw []ghCommit
	path := fmt.Sprintf("/repos/%s/commits?sha=%s&per_page=%d", repo.ID, revision, limit)
	if err := g.apiGet(ctx, path, "", &raw); err != nil {
		return nil, fmt.Errorf("github: commits %s: %w", repo.ID, err)
	}

	commits := make([]Commit, 0, len(raw))
	for _, c := range raw {
		author := c.Commit.Author.Name
		if c.Author != nil && c.Author.Login != "" {
			author = c.Author.Login
		}
		commits = append(commits, Commit{
			SHA:     c.SHA,
			Author:  author,
			Message: c.Commit.Message,
			Date:    c.Commit.Author.Date,
		})
	}
	return commits, nil
}

func (g *GitHub) apiGet(ctx context.Context, path, accept string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	g.authorize(req)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (g *GitHub) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

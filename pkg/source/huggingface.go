package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFace talks to the Hugging Face Hub REST API for models, datasets,
// and spaces.
type HuggingFace struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewHuggingFace creates a Hub client. token may be empty for public repos.
func NewHuggingFace(token string) *HuggingFace {
	return &HuggingFace{
		baseURL: "https://huggingface.co",
		token:   token,
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type hfTreeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type hfRepoInfo struct {
	Likes       int            `json:"likes"`
	Downloads   int            `json:"downloads"`
	UsedStorage int64          `json:"usedStorage"`
	Tags        []string       `json:"tags"`
	CardData    map[string]any `json:"cardData"`
}

type hfCommit struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Date    time.Time `json:"date"`
	Authors []struct {
		User string `json:"user"`
	} `json:"authors"`
}

func (h *HuggingFace) ListFiles(ctx context.Context, repo Repo, revision string) ([]FileInfo, error) {
	var entries []hfTreeEntry
	path := fmt.Sprintf("/api/%s/%s/tree/%s?recursive=true", repo.HubType, repo.ID, revision)
	if err := h.apiGet(ctx, path, &entries); err != nil {
		return nil, fmt.Errorf("huggingface: list %s: %w", repo.ID, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		files = append(files, FileInfo{Path: e.Path, Size: e.Size})
	}
	return files, nil
}

func (h *HuggingFace) OpenFile(ctx context.Context, repo Repo, path, revision string) (io.ReadCloser, error) {
	prefix := ""
	switch repo.HubType {
	case "datasets":
		prefix = "datasets/"
	case "spaces":
		prefix = "spaces/"
	}
	rawURL := fmt.Sprintf("%s/%s%s/resolve/%s/%s", h.baseURL, prefix, repo.ID, revision, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	h.authorize(req)

	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: fetch %s/%s: %w", repo.ID, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("huggingface: fetch %s/%s: status %d", repo.ID, path, resp.StatusCode)
	}
	return resp.Body, nil
}

func (h *HuggingFace) Metadata(ctx context.Context, repo Repo, revision string) (Metadata, error) {
	var info hfRepoInfo
	if err := h.apiGet(ctx, fmt.Sprintf("/api/%s/%s", repo.HubType, repo.ID), &info); err != nil {
		return Metadata{}, fmt.Errorf("huggingface: info %s: %w", repo.ID, err)
	}

	return Metadata{
		SizeBytes: info.UsedStorage,
		License:   hfLicense(info),
		Downloads: info.Downloads,
		Likes:     info.Likes,
	}, nil
}

func (h *HuggingFace) RecentCommits(ctx context.Context, repo Repo, revision string, limit int) ([]Commit, error) {
	var raw []hfCommit
	path := fmt.Sprintf("/api/%s/%s/commits/%s", repo.HubType, repo.ID, revision)
	if err := h.apiGet(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("huggingface: commits %s: %w", repo.ID, err)
	}

	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	commits := make([]Commit, 0, len(raw))
	for _, c := range raw {
		author := ""
		if len(c.Authors) > 0 {
			author = c.Authors[0].User
		}
		commits = append(commits, Commit{SHA: c.ID, Author: author, Message: c.Title, Date: c.Date})
	}
	return commits, nil
}

func (h *HuggingFace) apiGet(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	h.authorize(req)

	resp, err := h.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (h *HuggingFace) authorize(req *http.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

// hfLicense extracts the license identifier from card data or the
// "license:" tag the Hub attaches to tagged repos.
func hfLicense(info hfRepoInfo) string {
	if v, ok := info.CardData["license"]; ok {
		switch lic := v.(type) {
		case string:
			return lic
		case []any:
			if len(lic) > 0 {
				if s, ok := lic[0].(string); ok {
					return s
				}
			}
		}
	}
	for _, tag := range info.Tags {
		if strings.HasPrefix(tag, "license:") {
			return strings.TrimPrefix(tag, "license:")
		}
	}
	return ""
}

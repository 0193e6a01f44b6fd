// Package regctl is the client side of the registry API, shared by the CLI.
package regctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trustreg/services/registry"
)

// Client talks to one registry endpoint.
type Client struct {
	base  string
	httpc *http.Client
}

// NewClient builds a client for the given base URL. A nil http.Client gets a
// default with a generous timeout to cover blocking reads.
func NewClient(base string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{base: strings.TrimRight(base, "/"), httpc: httpc}
}

// SubmitResponse is the accepted-submission acknowledgement.
type SubmitResponse struct {
	ArtifactID string `json:"artifact_id"`
	Status     string `json:"status"`
}

// Submit registers a repository for ingestion.
func (c *Client) Submit(ctx context.Context, req registry.SubmitRequest) (SubmitResponse, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, err
	}
	var out SubmitResponse
	err = c.do(ctx, http.MethodPost, "/v1/artifacts", bytes.NewReader(raw), http.StatusAccepted, &out)
	return out, err
}

// Get fetches an artifact, waiting up to wait for it to become ready.
func (c *Client) Get(ctx context.Context, id string, wait time.Duration) (registry.Artifact, error) {
	var out registry.Artifact
	err := c.do(ctx, http.MethodGet, c.waitPath("/v1/artifacts/"+id, wait), nil, http.StatusOK, &out)
	return out, err
}

// Rating holds the scored view of one artifact.
type Rating struct {
	ArtifactID   string             `json:"artifact_id"`
	NetScore     *float64           `json:"net_score"`
	RatingScores map[string]float64 `json:"rating_scores"`
}

// GetRating fetches the per-metric scores, waiting like Get.
func (c *Client) GetRating(ctx context.Context, id string, wait time.Duration) (Rating, error) {
	var out Rating
	err := c.do(ctx, http.MethodGet, c.waitPath("/v1/artifacts/"+id+"/rating", wait), nil, http.StatusOK, &out)
	return out, err
}

func (c *Client) waitPath(path string, wait time.Duration) string {
	if wait <= 0 {
		return path
	}
	return fmt.Sprintf("%s?wait=%s", path, wait)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, wantStatus int, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("registry: %s (HTTP %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("registry: unexpected HTTP %d", resp.StatusCode)
}

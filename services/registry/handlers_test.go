package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeQueue struct {
	jobs []IngestJob
	fail bool
}

func (f *fakeQueue) Enqueue(_ context.Context, v any) error {
	if f.fail {
		return fmt.Errorf("queue unavailable")
	}
	f.jobs = append(f.jobs, v.(IngestJob))
	return nil
}

func newTestAPI(t *testing.T) (*API, *Store, *fakeQueue) {
	t.Helper()
	store := newTestStore(t)
	queue := &fakeQueue{}
	store.Queue = queue
	api, err := New(store, nil, Config{
		ArtifactBucket: "test-bucket",
		PollInterval:   5 * time.Millisecond,
		MaxWait:        100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return api, store, queue
}

func newTestServer(t *testing.T) (*httptest.Server, *Store, *fakeQueue) {
	t.Helper()
	api, store, queue := newTestAPI(t)
	routes, err := api.Routes()
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)
	return srv, store, queue
}

func submitBody(typ, url string) *bytes.Reader {
	raw, _ := json.Marshal(map[string]string{
		"artifact_type": typ,
		"source_url":    url,
	})
	return bytes.NewReader(raw)
}

func TestSubmitAccepted(t *testing.T) {
	srv, store, queue := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/artifacts", "application/json",
		submitBody("model", "https://huggingface.co/google/bert-base"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body struct {
		ArtifactID uuid.UUID `json:"artifact_id"`
		Status     string    `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != StatusPendingRating {
		t.Errorf("status = %s, want pending_rating", body.Status)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(queue.jobs))
	}
	if queue.jobs[0].ArtifactID != body.ArtifactID {
		t.Errorf("job artifact id %s != %s", queue.jobs[0].ArtifactID, body.ArtifactID)
	}

	stored, err := store.Get(context.Background(), body.ArtifactID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusPendingRating {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		name string
		typ  string
		url  string
	}{
		{"unknown type", "notebook", "https://huggingface.co/google/bert-base"},
		{"empty url", "model", ""},
		{"unsupported host", "model", "https://gitlab.com/acme/repo"},
		{"not a url", "model", "::::"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/artifacts", "application/json",
				submitBody(tc.typ, tc.url))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSubmitConflict(t *testing.T) {
	srv, _, queue := newTestServer(t)
	url := "https://huggingface.co/google/bert-base"

	resp, err := http.Post(srv.URL+"/v1/artifacts", "application/json", submitBody("model", url))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first submit = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/artifacts", "application/json", submitBody("model", url))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate submit = %d, want 409", resp.StatusCode)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("conflict enqueued a job: %d total", len(queue.jobs))
	}

	// The same source as a different type is not a duplicate.
	resp, err = http.Post(srv.URL+"/v1/artifacts", "application/json", submitBody("dataset", url))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("cross-type submit = %d, want 202", resp.StatusCode)
	}
}

func TestSubmitReplacesFailed(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()
	url := "https://huggingface.co/google/bert-base"

	stale := Artifact{
		ID:        uuid.New(),
		Name:      "bert-base",
		Type:      TypeModel,
		SourceURL: url,
		Revision:  "main",
		Status:    StatusFailed,
	}
	if err := store.Create(ctx, stale); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/v1/artifacts", "application/json", submitBody("model", url))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("resubmit over failed = %d, want 202", resp.StatusCode)
	}

	var body struct {
		ArtifactID uuid.UUID `json:"artifact_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ArtifactID == stale.ID {
		t.Error("resubmission reused the failed artifact id")
	}
	if _, err := store.Get(ctx, stale.ID); err != ErrNotFound {
		t.Errorf("stale row still present: %v", err)
	}
}

func TestSubmitEnqueueFailureLeavesNoRow(t *testing.T) {
	srv, store, queue := newTestServer(t)
	queue.fail = true
	url := "https://huggingface.co/google/bert-base"

	resp, err := http.Post(srv.URL+"/v1/artifacts", "application/json", submitBody("model", url))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if _, err := store.FindBySource(context.Background(), url, TypeModel); err != ErrNotFound {
		t.Errorf("pending row left behind after enqueue failure: %v", err)
	}
}

func TestGetReady(t *testing.T) {
	srv, store, _ := newTestServer(t)
	a := seedArtifact(t, store, StatusReady)

	resp, err := http.Get(srv.URL + "/v1/artifacts/" + a.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got Artifact
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.Status != StatusReady {
		t.Errorf("got %+v", got)
	}
}

func TestGetMissingAndTerminal(t *testing.T) {
	srv, store, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/artifacts/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing artifact = %d, want 404", resp.StatusCode)
	}

	dq := seedArtifactWith(t, store, StatusDisqualified, "https://github.com/acme/low")
	resp, err = http.Get(srv.URL + "/v1/artifacts/" + dq.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disqualified artifact = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/artifacts/not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", resp.StatusCode)
	}
}

func TestGetWaitsForReady(t *testing.T) {
	srv, store, _ := newTestServer(t)
	a := seedArtifact(t, store, StatusIngesting)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = store.Transition(context.Background(), a.ID, StatusIngesting, StatusReady, nil)
	}()

	resp, err := http.Get(srv.URL + "/v1/artifacts/" + a.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after transition", resp.StatusCode)
	}
}

func TestGetTimesOutWhileProcessing(t *testing.T) {
	srv, store, _ := newTestServer(t)
	a := seedArtifact(t, store, StatusPendingRating)

	resp, err := http.Get(srv.URL + "/v1/artifacts/" + a.ID.String() + "?wait=20ms")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
}

func TestGetRating(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()
	a := seedArtifact(t, store, StatusRatingInProgress)
	if err := store.SetRating(ctx, a.ID, map[string]float64{"license": 1}, 0.73); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(ctx, a.ID, StatusRatingInProgress, StatusReady, nil); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/artifacts/" + a.ID.String() + "/rating")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		NetScore     *float64           `json:"net_score"`
		RatingScores map[string]float64 `json:"rating_scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.NetScore == nil || *body.NetScore != 0.73 {
		t.Errorf("net score = %v, want 0.73", body.NetScore)
	}
	if body.RatingScores["license"] != 1 {
		t.Errorf("scores = %v", body.RatingScores)
	}
}

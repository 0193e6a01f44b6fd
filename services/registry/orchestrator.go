package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"trustreg/pkg/source"
)

// ErrConflict is returned when the same source and type is already
// registered and not in a re-registrable state.
var ErrConflict = errors.New("artifact already registered")

// ErrInvalidSubmission wraps validation failures on a submit request.
var ErrInvalidSubmission = errors.New("invalid submission")

// SubmitRequest is an ingestion request for one upstream repository.
type SubmitRequest struct {
	Name       string `json:"name"`
	Type       string `json:"artifact_type"`
	SourceURL  string `json:"source_url"`
	Revision   string `json:"revision"`
	UploadedBy string `json:"uploaded_by"`
}

// Orchestrator accepts submissions: it validates, deduplicates, records the
// pending artifact, and hands the job to the dispatch path.
type Orchestrator struct {
	Store  *Store
	Logger *log.Logger

	// Wake nudges an in-process fallback dispatcher when no queue is
	// configured. Optional.
	Wake func()
}

// Submit registers a repository for ingestion and returns the pending
// artifact. The heavy work happens asynchronously; callers poll the read
// endpoint for the outcome.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (Artifact, error) {
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	req.Type = strings.TrimSpace(req.Type)
	if req.SourceURL == "" {
		return Artifact{}, fmt.Errorf("%w: source_url is required", ErrInvalidSubmission)
	}
	if !ValidType(req.Type) {
		return Artifact{}, fmt.Errorf("%w: unknown artifact type %q", ErrInvalidSubmission, req.Type)
	}

	repo, err := source.Resolve(req.SourceURL, req.Type)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	if req.Revision == "" {
		req.Revision = "main"
	}
	if req.Name == "" {
		req.Name = source.DisplayName(repo)
	}

	// One live artifact per (source_url, type). A terminal failure may be
	// re-registered; the stale row is dropped first.
	existing, err := o.Store.FindBySource(ctx, req.SourceURL, req.Type)
	switch {
	case err == nil:
		if existing.Status != StatusFailed && existing.Status != StatusDisqualified {
			return Artifact{}, fmt.Errorf("%w: id %s status %s", ErrConflict, existing.ID, existing.Status)
		}
		if err := o.Store.Delete(ctx, existing.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return Artifact{}, fmt.Errorf("replace failed artifact: %w", err)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Artifact{}, err
	}

	artifact := Artifact{
		ID:         uuid.New(),
		Name:       req.Name,
		Type:       req.Type,
		SourceURL:  req.SourceURL,
		Revision:   req.Revision,
		Status:     StatusPendingRating,
		UploadedBy: req.UploadedBy,
	}
	if err := o.Store.Create(ctx, artifact); err != nil {
		return Artifact{}, err
	}

	job := IngestJob{
		ArtifactID:   artifact.ID,
		SourceURL:    artifact.SourceURL,
		ArtifactType: artifact.Type,
		Revision:     artifact.Revision,
	}
	if o.Store.Queue != nil {
		if err := o.Store.Queue.Enqueue(ctx, job); err != nil {
			// Do not leave a pending row no dispatcher will ever see.
			if delErr := o.Store.Delete(ctx, artifact.ID); delErr != nil {
				o.logf("ERROR orphaned artifact %s after enqueue failure: %v", artifact.ID, delErr)
			}
			return Artifact{}, fmt.Errorf("enqueue ingest job: %w", err)
		}
	} else if o.Wake != nil {
		o.Wake()
	}

	o.logf("INFO accepted %s artifact %s (%s)", artifact.Type, artifact.ID, artifact.SourceURL)
	return artifact, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

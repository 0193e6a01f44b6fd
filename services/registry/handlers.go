package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	artifact, err := a.orch.Submit(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidSubmission):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrConflict):
		respondError(w, http.StatusConflict, err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respondJSON(w, http.StatusAccepted, map[string]any{
			"artifact_id": artifact.ID,
			"status":      artifact.Status,
		})
	}
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	artifact, ok := a.awaitArtifact(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, artifact)
}

func (a *API) handleRating(w http.ResponseWriter, r *http.Request) {
	artifact, ok := a.awaitArtifact(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"artifact_id":   artifact.ID,
		"net_score":     artifact.NetScore,
		"rating_scores": artifact.RatingScores,
	})
}

// awaitArtifact polls the store until the artifact is ready or the wait is
// exhausted. It writes the failure response itself; a false return means the
// caller has nothing left to do. In-flight artifacts are never exposed.
func (a *API) awaitArtifact(w http.ResponseWriter, r *http.Request) (Artifact, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid artifact id: %w", err))
		return Artifact{}, false
	}

	wait := a.config.MaxWait
	if raw := r.URL.Query().Get("wait"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid wait: %w", err))
			return Artifact{}, false
		}
		if parsed < wait {
			wait = parsed
		}
	}

	deadline := time.Now().Add(wait)
	for {
		artifact, err := a.store.Get(r.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			respondError(w, http.StatusNotFound, err)
			return Artifact{}, false
		case err != nil:
			respondError(w, http.StatusInternalServerError, err)
			return Artifact{}, false
		}

		switch artifact.Status {
		case StatusReady:
			a.refreshDownloadURL(r.Context(), &artifact)
			return artifact, true
		case StatusDisqualified, StatusFailed:
			respondError(w, http.StatusNotFound,
				fmt.Errorf("artifact %s: %s", artifact.Status, artifact.StatusMessage))
			return Artifact{}, false
		}

		if time.Now().Add(a.config.PollInterval).After(deadline) {
			respondError(w, http.StatusGatewayTimeout,
				fmt.Errorf("artifact still processing (status %s)", artifact.Status))
			return Artifact{}, false
		}
		select {
		case <-r.Context().Done():
			respondError(w, http.StatusGatewayTimeout, r.Context().Err())
			return Artifact{}, false
		case <-time.After(a.config.PollInterval):
		}
	}
}

// refreshDownloadURL presigns a fresh link when the stored one is absent.
// Presign failures degrade to a record without a link rather than failing
// the read.
func (a *API) refreshDownloadURL(ctx context.Context, artifact *Artifact) {
	if artifact.DownloadURL != "" || artifact.ObjectKey == "" || a.store.S3 == nil {
		return
	}
	url, err := a.store.S3.PresignGet(ctx, a.config.ArtifactBucket, artifact.ObjectKey, a.config.PresignTTL)
	if err != nil {
		a.logf("WARN presign %s: %v", artifact.ObjectKey, err)
		return
	}
	artifact.DownloadURL = url
}

func (a *API) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

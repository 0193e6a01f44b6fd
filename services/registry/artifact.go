package registry

import (
	"time"

	"github.com/google/uuid"
)

// Artifact types accepted for ingestion.
const (
	TypeModel   = "model"
	TypeDataset = "dataset"
	TypeCode    = "code"
)

// Artifact lifecycle statuses. Transitions move forward only:
// pending_rating → rating_in_progress → ingesting → ready, with
// disqualified and failed as terminal branches.
const (
	StatusPendingRating    = "pending_rating"
	StatusRatingInProgress = "rating_in_progress"
	StatusIngesting        = "ingesting"
	StatusReady            = "ready"
	StatusDisqualified     = "disqualified"
	StatusFailed           = "failed"
)

// ValidType reports whether t is an accepted artifact type.
func ValidType(t string) bool {
	switch t {
	case TypeModel, TypeDataset, TypeCode:
		return true
	default:
		return false
	}
}

// TerminalStatus reports whether s is a state the pipeline never leaves.
func TerminalStatus(s string) bool {
	switch s {
	case StatusReady, StatusDisqualified, StatusFailed:
		return true
	default:
		return false
	}
}

// Artifact is the registry's record of one ingested repository snapshot.
type Artifact struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	Type          string             `json:"type"`
	SourceURL     string             `json:"source_url"`
	Revision      string             `json:"revision"`
	Status        string             `json:"status"`
	StatusMessage string             `json:"status_message,omitempty"`
	ObjectKey     string             `json:"object_key,omitempty"`
	SHA256        string             `json:"sha256,omitempty"`
	SizeBytes     int64              `json:"size_bytes"`
	DownloadURL   string             `json:"download_url,omitempty"`
	RatingScores  map[string]float64 `json:"rating_scores,omitempty"`
	NetScore      *float64           `json:"net_score,omitempty"`
	UploadedBy    string             `json:"uploaded_by,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IngestJob is the queue payload dispatched per accepted submission. It
// carries enough to rebuild the pipeline input without reading the queue's
// view of the artifact row.
type IngestJob struct {
	ArtifactID   uuid.UUID `json:"artifact_id"`
	SourceURL    string    `json:"source_url"`
	ArtifactType string    `json:"artifact_type"`
	Revision     string    `json:"revision"`
}

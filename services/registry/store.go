package registry

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	trs3 "trustreg/pkg/s3"
)

// ErrNotFound is returned when an artifact id or source lookup misses.
var ErrNotFound = errors.New("artifact not found")

// Status messages are truncated so one huge provider error cannot bloat the
// row.
const maxStatusMessage = 500

// Enqueuer dispatches ingest jobs. *bus.Queue satisfies it; a nil Enqueuer
// on the Store selects the in-process fallback dispatch.
type Enqueuer interface {
	Enqueue(ctx context.Context, v any) error
}

// Store holds the registry's external dependencies and the artifact
// persistence operations shared by the API and the ingest worker.
type Store struct {
	DB    *pgxpool.Pool
	ORM   *gorm.DB
	S3    *trs3.Client
	Queue Enqueuer
}

// AutoMigrate creates the artifact schema on the given ORM. Production
// schemas come from the goose migrations; this covers embedded databases.
func AutoMigrate(orm *gorm.DB) error {
	return orm.AutoMigrate(&artifactModel{})
}

// Create inserts a fresh artifact row. The schema's unique index on
// (source_url, type) is the last line of defense against concurrent
// submissions of the same source; a duplicate insert surfaces as
// ErrConflict.
func (s *Store) Create(ctx context.Context, a Artifact) error {
	model := artifactModel{
		ID:           a.ID,
		Name:         a.Name,
		Type:         a.Type,
		SourceURL:    a.SourceURL,
		Revision:     a.Revision,
		Status:       a.Status,
		UploadedBy:   a.UploadedBy,
		RatingScores: scoresToJSONMap(a.RatingScores),
	}
	if err := s.ORM.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s (%s)", ErrConflict, a.SourceURL, a.Type)
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

// Get loads one artifact by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Artifact, error) {
	var model artifactModel
	err := s.ORM.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("get artifact: %w", err)
	}
	return model.toAPI(), nil
}

// FindBySource looks up the artifact registered for a source URL and type.
func (s *Store) FindBySource(ctx context.Context, sourceURL, typ string) (Artifact, error) {
	var model artifactModel
	err := s.ORM.WithContext(ctx).
		First(&model, "source_url = ? AND type = ?", sourceURL, typ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("find artifact by source: %w", err)
	}
	return model.toAPI(), nil
}

// ListByStatus returns up to limit artifacts in a status, oldest first. The
// fallback dispatcher uses it to drain pending work in submission order.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]Artifact, error) {
	var models []artifactModel
	err := s.ORM.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list artifacts by status: %w", err)
	}
	out := make([]Artifact, 0, len(models))
	for _, m := range models {
		out = append(out, m.toAPI())
	}
	return out, nil
}

// Delete removes an artifact row. Used only when re-registering over a
// terminal failure.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.ORM.WithContext(ctx).Delete(&artifactModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete artifact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition advances an artifact from one status to the next with a
// compare-and-set on the expected pre-state. The returned bool reports
// whether this caller won the transition; false means another worker owns
// the artifact or it already moved on. Extra column updates ride along
// atomically with the status change.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to string, updates map[string]any) (bool, error) {
	set := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	res := s.ORM.WithContext(ctx).
		Model(&artifactModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(set)
	if res.Error != nil {
		return false, fmt.Errorf("transition %s to %s: %w", from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed moves a non-terminal artifact to failed with a truncated
// explanation. Failing an artifact that already reached a terminal status is
// a no-op.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	res := s.ORM.WithContext(ctx).
		Model(&artifactModel{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{StatusReady, StatusDisqualified, StatusFailed}).
		Updates(map[string]any{
			"status":         StatusFailed,
			"status_message": TruncateMessage(msg),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark failed: %w", res.Error)
	}
	return nil
}

// SetRating records the per-metric scores and net score on an artifact
// without touching its status.
func (s *Store) SetRating(ctx context.Context, id uuid.UUID, scores map[string]float64, net float64) error {
	res := s.ORM.WithContext(ctx).
		Model(&artifactModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rating_scores": scoresToJSONMap(scores),
			"net_score":     net,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("set rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TruncateMessage caps a status message at the stored limit, cutting on a
// rune boundary so the stored text stays valid UTF-8.
func TruncateMessage(msg string) string {
	if len(msg) <= maxStatusMessage {
		return msg
	}
	cut := maxStatusMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

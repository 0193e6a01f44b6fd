package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type artifactModel struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name          string            `gorm:"type:text;not null"`
	Type          string            `gorm:"type:text;not null;uniqueIndex:idx_artifacts_source_type"`
	SourceURL     string            `gorm:"type:text;not null;uniqueIndex:idx_artifacts_source_type"`
	Revision      string            `gorm:"type:text;not null;default:'main'"`
	Status        string            `gorm:"type:text;not null;index"`
	StatusMessage string            `gorm:"type:text"`
	ObjectKey     string            `gorm:"type:text"`
	SHA256        string            `gorm:"type:text;index"`
	SizeBytes     int64             `gorm:"type:bigint;not null;default:0"`
	DownloadURL   string            `gorm:"type:text"`
	RatingScores  datatypes.JSONMap `gorm:"type:jsonb"`
	NetScore      *float64          `gorm:"type:double precision"`
	UploadedBy    string            `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"not null;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"not null;autoUpdateTime"`
}

func (artifactModel) TableName() string { return "artifacts" }

func (m artifactModel) toAPI() Artifact {
	return Artifact{
		ID:            m.ID,
		Name:          m.Name,
		Type:          m.Type,
		SourceURL:     m.SourceURL,
		Revision:      m.Revision,
		Status:        m.Status,
		StatusMessage: m.StatusMessage,
		ObjectKey:     m.ObjectKey,
		SHA256:        m.SHA256,
		SizeBytes:     m.SizeBytes,
		DownloadURL:   m.DownloadURL,
		RatingScores:  scoresFromJSONMap(m.RatingScores),
		NetScore:      m.NetScore,
		UploadedBy:    m.UploadedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func scoresFromJSONMap(src datatypes.JSONMap) map[string]float64 {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		}
	}
	return out
}

func scoresToJSONMap(src map[string]float64) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range src {
		out[k] = v
	}
	return out
}

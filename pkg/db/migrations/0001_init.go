package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Artifact struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name          string            `gorm:"type:text;not null;index"`
	Type          string            `gorm:"type:text;not null;index"`
	SourceURL     string            `gorm:"type:text;not null;index"`
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
	CreatedAt     time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(&Artifact{}); err != nil {
		return err
	}

	// One row per (source_url, type); concurrent submissions of the same
	// source race on this constraint, not on an application-level check.
	return gormDB.WithContext(ctx).Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_source_type ON artifacts (source_url, type)`,
	).Error
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&Artifact{})
}

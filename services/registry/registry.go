// Package registry implements the artifact registry's HTTP API: accepting
// submissions, answering reads once the asynchronous pipeline settles, and
// exposing ratings.
package registry

import (
	"errors"
	"log"
	"os"
	"time"
)

const (
	defaultPresignTTL   = time.Hour
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxWait      = 15 * time.Second
)

// Config controls runtime behaviour for the registry handlers.
type Config struct {
	// ArtifactBucket holds the uploaded archives.
	ArtifactBucket string
	// PresignTTL bounds the lifetime of returned download URLs.
	PresignTTL time.Duration
	// PollInterval is the store re-read cadence for blocking reads.
	PollInterval time.Duration
	// MaxWait caps how long a blocking read may hold the request open.
	MaxWait time.Duration
}

// API wires the store, orchestrator, and configuration behind the HTTP
// handlers.
type API struct {
	store  *Store
	orch   *Orchestrator
	config Config
	logger *log.Logger
}

// New initialises the API layer with defaults applied to the provided
// configuration.
func New(store *Store, logger *log.Logger, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}

	if cfg.ArtifactBucket == "" {
		cfg.ArtifactBucket = os.Getenv("S3_BUCKET")
	}
	if cfg.ArtifactBucket == "" {
		return nil, errors.New("artifact bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}

	return &API{
		store:  store,
		orch:   &Orchestrator{Store: store, Logger: logger},
		config: cfg,
		logger: logger,
	}, nil
}

// Orchestrator exposes the submission path, mainly so an in-process
// dispatcher can hook its wakeup callback.
func (a *API) Orchestrator() *Orchestrator { return a.orch }

package ingestd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	trs3 "trustreg/pkg/s3"
)

// Config carries the worker's runtime settings, all sourced from the
// environment.
type Config struct {
	Bucket string

	// PartSize is the multipart flush threshold in bytes.
	PartSize int
	// Slots is the number of concurrent pipeline runs.
	Slots int
	// PollWait is the queue long-poll window per fetch.
	PollWait time.Duration
	// FallbackInterval is the pending-artifact scan cadence when no queue
	// is configured.
	FallbackInterval time.Duration

	// PolicyPath optionally points at a YAML admission policy.
	PolicyPath string

	HuggingFaceToken string
	GitHubToken      string
}

// Load reads the worker configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Bucket:           os.Getenv("S3_BUCKET"),
		PartSize:         trs3.DefaultPartSize,
		Slots:            getEnvInt("INGEST_SLOTS", 2),
		PollWait:         getEnvDuration("INGEST_POLL_WAIT", 10*time.Second),
		FallbackInterval: getEnvDuration("INGEST_FALLBACK_INTERVAL", 15*time.Second),
		PolicyPath:       os.Getenv("RATING_POLICY_FILE"),
		HuggingFaceToken: os.Getenv("HF_TOKEN"),
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
	}

	if cfg.Bucket == "" {
		return Config{}, fmt.Errorf("S3_BUCKET is required")
	}
	if cfg.Slots <= 0 {
		return Config{}, fmt.Errorf("INGEST_SLOTS must be positive, got %d", cfg.Slots)
	}

	if raw := os.Getenv("INGEST_PART_SIZE_MB"); raw != "" {
		mb, err := strconv.Atoi(raw)
		if err != nil || mb <= 0 {
			return Config{}, fmt.Errorf("invalid INGEST_PART_SIZE_MB: %q", raw)
		}
		cfg.PartSize = mb << 20
	}
	if cfg.PartSize < trs3.MinPartSize {
		return Config{}, fmt.Errorf("part size %d below provider minimum %d", cfg.PartSize, trs3.MinPartSize)
	}

	return cfg, nil
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

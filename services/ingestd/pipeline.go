package ingestd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"trustreg/pkg/rating"
	"trustreg/pkg/source"
	"trustreg/services/registry"
)

// Pipeline runs one ingest job end to end: prefetch, gate, archive, terminal
// status. Each stage entry is guarded by a status compare-and-set, so two
// workers handed the same job cannot both mutate the artifact.
type Pipeline struct {
	Store    *registry.Store
	Sources  source.Clients
	Gate     *rating.Gate
	Archiver *Archiver
	Logger   *log.Logger
	Metrics  *Metrics
}

// Run processes a single job. A returned error means the job should be
// redelivered; pipeline failures that are the artifact's own fault settle
// into the failed status and return nil.
func (p *Pipeline) Run(ctx context.Context, job registry.IngestJob) error {
	start := time.Now()
	outcome, err := p.run(ctx, job)
	p.Metrics.observe(outcome, time.Since(start).Seconds())
	if err != nil {
		p.logf("ERROR artifact %s: %v", job.ArtifactID, err)
	} else {
		p.logf("INFO artifact %s settled as %s", job.ArtifactID, outcome)
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, job registry.IngestJob) (string, error) {
	id := job.ArtifactID

	// Take the rating lease. Losing it means the artifact already settled;
	// this delivery is done.
	won, err := p.acquireLease(ctx, id)
	if err != nil {
		return "error", err
	}
	if !won {
		return "dropped", nil
	}

	repo, err := source.Resolve(job.SourceURL, job.ArtifactType)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("resolve source: %w", err))
	}
	client, err := p.Sources.For(repo)
	if err != nil {
		return p.fail(ctx, id, err)
	}

	snap, err := prefetch(ctx, client, repo, job.ArtifactType, job.Revision)
	if err != nil {
		return p.fail(ctx, id, err)
	}

	result := p.Gate.Evaluate(ctx, snap)
	if err := p.Store.SetRating(ctx, id, result.Scores, result.NetScore); err != nil {
		return "error", err
	}

	if !result.Passed {
		msg := fmt.Sprintf("net score %.3f below admission policy (failed: %s)",
			result.NetScore, strings.Join(result.Failed, ", "))
		won, err := p.Store.Transition(ctx, id,
			registry.StatusRatingInProgress, registry.StatusDisqualified,
			map[string]any{"status_message": registry.TruncateMessage(msg)})
		if err != nil {
			return "error", err
		}
		if !won {
			return "dropped", nil
		}
		return "disqualified", nil
	}

	won, err = p.Store.Transition(ctx, id, registry.StatusRatingInProgress, registry.StatusIngesting, nil)
	if err != nil {
		return "error", err
	}
	if !won {
		return "dropped", nil
	}

	res, err := p.Archiver.Archive(ctx, client, repo, job.ArtifactType, id, job.Revision)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("archive: %w", err))
	}
	p.Metrics.addUploaded(res.SizeBytes)

	won, err = p.Store.Transition(ctx, id, registry.StatusIngesting, registry.StatusReady, map[string]any{
		"object_key": res.ObjectKey,
		"sha256":     res.SHA256,
		"size_bytes": res.SizeBytes,
	})
	if err != nil {
		return "error", err
	}
	if !won {
		return "dropped", nil
	}
	return "ready", nil
}

// acquireLease claims the artifact for this run. A fresh job claims it from
// pending_rating; a redelivered job may find the row parked in
// rating_in_progress or ingesting by a worker that died mid-run, and the
// whole pipeline restarts from scratch. The queue's ack wait guarantees the
// previous delivery is no longer being worked when redelivery fires.
func (p *Pipeline) acquireLease(ctx context.Context, id uuid.UUID) (bool, error) {
	for _, from := range []string{
		registry.StatusPendingRating,
		registry.StatusRatingInProgress,
		registry.StatusIngesting,
	} {
		won, err := p.Store.Transition(ctx, id, from, registry.StatusRatingInProgress, nil)
		if won || err != nil {
			return won, err
		}
	}
	return false, nil
}

// fail settles the artifact as failed with a truncated explanation. The job
// itself is consumed; failed artifacts are only retried by resubmission.
func (p *Pipeline) fail(ctx context.Context, id uuid.UUID, cause error) (string, error) {
	if err := p.Store.MarkFailed(ctx, id, cause.Error()); err != nil {
		return "error", err
	}
	p.logf("WARN artifact %s failed: %v", id, cause)
	return "failed", nil
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

package ingestd

import (
	"context"
	"log"
	"sync"
	"time"

	"trustreg/pkg/bus"
	"trustreg/services/registry"
)

// Worker drains the ingest queue with a fixed number of concurrent slots.
// Without a queue it falls back to scanning the store for pending artifacts
// in submission order, one at a time.
type Worker struct {
	Pipeline *Pipeline
	Queue    *bus.Queue
	Store    *registry.Store
	Logger   *log.Logger

	Slots            int
	PollWait         time.Duration
	FallbackInterval time.Duration

	wakeOnce sync.Once
	wake     chan struct{}
}

// Wake nudges the fallback scanner ahead of its next tick. Safe to call from
// any goroutine; a no-op in queue mode.
func (w *Worker) Wake() {
	select {
	case w.wakeCh() <- struct{}{}:
	default:
	}
}

func (w *Worker) wakeCh() chan struct{} {
	w.wakeOnce.Do(func() { w.wake = make(chan struct{}, 1) })
	return w.wake
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil {
		w.logf("INFO no queue configured, running fallback dispatcher")
		return w.runFallback(ctx)
	}

	var wg sync.WaitGroup
	for i := 0; i < w.Slots; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context) {
	for ctx.Err() == nil {
		delivery, err := w.Queue.Dequeue(ctx, w.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logf("ERROR dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}

		var job registry.IngestJob
		if err := delivery.Decode(&job); err != nil {
			w.logf("ERROR undecodable job dropped: %v", err)
			_ = delivery.Ack()
			continue
		}

		if err := w.Pipeline.Run(ctx, job); err != nil {
			// Store-level trouble; leave the job for redelivery.
			_ = delivery.Nak()
			continue
		}
		_ = delivery.Ack()
	}
}

// runFallback periodically drains pending artifacts directly from the store.
// It also catches rows whose enqueued job was lost.
func (w *Worker) runFallback(ctx context.Context) error {
	ticker := time.NewTicker(w.FallbackInterval)
	defer ticker.Stop()

	for {
		w.drainPending(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.wakeCh():
		}
	}
}

// drainPending works off queued submissions oldest first, then sweeps rows
// a crashed run left parked in an in-flight status so they re-run from
// scratch.
func (w *Worker) drainPending(ctx context.Context) {
	for _, status := range []string{
		registry.StatusPendingRating,
		registry.StatusRatingInProgress,
		registry.StatusIngesting,
	} {
		w.drainStatus(ctx, status)
	}
}

func (w *Worker) drainStatus(ctx context.Context, status string) {
	for ctx.Err() == nil {
		pending, err := w.Store.ListByStatus(ctx, status, 1)
		if err != nil {
			w.logf("ERROR scan pending artifacts: %v", err)
			return
		}
		if len(pending) == 0 {
			return
		}
		a := pending[0]
		job := registry.IngestJob{
			ArtifactID:   a.ID,
			SourceURL:    a.SourceURL,
			ArtifactType: a.Type,
			Revision:     a.Revision,
		}
		if err := w.Pipeline.Run(ctx, job); err != nil {
			w.logf("ERROR fallback run %s: %v", a.ID, err)
			return
		}
	}
}

func (w *Worker) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
	}
}

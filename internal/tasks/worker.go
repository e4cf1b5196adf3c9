package tasks

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"morphocore/internal/observability"
)

// DefaultConcurrency bounds concurrent runs when no limit is configured.
const DefaultConcurrency = 2

// Summary counts the outcomes of one Drain.
type Summary struct {
	Completed int
	Failed    int
}

// Worker drains approved requests. Every request gets its own orchestrator
// and transaction; requests run concurrently up to Limit.
type Worker struct {
	handler *Handler
	limit   int
	logger  observability.Logger
}

// NewWorker returns a worker over h. limit <= 0 uses DefaultConcurrency.
func NewWorker(h *Handler, limit int) *Worker {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Worker{handler: h, limit: limit, logger: h.logger}
}

// Drain processes every approved duplication and partition publishing
// request. Failed requests are recorded on the request and counted; only
// listing errors and cancellation are returned.
func (w *Worker) Drain(ctx context.Context) (Summary, error) {
	var jobs []func(context.Context) (int64, error)
	for _, kind := range []Kind{KindDuplication, KindPartitionPublish} {
		ids, err := w.handler.store.Approved(ctx, kind)
		if err != nil {
			return Summary{}, err
		}
		for _, id := range ids {
			id := id
			switch kind {
			case KindDuplication:
				jobs = append(jobs, func(ctx context.Context) (int64, error) { return w.handler.HandleDuplication(ctx, id) })
			case KindPartitionPublish:
				jobs = append(jobs, func(ctx context.Context) (int64, error) { return w.handler.HandlePartitionPublish(ctx, id) })
			}
		}
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := job(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return nil
			}
			summary.Completed++
			return nil
		})
	}
	err := g.Wait()
	w.logger.Info("drained requests", "completed", summary.Completed, "failed", summary.Failed)
	return summary, err
}

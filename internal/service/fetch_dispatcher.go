package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/pkg/jobs"
)

const fetchJobType = "history_fetch"

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// FetchDispatcher runs grid fetches on the shared worker queue so the number
// of concurrent history queries stays bounded across every mounted grid. It
// implements history.Dispatcher.
type FetchDispatcher struct {
	queue jobEnqueuer
}

// NewFetchDispatcher wraps a started queue.
func NewFetchDispatcher(queue jobEnqueuer) *FetchDispatcher {
	return &FetchDispatcher{queue: queue}
}

// Dispatch implements history.Dispatcher. A full queue fails the fetch rather
// than blocking the caller.
func (d *FetchDispatcher) Dispatch(task func(ctx context.Context)) error {
	return d.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: fetchJobType, Payload: task})
}

// NewFetchQueue builds the worker queue that executes dispatched fetches.
// A failed fetch is reported to the grid that issued it, never retried.
func NewFetchQueue(workers, buffer int, logger *zap.Logger) *jobs.Queue {
	return jobs.NewQueue(fetchJobType, runFetchJob, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: buffer,
		Logger:     logger,
	})
}

func runFetchJob(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(func(context.Context))
	if !ok {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	task(ctx)
	return nil
}

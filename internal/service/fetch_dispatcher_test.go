package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/qlf-monitor-api/pkg/jobs"
)

func TestFetchDispatcherRunsTasksOnQueue(t *testing.T) {
	defer goleak.VerifyNone(t)
	queue := NewFetchQueue(2, 4, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	dispatcher := NewFetchDispatcher(queue)
	done := make(chan struct{})
	require.NoError(t, dispatcher.Dispatch(func(ctx context.Context) {
		assert.NotNil(t, ctx)
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestFetchDispatcherFailsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)
	queue := NewFetchQueue(1, 1, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	dispatcher := NewFetchDispatcher(queue)
	require.NoError(t, dispatcher.Dispatch(func(ctx context.Context) {
		close(started)
		select {
		case <-block:
		case <-ctx.Done():
		}
	}))
	<-started
	require.NoError(t, dispatcher.Dispatch(func(context.Context) {}))

	err := dispatcher.Dispatch(func(context.Context) {})
	require.ErrorIs(t, err, jobs.ErrQueueFull)
	close(block)
}

func TestFetchDispatcherRequiresStartedQueue(t *testing.T) {
	defer goleak.VerifyNone(t)
	dispatcher := NewFetchDispatcher(NewFetchQueue(1, 1, nil))
	require.ErrorIs(t, dispatcher.Dispatch(func(context.Context) {}), jobs.ErrQueueStopped)
}

func TestRunFetchJobRejectsForeignPayload(t *testing.T) {
	err := runFetchJob(context.Background(), jobs.Job{ID: "x", Payload: 42})
	require.Error(t, err)
}

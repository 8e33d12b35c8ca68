package main

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stepRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *stepRecorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *stepRecorder) Shutdown() {
	r.add("grids")
}

func TestShutdownClosesGridsBeforeDrainingServer(t *testing.T) {
	rec := &stepRecorder{}
	srv := &http.Server{}
	srv.RegisterOnShutdown(func() { rec.add("server") })

	require.NoError(t, shutdown(zap.NewNop(), srv, rec, time.Second))

	// OnShutdown hooks run in their own goroutine.
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.steps) == 2
	}, time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"grids", "server"}, rec.steps)
}

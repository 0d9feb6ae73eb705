package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST SUITE: WORKING POOL
// ============================================================================

func TestWorkingPool_QueuedJobsStillRunAfterCancel(t *testing.T) {
	pool := NewWorkingPool(1, 3)
	ctx, cancel := context.WithCancel(context.Background())

	var managerWg sync.WaitGroup
	managerWg.Add(1)
	go pool.Start(ctx, &managerWg)

	// Occupy the only worker so the next submissions stay queued.
	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.SubmitJob(ctx, func(context.Context) error {
		close(started)
		<-gate
		return nil
	}))
	<-started

	var batch sync.WaitGroup
	var executed atomic.Int32
	for i := 0; i < 3; i++ {
		batch.Add(1)
		require.NoError(t, pool.SubmitJob(ctx, func(context.Context) error {
			defer batch.Done()
			executed.Add(1)
			return nil
		}))
	}

	// Shutdown arrives while three jobs sit in the queue. They must still
	// execute so anything waiting on the batch is released.
	cancel()
	close(gate)

	batchDone := make(chan struct{})
	go func() {
		batch.Wait()
		close(batchDone)
	}()
	select {
	case <-batchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("queued jobs were stranded after cancellation")
	}

	managerDone := make(chan struct{})
	go func() {
		managerWg.Wait()
		close(managerDone)
	}()
	select {
	case <-managerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after draining its queue")
	}

	assert.Equal(t, int32(3), executed.Load())
}

func TestWorkingPool_DrainedJobsSeeCanceledContext(t *testing.T) {
	pool := NewWorkingPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	var managerWg sync.WaitGroup
	managerWg.Add(1)
	go pool.Start(ctx, &managerWg)

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.SubmitJob(ctx, func(context.Context) error {
		close(started)
		<-gate
		return nil
	}))
	<-started

	ctxErr := make(chan error, 1)
	require.NoError(t, pool.SubmitJob(ctx, func(jobCtx context.Context) error {
		ctxErr <- jobCtx.Err()
		return nil
	}))

	cancel()
	close(gate)

	select {
	case err := <-ctxErr:
		assert.ErrorIs(t, err, context.Canceled, "drained jobs must observe the shutdown and fail fast")
	case <-time.After(2 * time.Second):
		t.Fatal("queued job never ran")
	}
	managerWg.Wait()
}

func TestWorkingPool_SubmitFailsOnceContextIsDone(t *testing.T) {
	pool := NewWorkingPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the queue so the submit cannot win the select by buffering.
	pool.jobChan <- func(context.Context) error { return nil }

	err := pool.SubmitJob(ctx, func(context.Context) error { return nil })
	assert.Error(t, err)
}

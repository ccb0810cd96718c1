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

func TestClampSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"positive passes through", 8, 8},
		{"zero clamps", 0, UnlimitedClamp},
		{"historical unlimited clamps", -1, UnlimitedClamp},
		{"other negatives clamp", -8, UnlimitedClamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampSize(tt.size))
		})
	}
}

func TestPool_SubmitRunsTask(t *testing.T) {
	p := New(2, 4)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(time.Second)

	var ran atomic.Bool
	done := make(chan struct{})
	err := p.Submit(func() {
		ran.Store(true)
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
	assert.True(t, ran.Load())
}

func TestPool_OverflowReturnsErrQueueFull(t *testing.T) {
	// One worker, admission capacity two: the in-flight task plus one
	// queued task exhaust admission, and a third submit has nowhere to
	// land.
	p := New(1, 2)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(time.Second)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(started); <-block }))
	<-started
	require.NoError(t, p.Submit(func() {}))

	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestPool_CapacityDefaultsToWorkerCount(t *testing.T) {
	// Capacity 0 means "pool size == worker count": with both workers
	// occupied the next submit fails, there is no hidden queue headroom.
	p := New(2, 0)
	p.Start(context.Background())
	defer p.Stop(time.Second)

	block := make(chan struct{})
	defer close(block)
	for i := 0; i < 2; i++ {
		started := make(chan struct{})
		require.NoError(t, p.Submit(func() { close(started); <-block }))
		<-started
	}

	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPool_StopDrainsInFlightWork(t *testing.T) {
	p := New(4, 8)
	ctx := context.Background()
	p.Start(ctx)

	var completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
		})
		require.NoError(t, err)
	}

	require.NoError(t, p.Stop(2*time.Second))
	wg.Wait()
	assert.Equal(t, int32(8), completed.Load(), "Stop must wait for queued and in-flight tasks to drain")
}

func TestPool_StopIsIdempotent(t *testing.T) {
	p := New(1, 1)
	p.Start(context.Background())
	require.NoError(t, p.Stop(time.Second))
	require.NoError(t, p.Stop(time.Second))
}

func TestPool_SubmitAfterStopFails(t *testing.T) {
	p := New(1, 1)
	p.Start(context.Background())
	require.NoError(t, p.Stop(time.Second))

	err := p.Submit(func() {})
	assert.Error(t, err)
}

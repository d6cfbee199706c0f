package coord

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsJobs(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 2, QueueSize: 10})
	defer p.Shutdown()

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.True(t, p.Submit(func(ctx context.Context) { n.Add(1) }))
	}

	assert.Eventually(t, func() bool { return n.Load() == 5 }, time.Second, 10*time.Millisecond)
}

func TestPool_RejectsWhenFull(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1})
	defer p.Shutdown()

	started := make(chan struct{})
	block := func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}
	require.True(t, p.Submit(block))
	<-started

	require.True(t, p.Submit(func(ctx context.Context) {}))
	assert.False(t, p.Submit(func(ctx context.Context) {}))
}

func TestPool_ShutdownCancelsJobs(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1})

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	p.Shutdown()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
	assert.False(t, p.Submit(func(ctx context.Context) {}))
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1})
	defer p.Shutdown()

	done := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context) { panic("bad job") }))
	require.True(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

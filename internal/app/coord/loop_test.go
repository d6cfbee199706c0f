package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, Do(context.Background(), l, func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostFromLoopDoesNotBlock(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() {
		for i := 0; i < 1000; i++ {
			l.Post(func() {})
		}
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested posts did not run")
	}
}

func TestCall_ReturnsValueAndError(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	v, err := Call(context.Background(), l, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	sentinel := errors.New("boom")
	_, err = Call(context.Background(), l, func() (int, error) { return 0, sentinel })
	assert.True(t, errors.Is(err, sentinel))
}

func TestCall_RecoversPanic(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	_, err := Call(context.Background(), l, func() (int, error) { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	// The loop survives the panic.
	v, err := Call(context.Background(), l, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCall_CallerCanAbandonWait(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Call(ctx, l, func() (int, error) { return 1, nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLoop_Close(t *testing.T) {
	l := NewLoop()
	l.Close()
	l.Wait()

	assert.False(t, l.Post(func() {}))
	_, err := Call(context.Background(), l, func() (int, error) { return 1, nil })
	assert.True(t, errors.Is(err, ErrClosed))

	// Closing twice is harmless.
	l.Close()
}

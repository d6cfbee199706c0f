// Package coord provides the coordination loop that owns all source mutation and
// the worker pool that runs network I/O off that loop.
package coord

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is posted to a closed loop.
var ErrClosed = errors.New("coordination loop is closed")

// Loop executes posted functions one at a time on a single goroutine.
// The queue is unbounded so posting from the loop itself never blocks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

// NewLoop creates and starts a loop.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post enqueues fn. It returns false once the loop is closed; fn is then dropped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Done is closed when the loop stops accepting work.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops the loop. Queued functions that have not started are dropped.
// A function already running finishes; use Wait to block until it has.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	<-l.exit
}

func (l *Loop) run() {
	defer close(l.exit)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("panic in coordination loop: %v", r)
		}
	}()
	fn()
}

// Call runs fn on the loop and waits for its result. The caller can abandon the
// wait through ctx; the loop never waits on the caller. Call must not be used
// from the loop itself.
func Call[T any](ctx context.Context, l *Loop, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	var zero T

	ch := make(chan result, 1)
	posted := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: errors.Newf("panic: %s", fmt.Sprint(r))}
			}
		}()
		v, err := fn()
		ch <- result{value: v, err: err}
	})
	if !posted {
		return zero, ErrClosed
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.done:
		// The function may have completed right before close.
		select {
		case r := <-ch:
			return r.value, r.err
		default:
			return zero, ErrClosed
		}
	}
}

// Do is Call for functions without a result value.
func Do(ctx context.Context, l *Loop, fn func() error) error {
	_, err := Call(ctx, l, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Package eventloop provides the single logical thread of control every
// component posts its work to. SDK callbacks, channel hub callbacks, poll
// ticks and the continuations of asynchronous adapter calls all run here, one
// at a time, so component state never needs a lock.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var ErrStopped = errors.New("event loop stopped")

// DefaultDepth is the initial capacity of the task queue.
const DefaultDepth = 256

type Loop struct {
	logger zerolog.Logger

	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}

	lanesMu sync.Mutex
	lanes   map[string]*Lane

	closeOnce sync.Once
	closed    chan struct{}
}

func New(logger zerolog.Logger, depth int) *Loop {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Loop{
		logger: logger,
		tasks:  make([]func(), 0, depth),
		wake:   make(chan struct{}, 1),
		lanes:  make(map[string]*Lane),
		closed: make(chan struct{}),
	}
}

// Post enqueues fn. It returns false once the loop has stopped. Post never
// blocks, so tasks may post follow-up work.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.closed:
		return false
	default:
	}

	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits until it has run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-l.closed:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeOnce.Do(func() { close(l.closed) })

	l.logger.Debug().Msg("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Msg("Event loop stopped")
			return nil
		case <-l.wake:
			for _, fn := range l.take() {
				if ctx.Err() != nil {
					break
				}
				l.run(fn)
			}
		}
	}
}

// take removes every queued task. Tasks posted while the batch runs wake the
// loop again.
func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.tasks
	l.tasks = make([]func(), 0, cap(batch))
	return batch
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.closed
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic", r).
				Msg("Recovered panic in event loop task")
		}
	}()
	fn()
}

package eventloop

import (
	"context"
	"sync"
)

// Lane runs blocking adapter calls off the loop one at a time, in the order
// they were started, and posts their continuations back in that order. Calls
// to one peer share a lane so the peer sees them as they were issued.
type Lane struct {
	loop *Loop
	name string

	mu   sync.Mutex
	jobs []func()
	busy bool
}

// Lane returns the lane called name, creating it on first use.
func (l *Loop) Lane(name string) *Lane {
	l.lanesMu.Lock()
	defer l.lanesMu.Unlock()

	lane, ok := l.lanes[name]
	if !ok {
		lane = &Lane{loop: l, name: name}
		l.lanes[name] = lane
	}
	return lane
}

func (ln *Lane) submit(job func()) {
	ln.mu.Lock()
	ln.jobs = append(ln.jobs, job)
	if ln.busy {
		ln.mu.Unlock()
		return
	}
	ln.busy = true
	ln.mu.Unlock()

	go ln.drain()
}

// drain runs queued jobs until none are left. At most one drain per lane is
// running.
func (ln *Lane) drain() {
	for {
		ln.mu.Lock()
		if len(ln.jobs) == 0 {
			ln.busy = false
			ln.mu.Unlock()
			return
		}
		job := ln.jobs[0]
		ln.jobs[0] = nil
		ln.jobs = ln.jobs[1:]
		ln.mu.Unlock()

		ln.run(job)
	}
}

func (ln *Lane) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			ln.loop.logger.Error().
				Interface("panic", r).
				Str("lane", ln.name).
				Msg("Recovered panic in adapter call")
		}
	}()
	job()
}

// Do queues call on lane and posts then(value, err) back onto the loop. There
// is no cancellation: a continuation that arrives after the state it
// concerned is gone must re-check that state itself.
func Do[T any](lane *Lane, ctx context.Context, call func(context.Context) (T, error), then func(T, error)) {
	lane.submit(func() {
		v, err := call(ctx)
		if then == nil {
			return
		}
		if !lane.loop.Post(func() { then(v, err) }) {
			lane.loop.logger.Debug().Err(err).Str("lane", lane.name).Msg("Dropped continuation, event loop stopped")
		}
	})
}

// Exec is Do for calls that only report an error.
func Exec(lane *Lane, ctx context.Context, call func(context.Context) error, then func(error)) {
	Do(lane, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	}, func(_ struct{}, err error) {
		if then != nil {
			then(err)
		}
	})
}

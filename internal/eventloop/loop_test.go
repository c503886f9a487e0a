package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(zerolog.Nop(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func TestTasksRunInPostOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPanicInTaskDoesNotStopLoop(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	require.True(t, ran)
}

func TestDoDeliversResultOnLoop(t *testing.T) {
	l := startLoop(t)

	type result struct {
		v   string
		err error
	}
	results := make(chan result, 1)
	Do(l.Lane("test"), context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	}, func(v string, err error) {
		results <- result{v, err}
	})

	select {
	case r := <-results:
		require.NoError(t, r.err)
		require.Equal(t, "ok", r.v)
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestExecReportsError(t *testing.T) {
	l := startLoop(t)

	boom := errors.New("boom")
	errs := make(chan error, 1)
	Exec(l.Lane("test"), context.Background(), func(context.Context) error { return boom }, func(err error) { errs <- err })

	select {
	case err := <-errs:
		require.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestPostAfterStopFails(t *testing.T) {
	l := New(zerolog.Nop(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	require.False(t, l.Post(func() {}))
	require.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestTasksMayPostPastQueueDepth(t *testing.T) {
	l := New(zerolog.Nop(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	posted := true
	require.NoError(t, l.Call(ctx, func() {
		for i := 0; i < 10; i++ {
			i := i
			posted = l.Post(func() { got = append(got, i) }) && posted
		}
	}))
	require.True(t, posted)

	callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
	defer callCancel()
	require.NoError(t, l.Call(callCtx, func() {}))
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLaneKeepsIssueOrderWhenFirstCallIsSlow(t *testing.T) {
	l := startLoop(t)
	lane := l.Lane("peer")
	require.Same(t, lane, l.Lane("peer"))

	var mu sync.Mutex
	var delivered []string
	send := func(v string, delay time.Duration) func(context.Context) error {
		return func(context.Context) error {
			time.Sleep(delay)
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, v)
			return nil
		}
	}

	var continued []string
	done := make(chan struct{})
	require.NoError(t, l.Call(context.Background(), func() {
		Exec(lane, context.Background(), send("first", 50*time.Millisecond), func(error) {
			continued = append(continued, "first")
		})
		Exec(lane, context.Background(), send("second", 0), func(error) {
			continued = append(continued, "second")
			close(done)
		})
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("continuations never ran")
	}
	mu.Lock()
	require.Equal(t, []string{"first", "second"}, delivered)
	mu.Unlock()
	var order []string
	require.NoError(t, l.Call(context.Background(), func() {
		order = append(order, continued...)
	}))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestLaneSurvivesPanickingCall(t *testing.T) {
	l := startLoop(t)
	lane := l.Lane("peer")

	errs := make(chan error, 1)
	Exec(lane, context.Background(), func(context.Context) error { panic("boom") }, nil)
	Exec(lane, context.Background(), func(context.Context) error { return nil }, func(err error) { errs <- err })

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lane stalled after panic")
	}
}

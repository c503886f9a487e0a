package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
)

type hubCall struct {
	presence string
	reason   string
}

type recordingHub struct {
	mu    sync.Mutex
	calls []hubCall
	// firstDelay stalls the first SetPresence before it is recorded
	firstDelay time.Duration
	started    int
}

func (h *recordingHub) SetPresence(_ context.Context, presence, reason string) error {
	h.mu.Lock()
	h.started++
	first := h.started == 1
	h.mu.Unlock()
	if first && h.firstDelay > 0 {
		time.Sleep(h.firstDelay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{presence, reason})
	return nil
}

func (h *recordingHub) Calls() []hubCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hubCall(nil), h.calls...)
}

type recordingPlatform struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPlatform) SetPresence(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return p.err
}

func (p *recordingPlatform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fixture struct {
	bridge   *Bridge
	hub      *recordingHub
	platform *recordingPlatform
	loop     *eventloop.Loop
}

func newFixture(t *testing.T, tables Tables) *fixture {
	t.Helper()
	loop := eventloop.New(zerolog.Nop(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	f := &fixture{hub: &recordingHub{}, platform: &recordingPlatform{}, loop: loop}
	bridge, err := NewBridge(tables, "Amazon Connect", f.hub, f.platform, loop, zerolog.Nop())
	require.NoError(t, err)
	f.bridge = bridge
	return f
}

// settle runs fn on the loop and waits until every future it started has
// posted its continuation.
func (f *fixture) settle(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	require.NoError(t, f.loop.Call(context.Background(), func() { fn(context.Background()) }))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.loop.Call(context.Background(), func() {}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.loop.Call(context.Background(), func() {}))
}

func defaultTables() Tables {
	return Tables{
		CallPlatformToHub: map[string]string{
			"Available": "Ready",
			"Lunch":     "Not Ready|Lunch",
			"Break":     "Not Ready|Break",
			"Offline":   "Logged Out",
		},
		HubToCallPlatform: map[string]string{
			"Ready":           "Available",
			"Not Ready|Lunch": "Lunch",
			"Not Ready|Break": "Break",
			"Logged Out":      "Offline",
		},
	}
}

func TestNewBridgeRequiresTables(t *testing.T) {
	loop := eventloop.New(zerolog.Nop(), 1)

	_, err := NewBridge(Tables{HubToCallPlatform: map[string]string{"a": "b"}}, "id", &recordingHub{}, &recordingPlatform{}, loop, zerolog.Nop())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)

	_, err = NewBridge(Tables{CallPlatformToHub: map[string]string{"a": "b"}}, "id", &recordingHub{}, &recordingPlatform{}, loop, zerolog.Nop())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestCallPlatformPresenceIsIdempotent(t *testing.T) {
	f := newFixture(t, Tables{
		CallPlatformToHub: map[string]string{"Available": "Ready"},
		HubToCallPlatform: map[string]string{"Ready": "Available"},
	})

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Available") })
	require.Equal(t, []hubCall{{"Ready", ""}}, f.hub.Calls())

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Available") })
	require.Len(t, f.hub.Calls(), 1)
}

func TestCallPlatformCompositeValueIsSplit(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Lunch") })

	require.Equal(t, []hubCall{{"Not Ready", "Lunch"}}, f.hub.Calls())
	require.Equal(t, "Not Ready|Lunch", f.bridge.LastHub())
	require.Equal(t, "Lunch", f.bridge.LastCallPlatform())
}

func TestUnknownCallPlatformPresenceIsDropped(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Training") })

	require.Empty(t, f.hub.Calls())
	require.Empty(t, f.bridge.LastHub())
}

func TestEmptyCallPlatformPresenceIsMalformed(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "") })

	require.Empty(t, f.hub.Calls())
	require.Empty(t, f.bridge.LastCallPlatform())
}

func TestOwnEchoIsIgnored(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) {
		f.bridge.OnChannelHubPresenceChanged(ctx, "Logged Out", "", "Amazon Connect")
	})

	require.Empty(t, f.platform.Calls())
	require.Empty(t, f.bridge.LastHub())
}

func TestHubPresenceSetsPlatformAndConfirms(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) {
		f.bridge.OnChannelHubPresenceChanged(ctx, "Not Ready", "Break", "crm")
	})

	require.Equal(t, []string{"Break"}, f.platform.Calls())
	require.Equal(t, []hubCall{{"Not Ready", "Break"}}, f.hub.Calls())

	// the platform reports the state it was just given; nothing flows back
	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Break") })
	require.Len(t, f.hub.Calls(), 1)
}

func TestHubPresenceIsIdempotent(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "Ready", "", "") })
	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "Ready", "", "") })

	require.Equal(t, []string{"Available"}, f.platform.Calls())
}

func TestHubPresenceMissingExpectedReasonIsMalformed(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "Not Ready", "", "") })
	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "", "Lunch", "") })

	require.Empty(t, f.platform.Calls())
	require.Empty(t, f.bridge.LastHub())
}

func TestUnknownHubPresenceIsDropped(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "Busy", "", "") })

	require.Empty(t, f.platform.Calls())
	require.Empty(t, f.bridge.LastCallPlatform())
}

func TestPlatformFailureSkipsConfirmation(t *testing.T) {
	f := newFixture(t, defaultTables())
	f.platform.err = errors.New("state not allowed")

	f.settle(t, func(ctx context.Context) { f.bridge.OnChannelHubPresenceChanged(ctx, "Ready", "", "") })

	require.Equal(t, []string{"Available"}, f.platform.Calls())
	require.Empty(t, f.hub.Calls())
}

func TestTablesAreCopied(t *testing.T) {
	tables := defaultTables()
	f := newFixture(t, tables)
	tables.CallPlatformToHub["Training"] = "Ready"

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Training") })
	require.Empty(t, f.hub.Calls())
}

func TestCallPlatformReasonOnlyChangeReachesHub(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Lunch") })
	f.settle(t, func(ctx context.Context) { f.bridge.OnCallPlatformPresenceChanged(ctx, "Break") })

	require.Equal(t, []hubCall{{"Not Ready", "Lunch"}, {"Not Ready", "Break"}}, f.hub.Calls())
	require.Equal(t, "Not Ready|Break", f.bridge.LastHub())
}

func TestHubReasonOnlyChangeReachesPlatform(t *testing.T) {
	f := newFixture(t, defaultTables())

	f.settle(t, func(ctx context.Context) {
		f.bridge.OnChannelHubPresenceChanged(ctx, "Not Ready", "Lunch", "crm")
	})
	f.settle(t, func(ctx context.Context) {
		f.bridge.OnChannelHubPresenceChanged(ctx, "Not Ready", "Break", "crm")
	})

	require.Equal(t, []string{"Lunch", "Break"}, f.platform.Calls())
	require.Equal(t, []hubCall{{"Not Ready", "Lunch"}, {"Not Ready", "Break"}}, f.hub.Calls())
	require.Equal(t, "Break", f.bridge.LastCallPlatform())
}

func TestHubReceivesPresenceInIssueOrder(t *testing.T) {
	f := newFixture(t, defaultTables())
	f.hub.firstDelay = 50 * time.Millisecond

	require.NoError(t, f.loop.Call(context.Background(), func() {
		f.bridge.OnCallPlatformPresenceChanged(context.Background(), "Available")
		f.bridge.OnCallPlatformPresenceChanged(context.Background(), "Offline")
	}))

	require.Eventually(t, func() bool { return len(f.hub.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []hubCall{{"Ready", ""}, {"Logged Out", ""}}, f.hub.Calls())

	var last string
	require.NoError(t, f.loop.Call(context.Background(), func() { last = f.bridge.LastHub() }))
	require.Equal(t, "Logged Out", last)
}

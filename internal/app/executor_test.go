package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/callplatform/callplatformtest"
	"github.com/amctechnology/AmazonConnect/internal/config"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/hub"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	connects  int
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeHub struct {
	mu           sync.Mutex
	appConfig    hub.AppConfig
	onPresence   func(hub.PresenceChange)
	onDial       func(string)
	onContextual func(hub.ContextualContact)
	onLogout     func(string)
	presences    []hub.PresenceChange
	interactions []hub.Interaction
	channels     []hub.SupportedChannel
	clickToDial  []bool
	logouts      int
}

var _ hub.Hub = (*fakeHub)(nil)

func (h *fakeHub) RegisterContextualControls(fn func(hub.ContextualContact)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onContextual = fn
}

func (h *fakeHub) RegisterOnPresenceChanged(fn func(hub.PresenceChange)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPresence = fn
}

func (h *fakeHub) RegisterClickToDial(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDial = fn
}

func (h *fakeHub) RegisterOnLogout(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLogout = fn
}

func (h *fakeHub) InitializeComplete(context.Context) (hub.AppConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appConfig, nil
}

func (h *fakeHub) SetPresence(_ context.Context, presence, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presences = append(h.presences, hub.PresenceChange{Presence: presence, Reason: reason})
	return nil
}

func (h *fakeHub) SetInteraction(_ context.Context, interaction hub.Interaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interactions = append(h.interactions, interaction)
	return nil
}

func (h *fakeHub) ContextualOperation(context.Context, hub.ContextualOperationType, hub.ChannelType) (hub.ContextualContact, error) {
	return hub.ContextualContact{}, nil
}

func (h *fakeHub) SetSupportedChannels(_ context.Context, channels []hub.SupportedChannel) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append(h.channels, channels...)
	return nil
}

func (h *fakeHub) EnableClickToDial(_ context.Context, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clickToDial = append(h.clickToDial, enabled)
	return nil
}

func (h *fakeHub) Logout(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logouts++
	return nil
}

func (h *fakeHub) Presences() []hub.PresenceChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hub.PresenceChange(nil), h.presences...)
}

func (h *fakeHub) Interactions() []hub.Interaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hub.Interaction(nil), h.interactions...)
}

func (h *fakeHub) Logouts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logouts
}

func (h *fakeHub) pushPresence(change hub.PresenceChange) {
	h.mu.Lock()
	fn := h.onPresence
	h.mu.Unlock()
	fn(change)
}

func (h *fakeHub) pushDial(number string) {
	h.mu.Lock()
	fn := h.onDial
	h.mu.Unlock()
	fn(number)
}

func (h *fakeHub) pushContextual(contact hub.ContextualContact) {
	h.mu.Lock()
	fn := h.onContextual
	h.mu.Unlock()
	fn(contact)
}

func (h *fakeHub) pushLogout(reason string) {
	h.mu.Lock()
	fn := h.onLogout
	h.mu.Unlock()
	fn(reason)
}

type fakePlatform struct {
	*callplatformtest.Platform

	mu      sync.Mutex
	logouts int
}

func (p *fakePlatform) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts++
	return nil
}

func (p *fakePlatform) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

func validAppConfig() hub.AppConfig {
	return hub.AppConfig{
		AppName: "Amazon Connect",
		CCPURL:  "https://example.my.connect.aws/ccp-v2",
		CallPlatformToHubPresence: map[string]string{
			"Available": "Ready",
			"Offline":   "Away|Offline",
			"Lunch":     "Away|Lunch",
		},
		HubToCallPlatformPresence: map[string]string{
			"Ready":        "Available",
			"Away|Lunch":   "Lunch",
			"Away|Offline": "Offline",
		},
	}
}

type fixture struct {
	executor          *Executor
	hub               *fakeHub
	platform          *fakePlatform
	hubTransport      *fakeTransport
	platformTransport *fakeTransport
}

func newFixture(appConfig hub.AppConfig) *fixture {
	f := &fixture{
		hub:               &fakeHub{appConfig: appConfig},
		platform:          &fakePlatform{Platform: callplatformtest.NewPlatform()},
		hubTransport:      &fakeTransport{},
		platformTransport: &fakeTransport{},
	}
	cfg := &config.Config{
		Client:       config.ClientConfig{IconPack: "https://cdn.example.com/icons/"},
		Poller:       config.PollerConfig{Interval: 20 * time.Millisecond},
		Service:      config.ServiceConfig{AppName: "Amazon Connect", LogLevel: "info"},
		CallPlatform: config.CallPlatformConfig{LoginPopup: true},
	}
	f.executor = NewExecutor(ExecutorConfig{
		Config:            cfg,
		Logger:            zerolog.Nop(),
		Version:           "test",
		HubTransport:      f.hubTransport,
		Hub:               f.hub,
		PlatformTransport: f.platformTransport,
		Platform:          f.platform,
	})
	return f
}

func startFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(validAppConfig())
	require.NoError(t, f.executor.Start(context.Background()))
	t.Cleanup(func() { _ = f.executor.Stop() })
	return f
}

func TestStartRequiresPresenceTables(t *testing.T) {
	appConfig := validAppConfig()
	appConfig.HubToCallPlatformPresence = nil
	f := newFixture(appConfig)

	err := f.executor.Start(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
	require.Nil(t, f.platform.InitOptions(), "call platform must not be initialized")
	require.Zero(t, f.platformTransport.connects)
	require.Empty(t, f.hub.clickToDial)
}

func TestStartRequiresCCPURL(t *testing.T) {
	appConfig := validAppConfig()
	appConfig.CCPURL = ""
	f := newFixture(appConfig)

	err := f.executor.Start(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
	require.Nil(t, f.platform.InitOptions())
}

func TestStartupOrder(t *testing.T) {
	f := startFixture(t)

	require.True(t, f.hubTransport.IsConnected())
	require.True(t, f.platformTransport.IsConnected())
	require.Equal(t, []bool{true}, f.hub.clickToDial)

	opts := f.platform.InitOptions()
	require.NotNil(t, opts)
	require.Equal(t, "https://example.my.connect.aws/ccp-v2", opts.CCPURL)
	require.True(t, opts.LoginPopup)
}

func TestPresenceFlowsBothWays(t *testing.T) {
	f := startFixture(t)
	agent := callplatformtest.NewAgent("jdoe", "Available", "Offline", "Lunch")
	f.platform.EmitAgent(agent)

	require.Eventually(t, func() bool {
		return len(f.hub.Presences()) == 1
	}, waitFor, tick)
	require.Equal(t, hub.PresenceChange{Presence: "Ready"}, f.hub.Presences()[0])

	f.hub.pushPresence(hub.PresenceChange{Presence: "Away", Reason: "Lunch", Origin: "Hub"})
	require.Eventually(t, func() bool {
		calls := agent.SetStateCalls()
		return len(calls) == 1 && calls[0].Name == "Lunch"
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return len(f.hub.Presences()) == 2
	}, waitFor, tick)
	require.Equal(t, hub.PresenceChange{Presence: "Away", Reason: "Lunch"}, f.hub.Presences()[1])

	status := f.executor.GetSystemStatus()
	require.Equal(t, "jdoe", status["agent"])
	require.Equal(t, "Lunch", status["call_platform_presence"])
	require.Equal(t, "Away|Lunch", status["hub_presence"])
}

func TestOwnPresenceEchoIgnored(t *testing.T) {
	f := startFixture(t)
	agent := callplatformtest.NewAgent("jdoe", "Available", "Offline")
	f.platform.EmitAgent(agent)
	require.Eventually(t, func() bool { return len(f.hub.Presences()) == 1 }, waitFor, tick)

	f.hub.pushPresence(hub.PresenceChange{Presence: "Away", Reason: "Offline", Origin: "Amazon Connect"})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, agent.SetStateCalls())
}

func TestInboundCallReachesStoreAndHub(t *testing.T) {
	f := startFixture(t)
	agent := callplatformtest.NewAgent("jdoe", "Available")
	f.platform.EmitAgent(agent)

	contact := callplatformtest.NewContact("c1", true,
		callplatformtest.AgentLeg("c1", "a1"),
		callplatformtest.PhoneLeg("c1", "p1", "+15550001111"))
	agent.AddContact(contact)
	f.platform.EmitContact(contact)

	store := f.executor.Store()
	require.Eventually(t, func() bool { return len(store.Snapshot()) == 1 }, waitFor, tick)
	require.Equal(t, "c1", store.Snapshot()[0].ID())

	require.Eventually(t, func() bool { return len(f.hub.Interactions()) == 1 }, waitFor, tick)
	interaction := f.hub.Interactions()[0]
	require.Equal(t, "c1", interaction.InteractionID)
	require.Equal(t, hub.StateAlerting, interaction.State)

	contact.SetStatus(callplatform.ContactEnded)
	agent.RemoveContact("c1")
	contact.FireEnded()
	require.Eventually(t, func() bool { return len(store.Snapshot()) == 0 }, waitFor, tick)
}

func TestClickToDialAndContextualControlDial(t *testing.T) {
	f := startFixture(t)
	agent := callplatformtest.NewAgent("jdoe", "Available")
	f.platform.EmitAgent(agent)
	require.Eventually(t, func() bool { return f.executor.GetSystemStatus()["agent"] == "jdoe" }, waitFor, tick)

	f.hub.pushDial("(555) 000-1111")
	f.hub.pushContextual(hub.ContextualContact{UniqueID: "5550002222"})

	require.Eventually(t, func() bool { return len(agent.ConnectCalls()) == 2 }, waitFor, tick)
	calls := agent.ConnectCalls()
	require.Equal(t, "+15550001111", calls[0].PhoneNumber)
	require.Equal(t, "+15550002222", calls[1].PhoneNumber)
}

func TestTerminatedLogsOutOfHub(t *testing.T) {
	f := startFixture(t)

	f.platform.Bus().Publish(callplatform.EventTerminated)
	require.Eventually(t, func() bool { return f.hub.Logouts() == 1 }, waitFor, tick)
}

func TestHubLogoutEndsSession(t *testing.T) {
	f := startFixture(t)

	f.hub.pushLogout("shift over")
	require.Eventually(t, func() bool { return f.platform.Logouts() == 1 }, waitFor, tick)

	select {
	case <-f.executor.Done():
	case <-time.After(waitFor):
		t.Fatal("executor did not shut down after hub logout")
	}
}

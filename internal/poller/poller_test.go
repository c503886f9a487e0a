package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/callplatform/callplatformtest"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
)

type recorder struct {
	mu      sync.Mutex
	actions []domain.Action
}

func (r *recorder) Emit(a domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *recorder) Actions() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Action(nil), r.actions...)
}

func conferenceContact() (*callplatformtest.Contact, []*callplatformtest.Connection) {
	legs := []*callplatformtest.Connection{
		callplatformtest.AgentLeg("c1", "agent"),
		callplatformtest.PhoneLeg("c1", "p1", "+15551110001"),
		callplatformtest.PhoneLeg("c1", "p2", "+15551110002"),
		callplatformtest.PhoneLeg("c1", "p3", "+15551110003"),
	}
	return callplatformtest.NewContact("c1", true, legs...), legs
}

func TestTickDetectsDroppedParty(t *testing.T) {
	agent := callplatformtest.NewAgent("jdoe")
	contact, legs := conferenceContact()
	agent.AddContact(contact)
	rec := &recorder{}
	p := New(agent, rec, nil, 0, zerolog.Nop())

	p.Tick()
	require.Empty(t, rec.Actions())

	legs[2].SetStatus(callplatform.ConnectionDisconnected)
	p.Tick()

	actions := rec.Actions()
	require.Len(t, actions, 1)
	a := actions[0]
	require.Equal(t, domain.ActionConferencePartyLeft, a.Type)
	require.Equal(t, "c1", a.CorrelationID)
	require.Equal(t, domain.DirectionInbound, a.Direction)
	require.Equal(t, "15551110001", a.PhoneNumber)
	require.Equal(t, []domain.ConnectionSnapshot{
		{ConnectionID: "p1", PhoneNumber: "15551110001", Status: "connected"},
		{ConnectionID: "p3", PhoneNumber: "15551110003", Status: "connected"},
	}, a.Connections)

	// unchanged counts emit nothing
	p.Tick()
	require.Len(t, rec.Actions(), 1)
}

func TestThreeToTwoWithoutAgentLeg(t *testing.T) {
	agent := callplatformtest.NewAgent("jdoe")
	contact, legs := conferenceContact()
	legs[0].SetStatus(callplatform.ConnectionDisconnected)
	agent.AddContact(contact)
	rec := &recorder{}
	p := New(agent, rec, nil, 0, zerolog.Nop())

	p.Tick()
	legs[3].SetStatus(callplatform.ConnectionDisconnected)
	p.Tick()

	actions := rec.Actions()
	require.Len(t, actions, 1)
	require.Len(t, actions[0].Connections, 2)
}

func TestNewContactsAndGrowthEmitNothing(t *testing.T) {
	agent := callplatformtest.NewAgent("jdoe")
	rec := &recorder{}
	p := New(agent, rec, nil, 0, zerolog.Nop())

	p.Tick()
	contact, _ := conferenceContact()
	agent.AddContact(contact)
	p.Tick()
	contact.AppendConnection(callplatformtest.PhoneLeg("c1", "p4", "+15551110004"))
	p.Tick()

	require.Empty(t, rec.Actions())
}

func TestVanishedContactIsForgotten(t *testing.T) {
	agent := callplatformtest.NewAgent("jdoe")
	contact, legs := conferenceContact()
	agent.AddContact(contact)
	rec := &recorder{}
	p := New(agent, rec, nil, 0, zerolog.Nop())

	p.Tick()
	agent.RemoveContact("c1")
	p.Tick()
	legs[1].SetStatus(callplatform.ConnectionDisconnected)
	agent.AddContact(contact)
	p.Tick()

	require.Empty(t, rec.Actions())
}

func TestDropLeavingOnlyAgentEmitsNothing(t *testing.T) {
	agent := callplatformtest.NewAgent("jdoe")
	legs := []*callplatformtest.Connection{
		callplatformtest.AgentLeg("c1", "agent"),
		callplatformtest.PhoneLeg("c1", "p1", "+15551110001"),
	}
	agent.AddContact(callplatformtest.NewContact("c1", false, legs...))
	rec := &recorder{}
	p := New(agent, rec, nil, 0, zerolog.Nop())

	p.Tick()
	legs[1].SetStatus(callplatform.ConnectionDisconnected)
	p.Tick()

	require.Empty(t, rec.Actions())
}

// blockingSource holds the first tick until released.
type blockingSource struct {
	calls   chan struct{}
	release chan struct{}
}

func (b *blockingSource) Contacts() []callplatform.Contact {
	b.calls <- struct{}{}
	<-b.release
	return nil
}

func TestTicksDoNotOverlap(t *testing.T) {
	loop := eventloop.New(zerolog.Nop(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	src := &blockingSource{calls: make(chan struct{}, 16), release: make(chan struct{})}
	p := New(src, &recorder{}, loop, 5*time.Millisecond, zerolog.Nop())
	go p.Run(ctx)

	<-src.calls
	// several intervals pass while the first tick is blocked
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, src.calls)

	close(src.release)
	require.Eventually(t, func() bool { return len(src.calls) > 0 }, time.Second, 5*time.Millisecond)
}

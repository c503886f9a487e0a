// Package relay implements the call platform over a websocket relay that
// hosts the vendor softphone SDK. The relay pushes agent and contact
// snapshots; commands go back as request/response pairs.
package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/ws"
)

// Transport is the part of ws.Client the relay platform needs.
type Transport interface {
	Request(ctx context.Context, name string, body interface{}, out interface{}) error
	RegisterHandler(name string, handler ws.MessageHandler)
}

type Platform struct {
	transport Transport
	logger    zerolog.Logger
	bus       *EventBus

	mu        sync.Mutex
	agent     *Agent
	contacts  map[string]*Contact
	arrivals  uint64
	onAgent   []func(callplatform.Agent)
	onContact []func(callplatform.Contact)
}

var _ callplatform.Platform = (*Platform)(nil)

func NewPlatform(transport Transport, logger zerolog.Logger) *Platform {
	p := &Platform{
		transport: transport,
		logger:    logger.With().Str("component", "relay").Logger(),
		bus:       NewEventBus(),
		contacts:  make(map[string]*Contact),
	}

	transport.RegisterHandler(MsgAgentSnapshot, ws.MessageHandlerFunc(p.handleAgentSnapshot))
	transport.RegisterHandler(MsgContactSnapshot, ws.MessageHandlerFunc(p.handleContactSnapshot))
	transport.RegisterHandler(MsgBusEvent, ws.MessageHandlerFunc(p.handleBusEvent))

	return p
}

func (p *Platform) Initialize(ctx context.Context, opts callplatform.InitOptions) error {
	req := InitializeRequest{
		CCPURL:          opts.CCPURL,
		LoginPopup:      opts.LoginPopup,
		DisableRingtone: opts.DisableRingtone,
	}
	if err := p.transport.Request(ctx, CmdInitialize, req, nil); err != nil {
		return fmt.Errorf("initialize call platform: %w", err)
	}
	p.logger.Info().Str("ccp_url", opts.CCPURL).Msg("Call platform initialized")
	return nil
}

// Logout ends the agent's session on the call platform.
func (p *Platform) Logout(ctx context.Context) error {
	if err := p.transport.Request(ctx, CmdLogout, struct{}{}, nil); err != nil {
		return fmt.Errorf("logout call platform: %w", err)
	}
	return nil
}

// SubscribeAgent registers fn and replays the current agent if one is known.
func (p *Platform) SubscribeAgent(fn func(callplatform.Agent)) {
	p.mu.Lock()
	p.onAgent = append(p.onAgent, fn)
	agent := p.agent
	p.mu.Unlock()

	if agent != nil {
		fn(agent)
	}
}

// SubscribeContact registers fn and replays every live contact.
func (p *Platform) SubscribeContact(fn func(callplatform.Contact)) {
	p.mu.Lock()
	p.onContact = append(p.onContact, fn)
	live := p.sortedContacts()
	p.mu.Unlock()

	for _, c := range live {
		fn(c)
	}
}

func (p *Platform) EventBus() callplatform.EventBus {
	return p.bus
}

func (p *Platform) liveContacts() []callplatform.Contact {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := p.sortedContacts()
	out := make([]callplatform.Contact, len(live))
	for i, c := range live {
		out[i] = c
	}
	return out
}

// sortedContacts returns live contacts in arrival order. Callers hold p.mu.
func (p *Platform) sortedContacts() []*Contact {
	live := make([]*Contact, 0, len(p.contacts))
	for _, c := range p.contacts {
		live = append(live, c)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].arrival < live[j].arrival })
	return live
}

func (p *Platform) handleAgentSnapshot(message ws.Message) error {
	var snap AgentSnapshot
	if err := message.Decode(&snap); err != nil {
		return err
	}
	if snap.Username == "" {
		return fmt.Errorf("agent snapshot without username")
	}

	p.mu.Lock()
	agent := p.agent
	if agent == nil {
		agent = newAgent(p, snap)
		p.agent = agent
		subscribers := append([]func(callplatform.Agent){}, p.onAgent...)
		p.mu.Unlock()

		p.logger.Info().Str("username", snap.Username).Str("state", snap.State.Name).Msg("Agent available")
		for _, fn := range subscribers {
			fn(agent)
		}
		return nil
	}
	p.mu.Unlock()

	agent.apply(snap)
	return nil
}

func (p *Platform) handleContactSnapshot(message ws.Message) error {
	var snap ContactSnapshot
	if err := message.Decode(&snap); err != nil {
		return err
	}
	if snap.ContactID == "" {
		return fmt.Errorf("contact snapshot without contactId")
	}

	p.mu.Lock()
	contact, known := p.contacts[snap.ContactID]
	if !known {
		if snap.Status == callplatform.ContactEnded {
			p.mu.Unlock()
			p.logger.Debug().Str("contact_id", snap.ContactID).Msg("Ignoring snapshot of unknown ended contact")
			return nil
		}
		p.arrivals++
		contact = newContact(p, snap, p.arrivals)
		p.contacts[snap.ContactID] = contact
		subscribers := append([]func(callplatform.Contact){}, p.onContact...)
		p.mu.Unlock()

		p.logger.Info().
			Str("contact_id", snap.ContactID).
			Str("status", string(snap.Status)).
			Bool("inbound", snap.Inbound).
			Msg("New contact")
		for _, fn := range subscribers {
			fn(contact)
		}
		return nil
	}
	if snap.Status == callplatform.ContactEnded {
		delete(p.contacts, snap.ContactID)
	}
	p.mu.Unlock()

	contact.apply(snap)
	p.bus.Publish(callplatform.RefreshEvent(snap.ContactID))
	return nil
}

func (p *Platform) handleBusEvent(message ws.Message) error {
	var event BusEvent
	if err := message.Decode(&event); err != nil {
		return err
	}
	p.logger.Debug().Str("event", event.Event).Msg("Bus event")
	p.bus.Publish(event.Event)
	return nil
}

// EventBus fans out named events to subscribers in subscription order.
type EventBus struct {
	mu       sync.Mutex
	next     int
	handlers map[string]map[int]func()
	order    map[string][]int
}

var _ callplatform.EventBus = (*EventBus)(nil)

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string]map[int]func()),
		order:    make(map[string][]int),
	}
}

func (b *EventBus) Subscribe(event string, handler func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]func())
	}
	b.handlers[event][id] = handler
	b.order[event] = append(b.order[event], id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[event], id)
			ids := b.order[event]
			for i, v := range ids {
				if v == id {
					b.order[event] = append(ids[:i:i], ids[i+1:]...)
					break
				}
			}
			if len(b.handlers[event]) == 0 {
				delete(b.handlers, event)
				delete(b.order, event)
			}
		})
	}
}

func (b *EventBus) Publish(event string) {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.order[event]))
	for _, id := range b.order[event] {
		handlers = append(handlers, b.handlers[event][id])
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// Subscribers reports how many handlers are registered for event.
func (b *EventBus) Subscribers(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}

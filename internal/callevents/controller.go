package callevents

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/dedup"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/phone"
)

// Controller carries out call-control commands against the call platform.
// Apart from SetPresence and Contacts, its methods run on the event loop.
// Adapter calls go through futures and failures are logged, never retried.
type Controller struct {
	loop    *eventloop.Loop
	bus     callplatform.EventBus
	emitter *Emitter
	pool    *dedup.Pool
	logger  zerolog.Logger

	agentMu   sync.RWMutex
	agent     callplatform.Agent
	endpoints []callplatform.Endpoint

	outboundCall string
	refreshes    map[string][]func()
}

func NewController(loop *eventloop.Loop, bus callplatform.EventBus, emitter *Emitter, pool *dedup.Pool, logger zerolog.Logger) *Controller {
	return &Controller{
		loop:      loop,
		bus:       bus,
		emitter:   emitter,
		pool:      pool,
		logger:    logger.With().Str("component", "calls").Logger(),
		refreshes: make(map[string][]func()),
	}
}

func (c *Controller) SetAgent(agent callplatform.Agent) {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	c.agent = agent
}

// SetEndpoints stores the internal transfer endpoints, keeping agents only.
func (c *Controller) SetEndpoints(endpoints []callplatform.Endpoint) {
	internal := make([]callplatform.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Type == callplatform.EndpointAgent {
			internal = append(internal, ep)
		}
	}

	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	c.endpoints = internal
}

func (c *Controller) currentAgent() (callplatform.Agent, error) {
	c.agentMu.RLock()
	defer c.agentMu.RUnlock()
	if c.agent == nil {
		return nil, domain.ErrNoAgent
	}
	return c.agent, nil
}

// Contacts lists the agent's contacts, or nothing before the agent is known.
func (c *Controller) Contacts() []callplatform.Contact {
	agent, err := c.currentAgent()
	if err != nil {
		return nil
	}
	return agent.Contacts()
}

// AgentUsername returns the logged-in agent's username, or "" before login.
func (c *Controller) AgentUsername() string {
	agent, err := c.currentAgent()
	if err != nil {
		return ""
	}
	return agent.Username()
}

// OutboundCall returns the id of the last outbound call still ringing.
func (c *Controller) OutboundCall() string {
	return c.outboundCall
}

// Endpoint resolves a dial target: digits only, an internal agent endpoint
// by name first, otherwise an external number.
func (c *Controller) Endpoint(target string) callplatform.Endpoint {
	digits := phone.Digits(target)

	c.agentMu.RLock()
	defer c.agentMu.RUnlock()
	for _, ep := range c.endpoints {
		if ep.Name == digits {
			return ep
		}
	}
	return callplatform.EndpointByPhoneNumber(digits)
}

// contactFor finds the contact with id, or the contact owning a connection
// with id. Consult legs are keyed by their connection id.
func (c *Controller) contactFor(id string) (callplatform.Contact, error) {
	contacts := c.Contacts()
	for _, contact := range contacts {
		if contact.ID() == id {
			return contact, nil
		}
	}
	for _, contact := range contacts {
		for _, conn := range contact.Connections() {
			if conn.ID() == id {
				return contact, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrContactNotFound, id)
}

func (c *Controller) firstVoiceContact() (callplatform.Contact, error) {
	for _, contact := range c.Contacts() {
		if contact.Type() == callplatform.ContactVoice {
			return contact, nil
		}
	}
	return nil, fmt.Errorf("%w: no voice contact", domain.ErrContactNotFound)
}

func (c *Controller) logFailure(op, contactID string, err error) {
	c.logger.Error().
		Err(&domain.AdapterError{Op: op, ContactID: contactID, Err: err}).
		Str("operation", op).
		Str("contact_id", contactID).
		Msg("Call control failed")
}

// run executes call off the loop and logs its outcome.
func (c *Controller) run(ctx context.Context, op, contactID string, call func(context.Context) error, then func()) {
	eventloop.Exec(c.loop.Lane(callplatform.Lane), ctx, call, func(err error) {
		if err != nil {
			c.logFailure(op, contactID, err)
			return
		}
		c.logger.Debug().
			Str("operation", op).
			Str("contact_id", contactID).
			Msg("Call control succeeded")
		if then != nil {
			then()
		}
	})
}

func (c *Controller) AnswerCall(ctx context.Context, contactID string) {
	contact, err := c.contactFor(contactID)
	if err != nil {
		c.logFailure("accept", contactID, err)
		return
	}
	c.run(ctx, "accept", contactID, contact.Accept, nil)
}

// EndCall hangs up one leg when connectionID is set, otherwise every leg and
// then the contact itself.
func (c *Controller) EndCall(ctx context.Context, contactID, connectionID string) {
	contact, err := c.contactFor(contactID)
	if err != nil {
		c.logFailure("destroy", contactID, err)
		return
	}

	if connectionID != "" {
		for _, conn := range contact.Connections() {
			if conn.ID() == connectionID {
				c.run(ctx, "destroyConnection", contactID, conn.Destroy, nil)
				return
			}
		}
		c.logger.Warn().
			Str("contact_id", contactID).
			Str("connection_id", connectionID).
			Msg("Connection to end not found")
		return
	}

	conns := contact.Connections()
	c.run(ctx, "destroy", contactID, func(ctx context.Context) error {
		var errs []error
		for _, conn := range conns {
			if err := conn.Destroy(ctx); err != nil {
				errs = append(errs, fmt.Errorf("connection %s: %w", conn.ID(), err))
			}
		}
		if err := contact.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}, nil)
}

func (c *Controller) HoldCall(ctx context.Context, contactID string) {
	c.toggleHold(ctx, contactID, true)
}

func (c *Controller) ResumeCall(ctx context.Context, contactID string) {
	c.toggleHold(ctx, contactID, false)
}

// toggleHold issues hold or resume on every leg and emits the matching action
// right away; confirmations only log.
func (c *Controller) toggleHold(ctx context.Context, contactID string, hold bool) {
	op, typ := "resume", domain.ActionResume
	if hold {
		op, typ = "hold", domain.ActionHold
	}

	contact, err := c.contactFor(contactID)
	if err != nil {
		c.logFailure(op, contactID, err)
		return
	}

	conns := contact.Connections()
	for _, conn := range conns {
		call := conn.Resume
		if hold {
			call = conn.Hold
		}
		c.run(ctx, op, contactID, call, nil)
	}

	number, err := customerNumber(conns)
	if err != nil {
		c.logger.Warn().Err(err).Str("contact_id", contactID).Msg("Hold state changed without number")
		return
	}

	c.emitter.Emit(domain.Action{
		Type:          typ,
		CorrelationID: contact.ID(),
		PhoneNumber:   number,
		Direction:     domain.DirectionOf(contact.IsInbound()),
	})
}

// MakeOutboundCall dials number from the agent's softphone.
func (c *Controller) MakeOutboundCall(ctx context.Context, number string) {
	agent, err := c.currentAgent()
	if err != nil {
		c.logFailure("connect", "", err)
		return
	}
	endpoint := c.Endpoint(number)
	c.run(ctx, "connect", "", func(ctx context.Context) error {
		return agent.Connect(ctx, endpoint)
	}, nil)
}

// ColdTransfer adds target to the current call and drops the agent leg.
func (c *Controller) ColdTransfer(ctx context.Context, target string) {
	contact, err := c.firstVoiceContact()
	if err != nil {
		c.logFailure("blindTransfer", "", err)
		return
	}

	endpoint := c.Endpoint(target)
	c.run(ctx, "blindTransfer", contact.ID(), func(ctx context.Context) error {
		if err := contact.AddConnection(ctx, endpoint); err != nil {
			return fmt.Errorf("add connection: %w", err)
		}
		agentLeg := contact.AgentConnection()
		if agentLeg == nil {
			return domain.Malformed("contact %s has no agent connection", contact.ID())
		}
		if err := agentLeg.Destroy(ctx); err != nil {
			return fmt.Errorf("end agent connection: %w", err)
		}
		return nil
	}, nil)
}

// WarmTransfer holds the current call, dials target as a consult leg and
// watches the contact's refresh events for the leg to connect.
func (c *Controller) WarmTransfer(ctx context.Context, target string, kind domain.TransferKind) {
	contact, err := c.firstVoiceContact()
	if err != nil {
		c.logFailure("addConnection", "", err)
		return
	}

	c.HoldCall(ctx, contact.ID())

	endpoint := c.Endpoint(target)
	number := phone.Digits(target)
	c.run(ctx, "addConnection", contact.ID(), func(ctx context.Context) error {
		return contact.AddConnection(ctx, endpoint)
	}, func() {
		c.watchRefresh(contact, number, kind)
	})
}

func (c *Controller) watchRefresh(contact callplatform.Contact, number string, kind domain.TransferKind) {
	if c.bus == nil {
		c.logger.Warn().Str("contact_id", contact.ID()).Msg("No event bus to watch consult leg")
		return
	}

	unsubscribe := c.bus.Subscribe(callplatform.RefreshEvent(contact.ID()), func() {
		c.loop.Post(func() { c.onRefresh(contact, number, kind) })
	})
	c.refreshes[contact.ID()] = append(c.refreshes[contact.ID()], unsubscribe)
}

// onRefresh emits the consult action the first time the newest leg is seen
// connected.
func (c *Controller) onRefresh(contact callplatform.Contact, number string, kind domain.TransferKind) {
	conns := contact.Connections()
	if len(conns) == 0 {
		return
	}
	consult := conns[len(conns)-1]

	obs := c.pool.Observe(consult.ID(), consult.IsConnected(), consult.IsActive())
	c.logger.Debug().
		Str("contact_id", contact.ID()).
		Str("connection_id", consult.ID()).
		Stringer("observation", obs).
		Msg("Consult leg refreshed")

	if obs != dedup.Emit {
		return
	}

	typ := domain.ActionWarmTransfer
	if kind == domain.TransferConference {
		typ = domain.ActionConference
	}
	c.emitter.Emit(domain.Action{
		Type:          typ,
		CorrelationID: consult.ID(),
		PhoneNumber:   number,
		Direction:     domain.DirectionOutbound,
		Connections:   []domain.ConnectionSnapshot{{ConnectionID: consult.ID()}},
	})
}

// ConferenceCall joins every leg of the contact that owns id, or of every
// contact when id is empty.
func (c *Controller) ConferenceCall(ctx context.Context, id string) {
	var contacts []callplatform.Contact
	if id == "" {
		contacts = c.Contacts()
	} else {
		contact, err := c.contactFor(id)
		if err != nil {
			c.logFailure("conferenceConnections", id, err)
			return
		}
		contacts = []callplatform.Contact{contact}
	}

	for _, contact := range contacts {
		contact := contact
		c.run(ctx, "conferenceConnections", contact.ID(), contact.ConferenceConnections, func() {
			c.emitter.Emit(domain.Action{
				Type:          domain.ActionCompletedConference,
				CorrelationID: contact.ID(),
				Direction:     domain.DirectionOf(contact.IsInbound()),
				Connections:   RemoteSnapshots(contact.Connections()),
			})
		})
	}
}

// CompleteWarmTransfer joins the consult leg and drops the agent from every
// contact.
func (c *Controller) CompleteWarmTransfer(ctx context.Context) {
	for _, contact := range c.Contacts() {
		contact := contact
		c.run(ctx, "completeTransfer", contact.ID(), func(ctx context.Context) error {
			if err := contact.ConferenceConnections(ctx); err != nil {
				return fmt.Errorf("conference connections: %w", err)
			}
			agentLeg := contact.AgentConnection()
			if agentLeg == nil {
				return domain.Malformed("contact %s has no agent connection", contact.ID())
			}
			if err := agentLeg.Destroy(ctx); err != nil {
				return fmt.Errorf("end agent connection: %w", err)
			}
			return nil
		}, func() {
			c.emitter.Emit(domain.Action{
				Type:          domain.ActionCompletedTransfer,
				CorrelationID: contact.ID(),
			})
		})
	}
}

// SetPresence moves the agent to the state named name. It blocks and may be
// called from any goroutine.
func (c *Controller) SetPresence(ctx context.Context, name string) error {
	agent, err := c.currentAgent()
	if err != nil {
		return err
	}

	for _, state := range agent.States() {
		if state.Name == name {
			if err := agent.SetState(ctx, state); err != nil {
				return &domain.AdapterError{Op: "setState", Err: err}
			}
			return nil
		}
	}
	return fmt.Errorf("%w: agent has no state %q", domain.ErrUnknownPresence, name)
}

// forget drops per-contact bookkeeping once a contact has ended.
func (c *Controller) forget(contact callplatform.Contact) {
	for _, unsubscribe := range c.refreshes[contact.ID()] {
		unsubscribe()
	}
	delete(c.refreshes, contact.ID())

	for _, conn := range contact.Connections() {
		c.pool.Clear(conn.ID())
	}
	if c.outboundCall == contact.ID() {
		c.outboundCall = ""
	}
}

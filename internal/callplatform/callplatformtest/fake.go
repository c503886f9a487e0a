// Package callplatformtest provides in-memory call platform handles for tests.
package callplatformtest

import (
	"context"
	"sync"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
)

type Connection struct {
	mu        sync.Mutex
	id        string
	contactID string
	endpoint  *callplatform.Endpoint
	status    callplatform.ConnectionStatus

	HoldErr    error
	ResumeErr  error
	DestroyErr error

	holds    int
	resumes  int
	destroys int
}

func NewConnection(id, contactID string, endpoint *callplatform.Endpoint, status callplatform.ConnectionStatus) *Connection {
	return &Connection{id: id, contactID: contactID, endpoint: endpoint, status: status}
}

// AgentLeg returns a connected agent connection.
func AgentLeg(contactID, id string) *Connection {
	return NewConnection(id, contactID, &callplatform.Endpoint{Type: callplatform.EndpointAgent, Name: "agent"}, callplatform.ConnectionConnected)
}

// PhoneLeg returns a connected external connection for number.
func PhoneLeg(contactID, id, number string) *Connection {
	return NewConnection(id, contactID, &callplatform.Endpoint{Type: callplatform.EndpointPhoneNumber, PhoneNumber: number}, callplatform.ConnectionConnected)
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) ContactID() string { return c.contactID }

func (c *Connection) Endpoint() *callplatform.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

func (c *Connection) Status() callplatform.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) SetStatus(status callplatform.ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *Connection) IsConnected() bool {
	return c.Status() == callplatform.ConnectionConnected
}

func (c *Connection) IsActive() bool {
	s := c.Status()
	return s != callplatform.ConnectionDisconnected && s != callplatform.ConnectionInit
}

func (c *Connection) Hold(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holds++
	if c.HoldErr != nil {
		return c.HoldErr
	}
	c.status = callplatform.ConnectionHold
	return nil
}

func (c *Connection) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumes++
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	c.status = callplatform.ConnectionConnected
	return nil
}

func (c *Connection) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroys++
	if c.DestroyErr != nil {
		return c.DestroyErr
	}
	c.status = callplatform.ConnectionDisconnected
	return nil
}

func (c *Connection) Holds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holds
}

func (c *Connection) Resumes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumes
}

func (c *Connection) Destroys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroys
}

type Contact struct {
	mu        sync.Mutex
	id        string
	typ       callplatform.ContactType
	status    callplatform.ContactStatus
	inbound   bool
	softphone bool
	conns     []*Connection

	onConnected []func()
	onEnded     []func()

	AcceptErr     error
	ConferenceErr error
	AddErr        error
	DestroyErr    error

	accepts     int
	conferences int
	added       []callplatform.Endpoint
	destroyed   bool
}

// NewContact returns a softphone voice contact in connecting state.
func NewContact(id string, inbound bool, conns ...*Connection) *Contact {
	return &Contact{
		id:        id,
		typ:       callplatform.ContactVoice,
		status:    callplatform.ContactConnecting,
		inbound:   inbound,
		softphone: true,
		conns:     conns,
	}
}

func (c *Contact) ID() string { return c.id }

func (c *Contact) Type() callplatform.ContactType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

func (c *Contact) SetType(typ callplatform.ContactType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typ = typ
}

func (c *Contact) Status() callplatform.ContactStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Contact) SetStatus(status callplatform.ContactStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *Contact) IsInbound() bool { return c.inbound }

func (c *Contact) IsSoftphoneCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softphone
}

func (c *Contact) SetSoftphone(softphone bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.softphone = softphone
}

func (c *Contact) AppendConnection(conn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = append(c.conns, conn)
}

func (c *Contact) Connections() []callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]callplatform.Connection, len(c.conns))
	for i, conn := range c.conns {
		out[i] = conn
	}
	return out
}

func (c *Contact) AgentConnection() callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		if ep := conn.Endpoint(); ep != nil && ep.Type == callplatform.EndpointAgent {
			return conn
		}
	}
	if len(c.conns) > 0 {
		return c.conns[0]
	}
	return nil
}

func (c *Contact) InitialConnection() callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		if ep := conn.Endpoint(); ep == nil || ep.Type != callplatform.EndpointAgent {
			return conn
		}
	}
	return nil
}

func (c *Contact) OnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = append(c.onConnected, fn)
}

func (c *Contact) OnEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = append(c.onEnded, fn)
}

// FireConnected invokes every OnConnected callback.
func (c *Contact) FireConnected() {
	c.mu.Lock()
	c.status = callplatform.ContactConnected
	fns := append([]func(){}, c.onConnected...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// FireEnded invokes every OnEnded callback.
func (c *Contact) FireEnded() {
	c.mu.Lock()
	c.status = callplatform.ContactEnded
	fns := append([]func(){}, c.onEnded...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Contact) Accept(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepts++
	return c.AcceptErr
}

func (c *Contact) ConferenceConnections(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conferences++
	return c.ConferenceErr
}

func (c *Contact) AddConnection(_ context.Context, endpoint callplatform.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, endpoint)
	return c.AddErr
}

func (c *Contact) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	return c.DestroyErr
}

func (c *Contact) Accepts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepts
}

func (c *Contact) Conferences() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conferences
}

func (c *Contact) Added() []callplatform.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]callplatform.Endpoint(nil), c.added...)
}

func (c *Contact) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

type Agent struct {
	mu        sync.Mutex
	username  string
	state     callplatform.AgentState
	states    []callplatform.AgentState
	contacts  []*Contact
	onChange  []func(callplatform.StateChange)
	queueARNs []string
	endpoints []callplatform.Endpoint

	EndpointsErr error
	SetStateErr  error
	ConnectErr   error

	setStates []callplatform.AgentState
	connects  []callplatform.Endpoint
}

// NewAgent returns an agent whose current state is the first of states.
func NewAgent(username string, states ...string) *Agent {
	a := &Agent{username: username}
	for _, s := range states {
		a.states = append(a.states, callplatform.AgentState{Name: s})
	}
	if len(a.states) > 0 {
		a.state = a.states[0]
	}
	return a
}

func (a *Agent) Username() string { return a.username }

func (a *Agent) State() callplatform.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) States() []callplatform.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]callplatform.AgentState(nil), a.states...)
}

func (a *Agent) OnStateChange(fn func(callplatform.StateChange)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = append(a.onChange, fn)
}

// ChangeState moves the agent to name and fires the state change callbacks.
func (a *Agent) ChangeState(name string) {
	a.mu.Lock()
	old := a.state.Name
	a.state = callplatform.AgentState{Name: name}
	fns := append([]func(callplatform.StateChange){}, a.onChange...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn(callplatform.StateChange{OldState: old, NewState: name})
	}
}

func (a *Agent) AddContact(c *Contact) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contacts = append(a.contacts, c)
}

func (a *Agent) RemoveContact(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.contacts[:0]
	for _, c := range a.contacts {
		if c.ID() != id {
			kept = append(kept, c)
		}
	}
	a.contacts = kept
}

func (a *Agent) Contacts() []callplatform.Contact {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]callplatform.Contact, len(a.contacts))
	for i, c := range a.contacts {
		out[i] = c
	}
	return out
}

func (a *Agent) SetQueues(arns []string, endpoints []callplatform.Endpoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queueARNs = arns
	a.endpoints = endpoints
}

func (a *Agent) AllQueueARNs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queueARNs...)
}

func (a *Agent) Endpoints(context.Context, []string) ([]callplatform.Endpoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.EndpointsErr != nil {
		return nil, a.EndpointsErr
	}
	return append([]callplatform.Endpoint(nil), a.endpoints...), nil
}

func (a *Agent) SetState(_ context.Context, state callplatform.AgentState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setStates = append(a.setStates, state)
	if a.SetStateErr != nil {
		return a.SetStateErr
	}
	a.state = state
	return nil
}

func (a *Agent) Connect(_ context.Context, endpoint callplatform.Endpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects = append(a.connects, endpoint)
	return a.ConnectErr
}

func (a *Agent) SetStateCalls() []callplatform.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]callplatform.AgentState(nil), a.setStates...)
}

func (a *Agent) ConnectCalls() []callplatform.Endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]callplatform.Endpoint(nil), a.connects...)
}

type EventBus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func()
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[int]func())}
}

func (b *EventBus) Subscribe(event string, handler func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[event] == nil {
		b.subs[event] = make(map[int]func())
	}
	id := b.next
	b.next++
	b.subs[event][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[event], id)
	}
}

// Publish invokes every handler subscribed to event.
func (b *EventBus) Publish(event string) {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.subs[event]))
	for _, h := range b.subs[event] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (b *EventBus) Subscribers(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}

type Platform struct {
	mu          sync.Mutex
	bus         *EventBus
	agentSubs   []func(callplatform.Agent)
	contactSubs []func(callplatform.Contact)
	opts        *callplatform.InitOptions

	InitErr error
}

func NewPlatform() *Platform {
	return &Platform{bus: NewEventBus()}
}

func (p *Platform) Initialize(_ context.Context, opts callplatform.InitOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = &opts
	return p.InitErr
}

func (p *Platform) InitOptions() *callplatform.InitOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

func (p *Platform) SubscribeAgent(fn func(callplatform.Agent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentSubs = append(p.agentSubs, fn)
}

func (p *Platform) SubscribeContact(fn func(callplatform.Contact)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contactSubs = append(p.contactSubs, fn)
}

func (p *Platform) EventBus() callplatform.EventBus {
	return p.bus
}

func (p *Platform) Bus() *EventBus {
	return p.bus
}

// EmitAgent delivers a to every agent subscriber.
func (p *Platform) EmitAgent(a callplatform.Agent) {
	p.mu.Lock()
	fns := append([]func(callplatform.Agent){}, p.agentSubs...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

// EmitContact delivers c to every contact subscriber.
func (p *Platform) EmitContact(c callplatform.Contact) {
	p.mu.Lock()
	fns := append([]func(callplatform.Contact){}, p.contactSubs...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

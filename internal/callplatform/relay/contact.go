package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
)

// Contact is a live view of a relay contact, updated in place by snapshots.
type Contact struct {
	platform *Platform
	id       string
	inbound  bool
	arrival  uint64

	mu          sync.Mutex
	typ         callplatform.ContactType
	status      callplatform.ContactStatus
	softphone   bool
	connections []*Connection
	onConnected []func()
	onEnded     []func()
}

var _ callplatform.Contact = (*Contact)(nil)

func newContact(p *Platform, snap ContactSnapshot, arrival uint64) *Contact {
	c := &Contact{
		platform: p,
		id:       snap.ContactID,
		inbound:  snap.Inbound,
		arrival:  arrival,
	}
	c.typ = snap.Type
	c.status = snap.Status
	c.softphone = snap.Softphone
	c.connections = c.merge(snap.Connections)
	return c
}

// merge reuses existing connection handles by id so subscribers holding a
// leg see its status change. Callers hold c.mu or own c exclusively.
func (c *Contact) merge(snaps []ConnectionSnapshot) []*Connection {
	existing := make(map[string]*Connection, len(c.connections))
	for _, conn := range c.connections {
		existing[conn.id] = conn
	}

	out := make([]*Connection, 0, len(snaps))
	for _, s := range snaps {
		conn, ok := existing[s.ConnectionID]
		if !ok {
			conn = &Connection{contact: c, id: s.ConnectionID}
		}
		conn.set(s)
		out = append(out, conn)
	}
	return out
}

// apply folds a refresh snapshot into the contact and fires the connected or
// ended handlers on the matching status transition.
func (c *Contact) apply(snap ContactSnapshot) {
	c.mu.Lock()
	previous := c.status
	c.typ = snap.Type
	c.status = snap.Status
	c.softphone = snap.Softphone
	c.connections = c.merge(snap.Connections)

	var fire []func()
	switch {
	case snap.Status == callplatform.ContactConnected && previous != callplatform.ContactConnected:
		fire = append(fire, c.onConnected...)
	case snap.Status == callplatform.ContactEnded && previous != callplatform.ContactEnded:
		fire = append(fire, c.onEnded...)
	}
	c.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

func (c *Contact) ID() string      { return c.id }
func (c *Contact) IsInbound() bool { return c.inbound }

func (c *Contact) Type() callplatform.ContactType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

func (c *Contact) Status() callplatform.ContactStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Contact) IsSoftphoneCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softphone
}

func (c *Contact) Connections() []callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]callplatform.Connection, len(c.connections))
	for i, conn := range c.connections {
		out[i] = conn
	}
	return out
}

// AgentConnection returns the first agent-typed leg, or nil.
func (c *Contact) AgentConnection() callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.connections {
		if e := conn.Endpoint(); e != nil && e.Type == callplatform.EndpointAgent {
			return conn
		}
	}
	return nil
}

// InitialConnection returns the first customer leg, or nil.
func (c *Contact) InitialConnection() callplatform.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.connections {
		if e := conn.Endpoint(); e == nil || e.Type != callplatform.EndpointAgent {
			return conn
		}
	}
	return nil
}

// OnConnected registers fn. It runs immediately when the contact is already
// connected.
func (c *Contact) OnConnected(fn func()) {
	c.mu.Lock()
	c.onConnected = append(c.onConnected, fn)
	now := c.status == callplatform.ContactConnected
	c.mu.Unlock()

	if now {
		fn()
	}
}

// OnEnded registers fn. It runs immediately when the contact has already ended.
func (c *Contact) OnEnded(fn func()) {
	c.mu.Lock()
	c.onEnded = append(c.onEnded, fn)
	now := c.status == callplatform.ContactEnded
	c.mu.Unlock()

	if now {
		fn()
	}
}

func (c *Contact) Accept(ctx context.Context) error {
	return c.command(ctx, CmdContactAccept, ContactRequest{ContactID: c.id})
}

func (c *Contact) ConferenceConnections(ctx context.Context) error {
	return c.command(ctx, CmdContactConference, ContactRequest{ContactID: c.id})
}

func (c *Contact) AddConnection(ctx context.Context, endpoint callplatform.Endpoint) error {
	return c.command(ctx, CmdContactAddConnection, EndpointRequest{ContactID: c.id, Endpoint: endpoint})
}

func (c *Contact) Destroy(ctx context.Context) error {
	return c.command(ctx, CmdContactDestroy, ContactRequest{ContactID: c.id})
}

func (c *Contact) command(ctx context.Context, name string, body interface{}) error {
	if err := c.platform.transport.Request(ctx, name, body, nil); err != nil {
		return fmt.Errorf("%s %s: %w", name, c.id, err)
	}
	return nil
}

// Connection is one leg of a relay contact.
type Connection struct {
	contact *Contact
	id      string

	mu       sync.Mutex
	status   callplatform.ConnectionStatus
	endpoint *callplatform.Endpoint
}

var _ callplatform.Connection = (*Connection)(nil)

func (c *Connection) set(s ConnectionSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s.Status
	c.endpoint = s.Endpoint
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) ContactID() string { return c.contact.id }

func (c *Connection) Endpoint() *callplatform.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return nil
	}
	e := *c.endpoint
	return &e
}

func (c *Connection) Status() callplatform.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) IsConnected() bool {
	return c.Status() == callplatform.ConnectionConnected
}

// IsActive reports whether the leg is up, including while on hold.
func (c *Connection) IsActive() bool {
	s := c.Status()
	return s != callplatform.ConnectionDisconnected && s != callplatform.ConnectionInit
}

func (c *Connection) Hold(ctx context.Context) error {
	return c.command(ctx, CmdConnectionHold)
}

func (c *Connection) Resume(ctx context.Context) error {
	return c.command(ctx, CmdConnectionResume)
}

func (c *Connection) Destroy(ctx context.Context) error {
	return c.command(ctx, CmdConnectionDestroy)
}

func (c *Connection) command(ctx context.Context, name string) error {
	req := ConnectionRequest{ContactID: c.contact.id, ConnectionID: c.id}
	if err := c.contact.platform.transport.Request(ctx, name, req, nil); err != nil {
		return fmt.Errorf("%s %s: %w", name, c.id, err)
	}
	return nil
}

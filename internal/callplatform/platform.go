// Package callplatform declares the narrow surface of the call platform the
// bridge consumes: the agent session, its contacts and their connection legs.
//
// Methods that talk to the platform take a context and block until the
// platform reports success or failure. Callers on the event loop never invoke
// them directly; they go through eventloop.Do on the Lane below, which keeps
// the loop free and delivers commands to the platform in the order issued.
package callplatform

import (
	"context"

	"github.com/amctechnology/AmazonConnect/internal/phone"
)

type EndpointType string

const (
	EndpointAgent       EndpointType = "agent"
	EndpointPhoneNumber EndpointType = "phone_number"
	EndpointQueue       EndpointType = "queue"
)

type Endpoint struct {
	Type        EndpointType `json:"type"`
	Name        string       `json:"name,omitempty"`
	PhoneNumber string       `json:"phoneNumber,omitempty"`
	EndpointARN string       `json:"endpointARN,omitempty"`
}

// EndpointByPhoneNumber builds an external endpoint for a dialable number.
func EndpointByPhoneNumber(number string) Endpoint {
	e164 := phone.E164(number)
	return Endpoint{
		Type:        EndpointPhoneNumber,
		Name:        e164,
		PhoneNumber: e164,
	}
}

// StripPhoneNumber returns the endpoint number as digits only.
func (e Endpoint) StripPhoneNumber() string {
	return phone.Digits(e.PhoneNumber)
}

type ConnectionStatus string

const (
	ConnectionInit         ConnectionStatus = "init"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionHold         ConnectionStatus = "hold"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

type Connection interface {
	ID() string
	ContactID() string
	// Endpoint returns nil when the platform has not resolved the leg's endpoint.
	Endpoint() *Endpoint
	Status() ConnectionStatus
	IsConnected() bool
	IsActive() bool
	Hold(ctx context.Context) error
	Resume(ctx context.Context) error
	Destroy(ctx context.Context) error
}

type ContactType string

const (
	ContactVoice ContactType = "voice"
	ContactChat  ContactType = "chat"
)

type ContactStatus string

const (
	ContactIncoming   ContactStatus = "incoming"
	ContactConnecting ContactStatus = "connecting"
	ContactConnected  ContactStatus = "connected"
	ContactEnded      ContactStatus = "ended"
	ContactError      ContactStatus = "error"
)

type Contact interface {
	ID() string
	Type() ContactType
	Status() ContactStatus
	IsInbound() bool
	IsSoftphoneCall() bool
	// Connections lists legs in platform order; the first is the agent leg.
	Connections() []Connection
	AgentConnection() Connection
	InitialConnection() Connection
	OnConnected(fn func())
	OnEnded(fn func())
	Accept(ctx context.Context) error
	ConferenceConnections(ctx context.Context) error
	AddConnection(ctx context.Context, endpoint Endpoint) error
	Destroy(ctx context.Context) error
}

type AgentState struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type StateChange struct {
	OldState string `json:"oldState"`
	NewState string `json:"newState"`
}

type Agent interface {
	Username() string
	State() AgentState
	States() []AgentState
	OnStateChange(fn func(StateChange))
	Contacts() []Contact
	AllQueueARNs() []string
	Endpoints(ctx context.Context, queueARNs []string) ([]Endpoint, error)
	SetState(ctx context.Context, state AgentState) error
	Connect(ctx context.Context, endpoint Endpoint) error
}

// Lane is the event loop lane every platform command runs on.
const Lane = "callplatform"

// Event bus topics the bridge listens to.
const (
	EventTerminated  = "terminated"
	EventAcknowledge = "acknowledge"
)

// RefreshEvent names the per-contact refresh topic on the event bus.
func RefreshEvent(contactID string) string {
	return "contact::" + contactID + "::refresh"
}

type EventBus interface {
	// Subscribe registers handler and returns a function that removes it.
	Subscribe(event string, handler func()) (unsubscribe func())
}

type InitOptions struct {
	CCPURL          string
	LoginPopup      bool
	DisableRingtone bool
}

// Platform is the entry point of the call platform SDK.
type Platform interface {
	Initialize(ctx context.Context, opts InitOptions) error
	SubscribeAgent(fn func(Agent))
	SubscribeContact(fn func(Contact))
	EventBus() EventBus
}

package relay

import "github.com/amctechnology/AmazonConnect/internal/callplatform"

// Pushed by the relay.
const (
	MsgAgentSnapshot   = "agentSnapshot"
	MsgContactSnapshot = "contactSnapshot"
	MsgBusEvent        = "busEvent"
)

// Commands sent to the relay.
const (
	CmdInitialize           = "initialize"
	CmdLogout               = "logout"
	CmdAgentSetState        = "agentSetState"
	CmdAgentConnect         = "agentConnect"
	CmdAgentEndpoints       = "agentEndpoints"
	CmdContactAccept        = "contactAccept"
	CmdContactConference    = "contactConference"
	CmdContactAddConnection = "contactAddConnection"
	CmdContactDestroy       = "contactDestroy"
	CmdConnectionHold       = "connectionHold"
	CmdConnectionResume     = "connectionResume"
	CmdConnectionDestroy    = "connectionDestroy"
)

// Agent snapshot pushed on login and on every agent refresh
type AgentSnapshot struct {
	Username  string                    `json:"username"`
	State     callplatform.AgentState   `json:"state"`
	States    []callplatform.AgentState `json:"states"`
	QueueARNs []string                  `json:"queueARNs,omitempty"`
}

type ConnectionSnapshot struct {
	ConnectionID string                        `json:"connectionId"`
	Status       callplatform.ConnectionStatus `json:"status"`
	Endpoint     *callplatform.Endpoint        `json:"endpoint,omitempty"`
}

// Contact snapshot pushed on every contact refresh. Connections are in
// platform order with the agent leg first.
type ContactSnapshot struct {
	ContactID   string                     `json:"contactId"`
	Type        callplatform.ContactType   `json:"type"`
	Status      callplatform.ContactStatus `json:"status"`
	Inbound     bool                       `json:"inbound"`
	Softphone   bool                       `json:"softphone"`
	Connections []ConnectionSnapshot       `json:"connections"`
}

type BusEvent struct {
	Event string `json:"event"`
}

type InitializeRequest struct {
	CCPURL          string `json:"ccpUrl"`
	LoginPopup      bool   `json:"loginPopup"`
	DisableRingtone bool   `json:"disableRingtone"`
}

type SetStateRequest struct {
	State callplatform.AgentState `json:"state"`
}

type EndpointRequest struct {
	ContactID string                `json:"contactId,omitempty"`
	Endpoint  callplatform.Endpoint `json:"endpoint"`
}

type EndpointsRequest struct {
	QueueARNs []string `json:"queueARNs"`
}

type EndpointsResponse struct {
	Endpoints []callplatform.Endpoint `json:"endpoints"`
}

type ContactRequest struct {
	ContactID string `json:"contactId"`
}

type ConnectionRequest struct {
	ContactID    string `json:"contactId"`
	ConnectionID string `json:"connectionId"`
}

package domain

import "time"

type ActionType string

const (
	ActionRinging             ActionType = "ringing"
	ActionAnswered            ActionType = "answered"
	ActionCompleted           ActionType = "completed"
	ActionHold                ActionType = "hold"
	ActionResume              ActionType = "resume"
	ActionConference          ActionType = "conference"
	ActionWarmTransfer        ActionType = "warmtransfer"
	ActionCompletedTransfer   ActionType = "completedTransfer"
	ActionCompletedConference ActionType = "completedConference"
	ActionConferencePartyLeft ActionType = "conferencePartyLeft"
	ActionNoop                ActionType = "noop"
)

type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
)

// DirectionOf maps the platform's inbound flag onto a Direction.
func DirectionOf(inbound bool) Direction {
	if inbound {
		return DirectionInbound
	}
	return DirectionOutbound
}

// ConnectionSnapshot is a copy of one connection leg taken when an action is built.
type ConnectionSnapshot struct {
	ConnectionID string `json:"connectionId"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Action is a single call lifecycle event. Actions are created by the
// translator or the poller, consumed once by the reducer and never mutated.
type Action struct {
	Type          ActionType
	CorrelationID string
	PhoneNumber   string
	Direction     Direction
	Connections   []ConnectionSnapshot
	Operations    OperationBuilder
	IconPack      string
	OccurredAt    time.Time
}

// FirstConnectionID returns the id of the first connection snapshot, or "".
func (a Action) FirstConnectionID() string {
	if len(a.Connections) == 0 {
		return ""
	}
	return a.Connections[0].ConnectionID
}

// Noop returns the passthrough action for id.
func Noop(id string) Action {
	return Action{Type: ActionNoop, CorrelationID: id}
}

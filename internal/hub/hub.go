// Package hub declares the channel hub surface the bridge consumes and a
// websocket client implementing it.
package hub

import (
	"context"
	"strings"
)

// Event loop lanes for hub calls. Contextual operations wait on the operator,
// so they get their own lane instead of holding up presence and interactions.
const (
	Lane           = "hub"
	ContextualLane = "hub.contextual"
)

type ChannelType string

const ChannelTelephony ChannelType = "Telephony"

type ContextualOperationType string

const (
	OperationBlindTransfer ContextualOperationType = "BlindTransfer"
	OperationWarmTransfer  ContextualOperationType = "WarmTransfer"
	OperationConference    ContextualOperationType = "Conference"
	OperationConsult       ContextualOperationType = "Consult"
)

type InteractionState string

const (
	StateAlerting     InteractionState = "Alerting"
	StateConnected    InteractionState = "Connected"
	StateDisconnected InteractionState = "Disconnected"
	StateOnHold       InteractionState = "OnHold"
)

type InteractionDirection string

const (
	DirectionInbound  InteractionDirection = "Inbound"
	DirectionOutbound InteractionDirection = "Outbound"
)

type ContactChannel struct {
	ID          string      `json:"id"`
	Type        ChannelType `json:"type,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
}

// ContextualContact is the target the operator picked for a contextual
// operation or a contextual control.
type ContextualContact struct {
	UniqueID    string           `json:"uniqueId"`
	DisplayName string           `json:"displayName,omitempty"`
	Channels    []ContactChannel `json:"channels,omitempty"`
}

// ContactID returns the first channel id, falling back to the unique id.
func (c ContextualContact) ContactID() string {
	if len(c.Channels) > 0 && c.Channels[0].ID != "" {
		return c.Channels[0].ID
	}
	return c.UniqueID
}

type RecordDetails struct {
	Phone string `json:"phone,omitempty"`
}

type Interaction struct {
	InteractionID string               `json:"interactionId"`
	ScenarioID    string               `json:"scenarioId"`
	State         InteractionState     `json:"state"`
	ChannelType   ChannelType          `json:"channelType"`
	Direction     InteractionDirection `json:"direction"`
	Details       RecordDetails        `json:"details"`
}

type SupportedChannel struct {
	ChannelType     ChannelType               `json:"channelType"`
	IDName          string                    `json:"idName"`
	ID              string                    `json:"id"`
	ValidOperations []ContextualOperationType `json:"validOperations"`
	ValidPresences  []string                  `json:"validPresences"`
}

// PresenceChange is a presence update pushed by the hub. Origin names the
// application that caused it, if any.
type PresenceChange struct {
	Presence string `json:"presence"`
	Reason   string `json:"reason,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// AppConfig is what the hub hands back from InitializeComplete.
type AppConfig struct {
	AppName                   string            `json:"appName"`
	CCPURL                    string            `json:"ccpUrl"`
	CallPlatformToHubPresence map[string]string `json:"callPlatformToHubPresence"`
	HubToCallPlatformPresence map[string]string `json:"hubToCallPlatformPresence"`
	Variables                 map[string]any    `json:"variables,omitempty"`
}

// SplitPresence splits a "presence|reason" composite.
func SplitPresence(value string) (presence, reason string) {
	presence, reason, _ = strings.Cut(value, "|")
	return presence, reason
}

// JoinPresence is the inverse of SplitPresence.
func JoinPresence(presence, reason string) string {
	if reason == "" {
		return presence
	}
	return presence + "|" + reason
}

// Hub is the channel hub surface. Register* callbacks may be invoked from any
// goroutine.
type Hub interface {
	RegisterContextualControls(fn func(ContextualContact))
	RegisterOnPresenceChanged(fn func(PresenceChange))
	RegisterClickToDial(fn func(number string))
	RegisterOnLogout(fn func(reason string))
	InitializeComplete(ctx context.Context) (AppConfig, error)
	SetPresence(ctx context.Context, presence, reason string) error
	SetInteraction(ctx context.Context, interaction Interaction) error
	ContextualOperation(ctx context.Context, op ContextualOperationType, channel ChannelType) (ContextualContact, error)
	SetSupportedChannels(ctx context.Context, channels []SupportedChannel) error
	EnableClickToDial(ctx context.Context, enabled bool) error
	Logout(ctx context.Context) error
}

// Package hubsync mirrors call actions into channel hub interaction records.
package hubsync

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/hub"
	"github.com/amctechnology/AmazonConnect/internal/scenario"
)

type InteractionSetter interface {
	SetInteraction(ctx context.Context, interaction hub.Interaction) error
}

type Publisher struct {
	hub    InteractionSetter
	loop   *eventloop.Loop
	ctx    context.Context
	logger zerolog.Logger
}

func NewPublisher(ctx context.Context, setter InteractionSetter, loop *eventloop.Loop, logger zerolog.Logger) *Publisher {
	return &Publisher{
		hub:    setter,
		loop:   loop,
		ctx:    ctx,
		logger: logger.With().Str("component", "hubsync").Logger(),
	}
}

// StateFor maps an action onto the hub interaction state it implies.
func StateFor(t domain.ActionType) (hub.InteractionState, bool) {
	switch t {
	case domain.ActionRinging, domain.ActionConference:
		return hub.StateAlerting, true
	case domain.ActionAnswered, domain.ActionResume:
		return hub.StateConnected, true
	case domain.ActionCompleted:
		return hub.StateDisconnected, true
	case domain.ActionHold:
		return hub.StateOnHold, true
	default:
		return "", false
	}
}

// Interaction builds the hub record for a.
func Interaction(a domain.Action, state hub.InteractionState) hub.Interaction {
	direction := hub.DirectionOutbound
	if a.Direction == domain.DirectionInbound {
		direction = hub.DirectionInbound
	}
	return hub.Interaction{
		InteractionID: a.CorrelationID,
		ScenarioID:    a.CorrelationID,
		State:         state,
		ChannelType:   hub.ChannelTelephony,
		Direction:     direction,
		Details:       hub.RecordDetails{Phone: a.PhoneNumber},
	}
}

// Effect is registered on the scenario store. It runs on the loop and sends
// the interaction off-loop.
func (p *Publisher) Effect(a domain.Action, _ []scenario.Scenario) {
	state, ok := StateFor(a.Type)
	if !ok {
		return
	}

	interaction := Interaction(a, state)
	eventloop.Exec(p.loop.Lane(hub.Lane), p.ctx, func(ctx context.Context) error {
		return p.hub.SetInteraction(ctx, interaction)
	}, func(err error) {
		if err != nil {
			p.logger.Error().
				Err(&domain.AdapterError{Op: "setInteraction", ContactID: a.CorrelationID, Err: err}).
				Str("action", string(a.Type)).
				Msg("Failed to publish interaction")
			return
		}
		p.logger.Debug().
			Str("correlation_id", a.CorrelationID).
			Str("state", string(state)).
			Msg("Interaction published")
	})
}

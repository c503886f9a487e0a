// Package presence keeps the agent's presence in step between the call
// platform and the channel hub.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/hub"
)

// Tables holds the two presence lookup tables. Hub-side values may encode a
// "presence|reason" composite. Tables are read-only once a Bridge owns them.
type Tables struct {
	CallPlatformToHub map[string]string
	HubToCallPlatform map[string]string
}

// HubSetter sets the agent's presence in the channel hub.
type HubSetter interface {
	SetPresence(ctx context.Context, presence, reason string) error
}

// PlatformSetter sets the agent's state in the call platform by name.
type PlatformSetter interface {
	SetPresence(ctx context.Context, name string) error
}

// PlatformSetterFunc adapts a function to PlatformSetter.
type PlatformSetterFunc func(ctx context.Context, name string) error

func (f PlatformSetterFunc) SetPresence(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Bridge translates presence changes in both directions. Its methods must be
// called on the event loop; adapter calls run off-loop on one lane per side,
// so each side receives presence changes in the order they were decided.
type Bridge struct {
	tables       Tables
	identity     string
	hub          HubSetter
	platform     PlatformSetter
	hubLane      *eventloop.Lane
	platformLane *eventloop.Lane
	logger       zerolog.Logger

	lastCallPlatform string
	// full hub value, "presence|reason" when a reason is set
	lastHub string
}

func NewBridge(tables Tables, identity string, hubSetter HubSetter, platform PlatformSetter, loop *eventloop.Loop, logger zerolog.Logger) (*Bridge, error) {
	if len(tables.CallPlatformToHub) == 0 {
		return nil, fmt.Errorf("%w: call platform to hub presence table", domain.ErrConfigurationMissing)
	}
	if len(tables.HubToCallPlatform) == 0 {
		return nil, fmt.Errorf("%w: hub to call platform presence table", domain.ErrConfigurationMissing)
	}

	return &Bridge{
		tables:       copyTables(tables),
		identity:     identity,
		hub:          hubSetter,
		platform:     platform,
		hubLane:      loop.Lane(hub.Lane),
		platformLane: loop.Lane(callplatform.Lane),
		logger:       logger.With().Str("component", "presence").Logger(),
	}, nil
}

func copyTables(t Tables) Tables {
	out := Tables{
		CallPlatformToHub: make(map[string]string, len(t.CallPlatformToHub)),
		HubToCallPlatform: make(map[string]string, len(t.HubToCallPlatform)),
	}
	for k, v := range t.CallPlatformToHub {
		out.CallPlatformToHub[k] = v
	}
	for k, v := range t.HubToCallPlatform {
		out.HubToCallPlatform[k] = v
	}
	return out
}

// LastCallPlatform returns the last call-platform presence seen or set.
func (b *Bridge) LastCallPlatform() string { return b.lastCallPlatform }

// LastHub returns the last hub presence seen or set, as "presence|reason"
// when it carries a reason.
func (b *Bridge) LastHub() string { return b.lastHub }

// OnCallPlatformPresenceChanged propagates an agent state change to the hub.
func (b *Bridge) OnCallPlatformPresenceChanged(ctx context.Context, value string) {
	defer b.guard("call platform presence")

	if value == "" {
		b.logger.Warn().Err(domain.Malformed("empty call platform presence")).Msg("Dropping presence change")
		return
	}
	if value == b.lastCallPlatform {
		return
	}
	b.lastCallPlatform = value

	mapped, ok := b.tables.CallPlatformToHub[value]
	if !ok {
		b.logger.Warn().
			Err(domain.ErrUnknownPresence).
			Str("presence", value).
			Msg("Call platform presence has no hub mapping")
		return
	}

	if mapped == b.lastHub {
		return
	}
	b.lastHub = mapped
	presence, reason := hub.SplitPresence(mapped)

	b.logger.Info().
		Str("presence", presence).
		Str("reason", reason).
		Str("call_platform_presence", value).
		Msg("Setting hub presence")

	eventloop.Exec(b.hubLane, ctx, func(ctx context.Context) error {
		return b.hub.SetPresence(ctx, presence, reason)
	}, func(err error) {
		if err != nil {
			b.logger.Error().
				Err(&domain.AdapterError{Op: "setPresence", Err: err}).
				Str("presence", presence).
				Msg("Failed to set hub presence")
		}
	})
}

// OnChannelHubPresenceChanged propagates a hub presence change to the call
// platform. Changes whose origin is this bridge are its own echoes.
func (b *Bridge) OnChannelHubPresenceChanged(ctx context.Context, presence, reason, origin string) {
	defer b.guard("hub presence")

	if origin != "" && origin == b.identity {
		b.logger.Debug().Str("presence", presence).Msg("Ignoring own presence echo")
		return
	}
	if presence == "" {
		b.logger.Warn().Err(domain.Malformed("empty hub presence")).Msg("Dropping presence change")
		return
	}
	if reason == "" && b.reasonExpected(presence) {
		b.logger.Warn().
			Err(domain.Malformed("hub presence %q without reason", presence)).
			Msg("Dropping presence change")
		return
	}
	value := hub.JoinPresence(presence, reason)
	if value == b.lastHub {
		return
	}
	b.lastHub = value

	target, ok := b.lookupHub(presence, reason)
	if !ok {
		b.logger.Warn().
			Err(domain.ErrUnknownPresence).
			Str("presence", presence).
			Str("reason", reason).
			Msg("Hub presence has no call platform mapping")
		return
	}
	if target == b.lastCallPlatform {
		return
	}
	b.lastCallPlatform = target

	b.logger.Info().
		Str("presence", presence).
		Str("reason", reason).
		Str("call_platform_presence", target).
		Msg("Setting call platform presence")

	eventloop.Exec(b.platformLane, ctx, func(ctx context.Context) error {
		return b.platform.SetPresence(ctx, target)
	}, func(err error) {
		if err != nil {
			b.logger.Error().
				Err(&domain.AdapterError{Op: "setState", Err: err}).
				Str("call_platform_presence", target).
				Msg("Failed to set call platform presence")
			return
		}
		b.confirmHub(ctx, presence, reason)
	})
}

// confirmHub echoes an applied hub presence back so the hub records the
// reason alongside it.
func (b *Bridge) confirmHub(ctx context.Context, presence, reason string) {
	eventloop.Exec(b.hubLane, ctx, func(ctx context.Context) error {
		return b.hub.SetPresence(ctx, presence, reason)
	}, func(err error) {
		if err != nil {
			b.logger.Error().
				Err(&domain.AdapterError{Op: "setPresence", Err: err}).
				Str("presence", presence).
				Msg("Failed to confirm hub presence")
		}
	})
}

func (b *Bridge) lookupHub(presence, reason string) (string, bool) {
	if reason != "" {
		if target, ok := b.tables.HubToCallPlatform[hub.JoinPresence(presence, reason)]; ok {
			return target, true
		}
	}
	target, ok := b.tables.HubToCallPlatform[presence]
	return target, ok
}

// reasonExpected reports whether presence is only mapped as presence|reason.
func (b *Bridge) reasonExpected(presence string) bool {
	if _, ok := b.tables.HubToCallPlatform[presence]; ok {
		return false
	}
	prefix := presence + "|"
	for key := range b.tables.HubToCallPlatform {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (b *Bridge) guard(where string) {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		if !errors.Is(err, domain.ErrMalformedContact) {
			err = domain.Malformed("%v", err)
		}
		b.logger.Error().Err(err).Str("source", where).Msg("Recovered panic in presence bridge")
	}
}

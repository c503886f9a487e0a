// Package operations builds the call-control commands offered to the operator.
// Each handler posts its work onto the event loop and calls exactly one
// call-control method.
package operations

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/hub"
)

// Operation names as presented to the operator.
const (
	NameAnswer          = "Answer"
	NameHangup          = "Hang Up"
	NameHold            = "Hold"
	NameResume          = "Resume"
	NameBlindTransfer   = "Blind Transfer"
	NameWarmTransfer    = "Warm Transfer"
	NameConference      = "Conference"
	NameProcessTransfer = "Join and drop"
)

// Icon file names, relative to the configured icon pack.
const (
	IconAnswer          = "voice_alerting_answer_normal.gif"
	IconHangup          = "voice_end_normal.png"
	IconHold            = "voice_hold_normal.png"
	IconResume          = "voice_unhold_normal.png"
	IconBlindTransfer   = "voice_blindtransfer_normal.png"
	IconWarmTransfer    = "voice_warmtransfer_normal.png"
	IconConference      = "voice_conference_normal.png"
	IconProcessTransfer = "voice_check_normal.png"
)

// CallControl is the call-platform surface operation handlers drive. Methods
// are invoked on the event loop and report failures through logging.
type CallControl interface {
	AnswerCall(ctx context.Context, contactID string)
	EndCall(ctx context.Context, contactID, connectionID string)
	HoldCall(ctx context.Context, contactID string)
	ResumeCall(ctx context.Context, contactID string)
	ColdTransfer(ctx context.Context, target string)
	WarmTransfer(ctx context.Context, target string, kind domain.TransferKind)
	ConferenceCall(ctx context.Context, contactID string)
	CompleteWarmTransfer(ctx context.Context)
}

// ContextualRequester asks the hub for a transfer or conference target.
type ContextualRequester interface {
	ContextualOperation(ctx context.Context, op hub.ContextualOperationType, channel hub.ChannelType) (hub.ContextualContact, error)
}

type Builder struct {
	iconPack string
	calls    CallControl
	hub      ContextualRequester
	loop     *eventloop.Loop
	logger   zerolog.Logger
}

var _ domain.OperationBuilder = (*Builder)(nil)

func NewBuilder(iconPack string, calls CallControl, requester ContextualRequester, loop *eventloop.Loop, logger zerolog.Logger) *Builder {
	return &Builder{
		iconPack: iconPack,
		calls:    calls,
		hub:      requester,
		loop:     loop,
		logger:   logger.With().Str("component", "operations").Logger(),
	}
}

func (b *Builder) icon(name string) string {
	return b.iconPack + name
}

// onLoop detaches fn from the caller's cancellation and runs it on the loop.
func (b *Builder) onLoop(name, contactID string, fn func(ctx context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		ctx = context.WithoutCancel(ctx)
		b.logger.Debug().
			Str("operation", name).
			Str("contact_id", contactID).
			Msg("Operation triggered")

		if !b.loop.Post(func() { fn(ctx) }) {
			b.logger.Warn().
				Str("operation", name).
				Str("contact_id", contactID).
				Msg("Operation dropped, event loop stopped")
		}
	}
}

func (b *Builder) Answer(contactID string) domain.Operation {
	return domain.Operation{
		Name:  NameAnswer,
		Title: NameAnswer,
		Icon:  b.icon(IconAnswer),
		Handler: b.onLoop(NameAnswer, contactID, func(ctx context.Context) {
			b.calls.AnswerCall(ctx, contactID)
		}),
	}
}

func (b *Builder) Hangup(contactID, connectionID string) domain.Operation {
	return domain.Operation{
		Name:  NameHangup,
		Title: NameHangup,
		Icon:  b.icon(IconHangup),
		Handler: b.onLoop(NameHangup, contactID, func(ctx context.Context) {
			b.calls.EndCall(ctx, contactID, connectionID)
		}),
	}
}

// DisabledEndCall is the per-party hang up shown inside a conference. It is
// rendered disabled but still ends the party's connection when invoked.
func (b *Builder) DisabledEndCall(contactID, connectionID string) domain.Operation {
	op := b.Hangup(contactID, connectionID)
	op.Disabled = true
	return op
}

func (b *Builder) Hold(contactID string) domain.Operation {
	return domain.Operation{
		Name:  NameHold,
		Title: NameHold,
		Icon:  b.icon(IconHold),
		Handler: b.onLoop(NameHold, contactID, func(ctx context.Context) {
			b.calls.HoldCall(ctx, contactID)
		}),
	}
}

func (b *Builder) Resume(contactID string) domain.Operation {
	return domain.Operation{
		Name:  NameResume,
		Title: NameResume,
		Icon:  b.icon(IconResume),
		Handler: b.onLoop(NameResume, contactID, func(ctx context.Context) {
			b.calls.ResumeCall(ctx, contactID)
		}),
	}
}

func (b *Builder) BlindTransfer() domain.Operation {
	return domain.Operation{
		Name:  NameBlindTransfer,
		Title: NameBlindTransfer,
		Icon:  b.icon(IconBlindTransfer),
		Handler: b.contextual(NameBlindTransfer, hub.OperationBlindTransfer, func(ctx context.Context, target string) {
			b.calls.ColdTransfer(ctx, target)
		}),
	}
}

func (b *Builder) WarmTransfer() domain.Operation {
	return domain.Operation{
		Name:  NameWarmTransfer,
		Title: NameWarmTransfer,
		Icon:  b.icon(IconWarmTransfer),
		Handler: b.contextual(NameWarmTransfer, hub.OperationWarmTransfer, func(ctx context.Context, target string) {
			b.calls.WarmTransfer(ctx, target, domain.TransferWarm)
		}),
	}
}

func (b *Builder) Conference() domain.Operation {
	return domain.Operation{
		Name:  NameConference,
		Title: NameConference,
		Icon:  b.icon(IconConference),
		Handler: b.contextual(NameConference, hub.OperationConference, func(ctx context.Context, target string) {
			b.calls.WarmTransfer(ctx, target, domain.TransferConference)
		}),
	}
}

// ProcessTransfer completes a consult leg: a warm transfer drops the agent,
// a conference consult joins everyone.
func (b *Builder) ProcessTransfer(contactID string, kind domain.TransferKind) domain.Operation {
	return domain.Operation{
		Name:  NameProcessTransfer,
		Title: string(kind),
		Icon:  b.icon(IconProcessTransfer),
		Handler: b.onLoop(NameProcessTransfer, contactID, func(ctx context.Context) {
			if kind == domain.TransferWarm {
				b.calls.CompleteWarmTransfer(ctx)
				return
			}
			b.calls.ConferenceCall(ctx, contactID)
		}),
	}
}

// contextual asks the hub for a target and hands a non-empty target id to
// then on the loop. Failures and empty targets are logged and dropped.
func (b *Builder) contextual(name string, op hub.ContextualOperationType, then func(ctx context.Context, target string)) func(context.Context) {
	return func(ctx context.Context) {
		ctx = context.WithoutCancel(ctx)
		b.logger.Debug().Str("operation", name).Msg("Operation triggered")

		eventloop.Do(b.loop.Lane(hub.ContextualLane), ctx, func(ctx context.Context) (hub.ContextualContact, error) {
			return b.hub.ContextualOperation(ctx, op, hub.ChannelTelephony)
		}, func(contact hub.ContextualContact, err error) {
			if err != nil {
				b.logger.Error().Err(err).Str("operation", name).Msg("Contextual operation failed")
				return
			}
			target := contact.ContactID()
			if target == "" {
				b.logger.Warn().Str("operation", name).Msg("Contextual operation returned no target")
				return
			}
			then(ctx, target)
		})
	}
}

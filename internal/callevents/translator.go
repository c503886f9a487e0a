package callevents

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/hub"
)

// PresenceSink receives agent state names from the call platform.
type PresenceSink interface {
	OnCallPlatformPresenceChanged(ctx context.Context, value string)
}

// ChannelAnnouncer tells the hub which channels and operations the agent has.
type ChannelAnnouncer interface {
	SetSupportedChannels(ctx context.Context, channels []hub.SupportedChannel) error
}

// Translator subscribes to the call platform and turns agent and contact
// callbacks into presence updates and call actions. Every callback is posted
// onto the event loop, and every entry point recovers from malformed handles.
type Translator struct {
	controller *Controller
	presence   PresenceSink
	channels   ChannelAnnouncer
	emitter    *Emitter
	loop       *eventloop.Loop
	logger     zerolog.Logger
}

func NewTranslator(controller *Controller, presence PresenceSink, channels ChannelAnnouncer, emitter *Emitter, loop *eventloop.Loop, logger zerolog.Logger) *Translator {
	return &Translator{
		controller: controller,
		presence:   presence,
		channels:   channels,
		emitter:    emitter,
		loop:       loop,
		logger:     logger.With().Str("component", "translator").Logger(),
	}
}

// Subscribe registers agent and contact callbacks on platform.
func (t *Translator) Subscribe(ctx context.Context, platform callplatform.Platform) {
	platform.SubscribeAgent(func(agent callplatform.Agent) {
		t.post("agent", func() { t.HandleAgent(ctx, agent) })
	})
	platform.SubscribeContact(func(contact callplatform.Contact) {
		t.post("contact", func() { t.HandleContact(ctx, contact) })
	})
}

func (t *Translator) post(source string, fn func()) {
	if !t.loop.Post(func() {
		defer t.guard(source)
		fn()
	}) {
		t.logger.Debug().Str("source", source).Msg("Dropped callback, event loop stopped")
	}
}

// HandleAgent records the agent, loads transfer endpoints, announces the
// telephony channel and feeds agent state into the presence bridge.
func (t *Translator) HandleAgent(ctx context.Context, agent callplatform.Agent) {
	defer t.guard("agent")

	username := agent.Username()
	t.logger.Info().Str("agent", username).Msg("Agent subscribed")
	t.controller.SetAgent(agent)

	channels := []hub.SupportedChannel{{
		ChannelType: hub.ChannelTelephony,
		IDName:      "Agent",
		ID:          username,
		ValidOperations: []hub.ContextualOperationType{
			hub.OperationBlindTransfer,
			hub.OperationConference,
			hub.OperationConsult,
			hub.OperationWarmTransfer,
		},
		ValidPresences: []string{"Ready"},
	}}
	eventloop.Exec(t.loop.Lane(hub.Lane), ctx, func(ctx context.Context) error {
		return t.channels.SetSupportedChannels(ctx, channels)
	}, func(err error) {
		if err != nil {
			t.logger.Error().Err(err).Msg("Failed to set supported channels")
		}
	})

	arns := agent.AllQueueARNs()
	eventloop.Do(t.loop.Lane(callplatform.Lane), ctx, func(ctx context.Context) ([]callplatform.Endpoint, error) {
		return agent.Endpoints(ctx, arns)
	}, func(endpoints []callplatform.Endpoint, err error) {
		if err != nil {
			t.logger.Error().
				Err(&domain.AdapterError{Op: "getEndpoints", Err: err}).
				Msg("Failed getting transfer endpoints")
			return
		}
		t.controller.SetEndpoints(endpoints)
		t.logger.Debug().Int("endpoints", len(endpoints)).Msg("Transfer endpoints loaded")
	})

	t.presence.OnCallPlatformPresenceChanged(ctx, agent.State().Name)
	agent.OnStateChange(func(change callplatform.StateChange) {
		t.post("agent state", func() {
			t.presence.OnCallPlatformPresenceChanged(ctx, change.NewState)
		})
	})
}

// HandleContact starts tracking a new softphone voice contact and emits its
// ringing action.
func (t *Translator) HandleContact(ctx context.Context, contact callplatform.Contact) {
	defer t.guard("contact")

	contactID := contact.ID()
	status := contact.Status()
	t.logger.Debug().
		Str("contact_id", contactID).
		Str("type", string(contact.Type())).
		Str("status", string(status)).
		Bool("softphone", contact.IsSoftphoneCall()).
		Bool("inbound", contact.IsInbound()).
		Msg("New contact")

	if !contact.IsSoftphoneCall() || contact.Type() != callplatform.ContactVoice || status == callplatform.ContactError {
		return
	}

	conns := contact.Connections()
	if status == callplatform.ContactEnded {
		for _, conn := range conns {
			t.controller.run(ctx, "destroyConnection", contactID, conn.Destroy, nil)
		}
		return
	}

	number, err := customerNumber(conns)
	if err != nil {
		t.logger.Warn().Err(err).Str("contact_id", contactID).Msg("Ignoring contact")
		return
	}

	contact.OnEnded(func() {
		t.post("contact ended", func() { t.onEnded(contact) })
	})

	direction := domain.DirectionOf(contact.IsInbound())
	// Inbound actions carry no connections, so Hang Up ends the whole
	// contact. Outbound actions carry the dialed leg so Hang Up targets it.
	var legs []domain.ConnectionSnapshot
	if direction == domain.DirectionOutbound {
		t.controller.outboundCall = contactID
		legs = []domain.ConnectionSnapshot{{ConnectionID: conns[1].ID()}}
	}

	t.emitter.Emit(domain.Action{
		Type:          domain.ActionRinging,
		CorrelationID: contactID,
		PhoneNumber:   number,
		Direction:     direction,
		Connections:   legs,
	})

	contact.OnConnected(func() {
		t.post("contact connected", func() {
			if t.controller.outboundCall == contactID {
				t.controller.outboundCall = ""
			}
			t.emitter.Emit(domain.Action{
				Type:          domain.ActionAnswered,
				CorrelationID: contactID,
				PhoneNumber:   number,
				Direction:     direction,
				Connections:   legs,
			})
		})
	})
}

func (t *Translator) onEnded(contact callplatform.Contact) {
	number := ""
	if remote := RemoteSnapshots(contact.Connections()); len(remote) > 0 {
		number = remote[0].PhoneNumber
	}

	t.emitter.Emit(domain.Action{
		Type:          domain.ActionCompleted,
		CorrelationID: contact.ID(),
		PhoneNumber:   number,
		Direction:     domain.DirectionOf(contact.IsInbound()),
	})
	t.controller.forget(contact)
}

func (t *Translator) guard(source string) {
	if r := recover(); r != nil {
		t.logger.Error().
			Err(domain.Malformed("%v", r)).
			Str("source", source).
			Msg("Recovered panic while reading call platform handle")
	}
}

// Dial places an outbound call for a click-to-dial or contextual control
// request from the hub. It must be called on the event loop.
func (t *Translator) Dial(ctx context.Context, number string) {
	defer t.guard("dial")

	if number == "" {
		t.logger.Warn().Err(domain.Malformed("empty dial target")).Msg("Ignoring dial request")
		return
	}
	t.controller.MakeOutboundCall(ctx, number)
}

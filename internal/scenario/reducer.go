package scenario

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/phone"
)

var errNoBuilder = errors.New("action carries no operation builder")

// Reducer applies actions to a scenario list. Reduce never mutates its input
// and depends on nothing but its arguments: every timestamp comes from the
// action.
type Reducer struct {
	logger zerolog.Logger
}

func NewReducer(logger zerolog.Logger) *Reducer {
	return &Reducer{logger: logger.With().Str("component", "reducer").Logger()}
}

// Reduce returns the scenarios that result from applying a. A transition that
// fails is logged and the prior list is returned unchanged.
func (r *Reducer) Reduce(scenarios []Scenario, a domain.Action) (next []Scenario) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Err(&domain.TransitionError{Action: a.Type, ID: a.CorrelationID, Err: fmt.Errorf("panic: %v", rec)}).
				Msg("Reducer transition panicked")
			next = scenarios
		}
	}()

	out, err := r.apply(scenarios, a)
	if err != nil {
		r.logger.Error().
			Err(&domain.TransitionError{Action: a.Type, ID: a.CorrelationID, Err: err}).
			Str("correlation_id", a.CorrelationID).
			Msg("Reducer transition failed")
		return scenarios
	}
	return out
}

func (r *Reducer) apply(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	switch a.Type {
	case domain.ActionRinging:
		return ringing(scenarios, a)
	case domain.ActionAnswered, domain.ActionResume:
		return connected(scenarios, a)
	case domain.ActionHold:
		return held(scenarios, a)
	case domain.ActionCompleted:
		return removed(scenarios, a), nil
	case domain.ActionCompletedTransfer:
		return []Scenario{}, nil
	case domain.ActionConference, domain.ActionWarmTransfer:
		return transfer(scenarios, a)
	case domain.ActionCompletedConference:
		return conference(a)
	case domain.ActionConferencePartyLeft:
		return partyLeft(scenarios, a)
	case domain.ActionNoop:
		return scenarios, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
}

func ringing(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	// a second ringing for a live call must not duplicate it
	if _, _, ok := Find(scenarios, a.CorrelationID); ok {
		return scenarios, nil
	}

	var ops []domain.Operation
	if a.Direction == domain.DirectionOutbound {
		ops = []domain.Operation{a.Operations.Hangup(a.CorrelationID, "")}
	} else {
		ops = []domain.Operation{a.Operations.Answer(a.CorrelationID)}
	}

	interaction := newInteraction(a, IconStatusRinging, StatusRinging, string(a.Direction), ops)
	return appendScenario(scenarios, Scenario{Interactions: []Interaction{interaction}}), nil
}

func connected(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	return update(scenarios, a, func(i *Interaction) {
		i.UIHeaders.StatusText = StatusOnCall
		i.UIHeaders.StatusURL = a.IconPack + IconStatusOnCall
		i.UIHeaders.DisplayHoldCounter = false
		i.Operations = fullOperations(a)

		if counter := i.UIHeaders.HoldCounter; counter != nil && counter.CurrentHoldStart != nil {
			counter.PastDurations = append(counter.PastDurations, HoldInterval{
				Start: *counter.CurrentHoldStart,
				End:   a.OccurredAt,
			})
			counter.CurrentHoldStart = nil
		}
	})
}

func held(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	return update(scenarios, a, func(i *Interaction) {
		i.UIHeaders.StatusText = StatusOnHold
		i.UIHeaders.StatusURL = a.IconPack + IconStatusOnHold
		i.UIHeaders.DisplayHoldCounter = true
		i.Operations = []domain.Operation{
			a.Operations.Resume(a.CorrelationID),
			a.Operations.BlindTransfer(),
			a.Operations.WarmTransfer(),
			a.Operations.Conference(),
		}

		if i.UIHeaders.HoldCounter == nil {
			i.UIHeaders.HoldCounter = &HoldCounter{PastDurations: []HoldInterval{}}
		}
		if i.UIHeaders.HoldCounter.CurrentHoldStart == nil {
			start := a.OccurredAt
			i.UIHeaders.HoldCounter.CurrentHoldStart = &start
		}
	})
}

func removed(scenarios []Scenario, a domain.Action) []Scenario {
	out := make([]Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		if s.ID() != a.CorrelationID {
			out = append(out, s)
		}
	}
	return out
}

func transfer(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	// consult leg already shown
	if _, _, ok := Find(scenarios, a.CorrelationID); ok {
		return scenarios, nil
	}

	kind := domain.TransferWarm
	if a.Type == domain.ActionConference {
		kind = domain.TransferConference
	}
	ops := []domain.Operation{a.Operations.ProcessTransfer(a.CorrelationID, kind)}

	interaction := newInteraction(a, IconStatusOnCall, StatusOnCall, string(kind), ops)
	return appendScenario(scenarios, Scenario{Interactions: []Interaction{interaction}}), nil
}

// conference replaces every scenario with one multi-party scenario.
func conference(a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	return []Scenario{{Interactions: []Interaction{multiParty(a)}}}, nil
}

func partyLeft(scenarios []Scenario, a domain.Action) ([]Scenario, error) {
	if a.Operations == nil {
		return nil, errNoBuilder
	}
	existing, _, ok := Find(scenarios, a.CorrelationID)
	if !ok {
		return scenarios, nil
	}

	var interaction Interaction
	switch {
	case len(a.Connections) > 1:
		interaction = multiParty(a)
	case len(a.Connections) == 1 && onHold(a.Connections[0]):
		interaction = existing.Interactions[0].clone()
	default:
		interaction = newInteraction(a, IconStatusOnCall, StatusOnCall, string(a.Direction), fullOperations(a))
	}

	return []Scenario{{Interactions: []Interaction{interaction}}}, nil
}

func onHold(conn domain.ConnectionSnapshot) bool {
	return conn.Status == string(callplatform.ConnectionHold)
}

func multiParty(a domain.Action) Interaction {
	parties := make([]Party, 0, len(a.Connections))
	for _, conn := range a.Connections {
		parties = append(parties, Party{
			ConnectionID: conn.ConnectionID,
			Header: Header{
				Value:   phone.Display(conn.PhoneNumber),
				Tooltip: TooltipPhone,
				Image:   a.IconPack + IconPhoneNumber,
			},
			StartTime:  a.OccurredAt,
			Operations: []domain.Operation{a.Operations.DisabledEndCall(a.CorrelationID, conn.ConnectionID)},
		})
	}

	interaction := newInteraction(a, IconStatusOnCall, StatusOnCall, DirectionConference,
		[]domain.Operation{a.Operations.Hangup(a.CorrelationID, "")})
	interaction.Subheader.Value = ""
	interaction.Parties = parties
	return interaction
}

func fullOperations(a domain.Action) []domain.Operation {
	return []domain.Operation{
		a.Operations.Hangup(a.CorrelationID, a.FirstConnectionID()),
		a.Operations.Hold(a.CorrelationID),
		a.Operations.BlindTransfer(),
		a.Operations.WarmTransfer(),
		a.Operations.Conference(),
	}
}

func newInteraction(a domain.Action, statusIcon, status, direction string, ops []domain.Operation) Interaction {
	return Interaction{
		InteractionID: a.CorrelationID,
		Subheader: Header{
			Value:   phone.Display(a.PhoneNumber),
			Tooltip: TooltipTelephony,
			Image:   a.IconPack + IconPhoneNumber,
		},
		StartTime:        a.OccurredAt,
		DisplayCallTimer: true,
		Operations:       ops,
		UIHeaders: UIHeaders{
			MinimizeURL:   a.IconPack + IconMinimize,
			MaximizeURL:   a.IconPack + IconMaximize,
			StatusURL:     a.IconPack + statusIcon,
			StatusText:    status,
			DirectionText: direction,
		},
	}
}

// update copies the list, replaces the matching scenario's first interaction
// with a modified clone and leaves every other scenario shared.
func update(scenarios []Scenario, a domain.Action, fn func(*Interaction)) ([]Scenario, error) {
	existing, n, ok := Find(scenarios, a.CorrelationID)
	if !ok {
		return nil, domain.ErrScenarioNotFound
	}

	changed := existing.clone()
	fn(&changed.Interactions[0])

	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	out[n] = changed
	return out, nil
}

func appendScenario(scenarios []Scenario, s Scenario) []Scenario {
	out := make([]Scenario, len(scenarios), len(scenarios)+1)
	copy(out, scenarios)
	return append(out, s)
}

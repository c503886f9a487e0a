// Package scenario folds call actions into the list of scenarios shown to the
// operator, one per active call.
package scenario

import (
	"time"

	"github.com/amctechnology/AmazonConnect/internal/domain"
)

// Display strings and icon file names.
const (
	StatusRinging = "Ringing"
	StatusOnCall  = "On Call"
	StatusOnHold  = "On Hold"

	DirectionConference = "Conference"

	TooltipTelephony = "Telephony"
	TooltipPhone     = "Phone"

	IconStatusRinging = "Status_Ringing.png"
	IconStatusOnCall  = "Status_OnCall.png"
	IconStatusOnHold  = "Status_OnHold.png"
	IconPhoneNumber   = "Phone_Number_Icon.png"
	IconMinimize      = "section_collapse.png"
	IconMaximize      = "section_expand.png"
)

type Header struct {
	Value   string `json:"value"`
	Tooltip string `json:"tooltip"`
	Image   string `json:"image"`
}

// Party is one remote leg of a conference.
type Party struct {
	ConnectionID string             `json:"connectionId"`
	Header       Header             `json:"header"`
	StartTime    time.Time          `json:"startTime"`
	Operations   []domain.Operation `json:"operations"`
}

type HoldInterval struct {
	Start time.Time `json:"startTime"`
	End   time.Time `json:"endTime"`
}

// HoldCounter tracks time spent on hold. CurrentHoldStart is nil while the
// call is not held.
type HoldCounter struct {
	CurrentHoldStart *time.Time     `json:"currentHoldStartTime,omitempty"`
	PastDurations    []HoldInterval `json:"pastCallDurations"`
}

type UIHeaders struct {
	MinimizeURL        string       `json:"minimizeUrl"`
	MaximizeURL        string       `json:"maximizeUrl"`
	StatusURL          string       `json:"statusUrl"`
	StatusText         string       `json:"statusText"`
	DirectionText      string       `json:"directionText"`
	DisplayHoldCounter bool         `json:"displayHoldCounter"`
	HoldCounter        *HoldCounter `json:"holdCounterData,omitempty"`
}

type Interaction struct {
	InteractionID    string             `json:"interactionId"`
	Subheader        Header             `json:"subheaderData"`
	Parties          []Party            `json:"parties,omitempty"`
	StartTime        time.Time          `json:"startTime"`
	DisplayCallTimer bool               `json:"displayCallTimer"`
	Operations       []domain.Operation `json:"operations"`
	UIHeaders        UIHeaders          `json:"UIHeadersData"`
}

// Scenario is one engagement surfaced to the operator. It holds a single
// interaction in practice.
type Scenario struct {
	Interactions []Interaction `json:"interactions"`
}

// ID returns the id of the first interaction, or "" for an empty scenario.
func (s Scenario) ID() string {
	if len(s.Interactions) == 0 {
		return ""
	}
	return s.Interactions[0].InteractionID
}

func (s Scenario) clone() Scenario {
	out := Scenario{Interactions: make([]Interaction, len(s.Interactions))}
	for i, interaction := range s.Interactions {
		out.Interactions[i] = interaction.clone()
	}
	return out
}

func (i Interaction) clone() Interaction {
	out := i
	out.Operations = append([]domain.Operation(nil), i.Operations...)
	if i.Parties != nil {
		out.Parties = make([]Party, len(i.Parties))
		for n, p := range i.Parties {
			p.Operations = append([]domain.Operation(nil), p.Operations...)
			out.Parties[n] = p
		}
	}
	if i.UIHeaders.HoldCounter != nil {
		counter := HoldCounter{
			PastDurations: append([]HoldInterval(nil), i.UIHeaders.HoldCounter.PastDurations...),
		}
		if start := i.UIHeaders.HoldCounter.CurrentHoldStart; start != nil {
			t := *start
			counter.CurrentHoldStart = &t
		}
		out.UIHeaders.HoldCounter = &counter
	}
	return out
}

// Find returns the first scenario whose id is id.
func Find(scenarios []Scenario, id string) (Scenario, int, bool) {
	for n, s := range scenarios {
		if len(s.Interactions) > 0 && s.Interactions[0].InteractionID == id {
			return s, n, true
		}
	}
	return Scenario{}, -1, false
}

// FindOperation looks up the operation named name on interaction id. A
// non-empty connectionID selects a conference party's operation instead.
func FindOperation(scenarios []Scenario, id, name, connectionID string) (domain.Operation, bool) {
	s, _, ok := Find(scenarios, id)
	if !ok {
		return domain.Operation{}, false
	}

	interaction := s.Interactions[0]
	if connectionID != "" {
		for _, party := range interaction.Parties {
			if party.ConnectionID != connectionID {
				continue
			}
			for _, op := range party.Operations {
				if op.Name == name {
					return op, true
				}
			}
		}
		return domain.Operation{}, false
	}

	for _, op := range interaction.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return domain.Operation{}, false
}

// Package poller detects parties dropping out of a conference by comparing
// per-contact connection counts between ticks.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/callevents"
	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
)

const DefaultInterval = 500 * time.Millisecond

type ContactSource interface {
	Contacts() []callplatform.Contact
}

type Emitter interface {
	Emit(a domain.Action)
}

// Poller posts a tick onto the event loop every interval. A tick that is due
// while the previous one is still queued or running is skipped.
type Poller struct {
	source   ContactSource
	emitter  Emitter
	loop     *eventloop.Loop
	interval time.Duration
	logger   zerolog.Logger

	busy atomic.Bool

	// owned by the loop
	snapshot map[string]int
}

func New(source ContactSource, emitter Emitter, loop *eventloop.Loop, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		emitter:  emitter,
		loop:     loop,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
		snapshot: make(map[string]int),
	}
}

// Run schedules ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug().Dur("interval", p.interval).Msg("Conference poller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.schedule()
		}
	}
}

func (p *Poller) schedule() {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("Previous tick still pending, skipping")
		return
	}
	if !p.loop.Post(func() {
		defer p.busy.Store(false)
		p.Tick()
	}) {
		p.busy.Store(false)
	}
}

// Tick compares the current connection counts with the previous tick and
// emits a party-left action for every contact whose count dropped. It runs
// on the event loop.
func (p *Poller) Tick() {
	next := make(map[string]int)
	for _, contact := range p.source.Contacts() {
		p.inspect(contact, next)
	}
	p.snapshot = next
}

func (p *Poller) inspect(contact callplatform.Contact, next map[string]int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Err(domain.Malformed("%v", r)).
				Msg("Recovered panic while polling contact")
		}
	}()

	id := contact.ID()
	live := make([]callplatform.Connection, 0, 4)
	for _, conn := range contact.Connections() {
		if conn.Status() != callplatform.ConnectionDisconnected {
			live = append(live, conn)
		}
	}
	next[id] = len(live)

	prev, seen := p.snapshot[id]
	if !seen || prev <= len(live) {
		return
	}

	remote := callevents.RemoteSnapshots(live)
	p.logger.Info().
		Str("contact_id", id).
		Int("previous", prev).
		Int("current", len(live)).
		Int("remaining_parties", len(remote)).
		Msg("Conference party left")

	if len(remote) == 0 {
		return
	}

	p.emitter.Emit(domain.Action{
		Type:          domain.ActionConferencePartyLeft,
		CorrelationID: id,
		PhoneNumber:   remote[0].PhoneNumber,
		Direction:     domain.DirectionOf(contact.IsInbound()),
		Connections:   remote,
	})
}

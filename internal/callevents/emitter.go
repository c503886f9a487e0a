// Package callevents turns call platform callbacks and operator commands into
// call actions, and carries out the call-control commands operations invoke.
package callevents

import (
	"time"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/domain"
)

// Emitter completes actions with the operation builder, icon pack and time,
// then hands them to dispatch. It is used on the event loop only.
type Emitter struct {
	iconPack string
	ops      domain.OperationBuilder
	dispatch func(domain.Action)
	now      func() time.Time
}

func NewEmitter(iconPack string, dispatch func(domain.Action)) *Emitter {
	return &Emitter{
		iconPack: iconPack,
		dispatch: dispatch,
		now:      time.Now,
	}
}

// SetOperations binds the builder actions carry. It is set once during wiring,
// after the builder that depends on the controller exists.
func (e *Emitter) SetOperations(ops domain.OperationBuilder) {
	e.ops = ops
}

func (e *Emitter) Emit(a domain.Action) {
	a.Operations = e.ops
	a.IconPack = e.iconPack
	if a.OccurredAt.IsZero() {
		a.OccurredAt = e.now()
	}
	e.dispatch(a)
}

// Snapshot copies the parts of a connection leg an action carries.
func Snapshot(conn callplatform.Connection) domain.ConnectionSnapshot {
	snap := domain.ConnectionSnapshot{
		ConnectionID: conn.ID(),
		Status:       string(conn.Status()),
	}
	if ep := conn.Endpoint(); ep != nil {
		snap.PhoneNumber = ep.StripPhoneNumber()
	}
	return snap
}

// RemoteSnapshots returns snapshots of every leg whose endpoint is known and
// is not the agent.
func RemoteSnapshots(conns []callplatform.Connection) []domain.ConnectionSnapshot {
	out := make([]domain.ConnectionSnapshot, 0, len(conns))
	for _, conn := range conns {
		ep := conn.Endpoint()
		if ep == nil || ep.Type == callplatform.EndpointAgent {
			continue
		}
		out = append(out, Snapshot(conn))
	}
	return out
}

// customerNumber returns the stripped number of the second leg; the first is
// always the agent.
func customerNumber(conns []callplatform.Connection) (string, error) {
	if len(conns) < 2 {
		return "", domain.Malformed("contact has %d connections", len(conns))
	}
	ep := conns[1].Endpoint()
	if ep == nil {
		return "", domain.Malformed("connection %s has no endpoint", conns[1].ID())
	}
	return ep.StripPhoneNumber(), nil
}

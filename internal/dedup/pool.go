// Package dedup tracks connection ids that have already been credited with a
// transfer or conference outcome, so repeated refresh callbacks for the same
// consult leg produce at most one action.
package dedup

// Observation is the result of feeding one refresh into the pool.
type Observation int

const (
	// Ignored means nothing changed.
	Ignored Observation = iota
	// Emit means the connection was seen connected for the first time and the
	// caller must emit exactly one outcome action.
	Emit
	// Suppressed means the connection is still connected and already pending.
	Suppressed
	// Cleared means the connection went inactive and its entry was dropped.
	Cleared
)

func (o Observation) String() string {
	switch o {
	case Emit:
		return "emit"
	case Suppressed:
		return "suppressed"
	case Cleared:
		return "cleared"
	default:
		return "ignored"
	}
}

// Pool is owned by the event loop and is not safe for concurrent use.
type Pool struct {
	pending map[string]struct{}
}

func NewPool() *Pool {
	return &Pool{pending: make(map[string]struct{})}
}

func (p *Pool) MarkPending(connectionID string) {
	p.pending[connectionID] = struct{}{}
}

func (p *Pool) IsPending(connectionID string) bool {
	_, ok := p.pending[connectionID]
	return ok
}

func (p *Pool) Clear(connectionID string) {
	delete(p.pending, connectionID)
}

func (p *Pool) Len() int {
	return len(p.pending)
}

// Observe applies one refresh of a consult connection.
func (p *Pool) Observe(connectionID string, connected, active bool) Observation {
	if connectionID == "" {
		return Ignored
	}
	pending := p.IsPending(connectionID)
	switch {
	case connected && !pending:
		p.MarkPending(connectionID)
		return Emit
	case connected && pending:
		return Suppressed
	case !active && pending:
		p.Clear(connectionID)
		return Cleared
	default:
		return Ignored
	}
}

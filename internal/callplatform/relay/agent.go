package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/amctechnology/AmazonConnect/internal/callplatform"
)

type Agent struct {
	platform *Platform
	username string

	mu        sync.Mutex
	state     callplatform.AgentState
	states    []callplatform.AgentState
	queueARNs []string
	onChange  []func(callplatform.StateChange)
}

var _ callplatform.Agent = (*Agent)(nil)

func newAgent(p *Platform, snap AgentSnapshot) *Agent {
	return &Agent{
		platform:  p,
		username:  snap.Username,
		state:     snap.State,
		states:    append([]callplatform.AgentState(nil), snap.States...),
		queueARNs: append([]string(nil), snap.QueueARNs...),
	}
}

// apply folds a refresh snapshot into the agent and notifies state handlers
// when the state name changed.
func (a *Agent) apply(snap AgentSnapshot) {
	a.mu.Lock()
	old := a.state
	a.state = snap.State
	if len(snap.States) > 0 {
		a.states = append([]callplatform.AgentState(nil), snap.States...)
	}
	if snap.QueueARNs != nil {
		a.queueARNs = append([]string(nil), snap.QueueARNs...)
	}
	var handlers []func(callplatform.StateChange)
	if old.Name != snap.State.Name {
		handlers = append(handlers, a.onChange...)
	}
	a.mu.Unlock()

	change := callplatform.StateChange{OldState: old.Name, NewState: snap.State.Name}
	for _, fn := range handlers {
		fn(change)
	}
}

func (a *Agent) Username() string { return a.username }

func (a *Agent) State() callplatform.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) States() []callplatform.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]callplatform.AgentState(nil), a.states...)
}

func (a *Agent) OnStateChange(fn func(callplatform.StateChange)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = append(a.onChange, fn)
}

func (a *Agent) Contacts() []callplatform.Contact {
	return a.platform.liveContacts()
}

func (a *Agent) AllQueueARNs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queueARNs...)
}

func (a *Agent) Endpoints(ctx context.Context, queueARNs []string) ([]callplatform.Endpoint, error) {
	var resp EndpointsResponse
	if err := a.platform.transport.Request(ctx, CmdAgentEndpoints, EndpointsRequest{QueueARNs: queueARNs}, &resp); err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return resp.Endpoints, nil
}

func (a *Agent) SetState(ctx context.Context, state callplatform.AgentState) error {
	if err := a.platform.transport.Request(ctx, CmdAgentSetState, SetStateRequest{State: state}, nil); err != nil {
		return fmt.Errorf("set agent state %q: %w", state.Name, err)
	}
	return nil
}

func (a *Agent) Connect(ctx context.Context, endpoint callplatform.Endpoint) error {
	if err := a.platform.transport.Request(ctx, CmdAgentConnect, EndpointRequest{Endpoint: endpoint}, nil); err != nil {
		return fmt.Errorf("connect to %s: %w", endpoint.PhoneNumber, err)
	}
	return nil
}

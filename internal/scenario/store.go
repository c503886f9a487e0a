package scenario

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/domain"
)

// Effect runs after an action has been reduced. It receives the action and
// the scenario list that resulted from it.
type Effect func(a domain.Action, scenarios []Scenario)

// Store owns the scenario list. Dispatch must be called on the event loop;
// Snapshot may be called from anywhere.
type Store struct {
	reducer *Reducer
	logger  zerolog.Logger
	now     func() time.Time

	scenarios []Scenario
	effects   []Effect

	mu       sync.RWMutex
	snapshot []Scenario
}

func NewStore(reducer *Reducer, logger zerolog.Logger) *Store {
	return &Store{
		reducer:   reducer,
		logger:    logger.With().Str("component", "scenarios").Logger(),
		now:       time.Now,
		scenarios: []Scenario{},
		snapshot:  []Scenario{},
	}
}

// AddEffect registers fn to run after every dispatched action.
func (s *Store) AddEffect(fn Effect) {
	s.effects = append(s.effects, fn)
}

// Dispatch reduces a into the owned list, publishes the new snapshot and runs
// effects. An action without a timestamp is stamped with the current time.
func (s *Store) Dispatch(a domain.Action) {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = s.now()
	}

	next := s.reducer.Reduce(s.scenarios, a)
	s.scenarios = next

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()

	s.logger.Debug().
		Str("action", string(a.Type)).
		Str("correlation_id", a.CorrelationID).
		Int("scenarios", len(next)).
		Msg("Action reduced")

	for _, effect := range s.effects {
		effect(a, next)
	}
}

// Snapshot returns the latest scenario list. Lists are never mutated after
// publication so callers may keep them.
func (s *Store) Snapshot() []Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Operation finds a bound operation in the latest snapshot.
func (s *Store) Operation(interactionID, name, connectionID string) (domain.Operation, bool) {
	return FindOperation(s.Snapshot(), interactionID, name, connectionID)
}

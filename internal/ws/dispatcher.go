package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(message Message) error
}

type MessageHandlerFunc func(message Message) error

func (f MessageHandlerFunc) Handle(message Message) error {
	return f(message)
}

// Dispatcher routes inbound messages to handlers by name. Handlers run on the
// reader goroutine in arrival order, so per-contact ordering from the peer is
// preserved; they are expected to hand work off quickly.
type Dispatcher struct {
	handlers map[string]MessageHandler
	mutex    sync.RWMutex
	logger   zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

func (d *Dispatcher) RegisterHandler(messageName string, handler MessageHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.handlers[messageName] = handler
	d.logger.Debug().Str("message_name", messageName).Msg("Registered message handler")
}

func (d *Dispatcher) Dispatch(message Message) {
	d.mutex.RLock()
	handler, exists := d.handlers[message.Name]
	d.mutex.RUnlock()

	if !exists {
		d.logger.Warn().
			Str("message_name", message.Name).
			Msg("No handler registered for message")
		return
	}

	if err := handler.Handle(message); err != nil {
		d.logger.Error().
			Err(err).
			Str("message_name", message.Name).
			Msg("Handler failed to process message")
	}
}

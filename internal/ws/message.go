package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reply message names used by the request/response convention.
const (
	NameSuccess = "success"
	NameError   = "error"
)

var (
	ErrNotConnected = errors.New("websocket not connected")
	ErrDisconnected = errors.New("websocket disconnected before reply")
)

type Message struct {
	Name  string          `json:"name"`
	RefID string          `json:"refId,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// NewMessage marshals body into a message envelope.
func NewMessage(name string, body interface{}) (Message, error) {
	msg := Message{Name: name}
	if body == nil {
		return msg, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s body: %w", name, err)
	}
	msg.Body = data
	return msg, nil
}

// Decode unmarshals the body into target. An empty body leaves target untouched.
func (m Message) Decode(target interface{}) error {
	if len(m.Body) == 0 || target == nil {
		return nil
	}
	if err := json.Unmarshal(m.Body, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s body: %w", m.Name, err)
	}
	return nil
}

func (m Message) isReply() bool {
	return m.RefID != "" && (m.Name == NameSuccess || m.Name == NameError)
}

type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// RemoteError is returned by Request when the peer answers with an error reply.
type RemoteError struct {
	Request string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s failed with code %d: %s", e.Request, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Request, e.Message)
}

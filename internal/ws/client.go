package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Client struct {
	url           string
	accessToken   string
	conn          *websocket.Conn
	dispatcher    *Dispatcher
	logger        zerolog.Logger
	reconnectChan chan struct{}
	mutex         sync.RWMutex
	writeMutex    sync.Mutex
	connected     bool
	ctx           context.Context
	cancel        context.CancelFunc
	reconnectOnce sync.Once

	pendingMutex sync.Mutex
	pending      map[string]chan Message

	onConnectMutex sync.Mutex
	onConnect      []func()
}

type ClientConfig struct {
	URL         string
	AccessToken string
	Logger      zerolog.Logger
}

func NewClient(config ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		url:           config.URL,
		accessToken:   config.AccessToken,
		dispatcher:    NewDispatcher(config.Logger),
		logger:        config.Logger,
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		pending:       make(map[string]chan Message),
	}
}

func (c *Client) Connect() error {
	c.mutex.Lock()

	if c.connected {
		c.mutex.Unlock()
		return nil
	}

	headers := http.Header{}
	if c.accessToken != "" {
		headers.Set("Authorization", "Bearer "+c.accessToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}

	conn, _, err := dialer.DialContext(c.ctx, c.url, headers)
	if err != nil {
		c.mutex.Unlock()
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.mutex.Unlock()

	c.logger.Info().Str("url", c.url).Msg("Connected to WebSocket")

	go c.readMessages(conn)
	c.reconnectOnce.Do(func() { go c.handleReconnect() })

	c.onConnectMutex.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.onConnectMutex.Unlock()
	for _, hook := range hooks {
		hook()
	}

	return nil
}

// OnConnect registers fn to run after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.onConnectMutex.Lock()
	defer c.onConnectMutex.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) Disconnect() error {
	c.cancel()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.connected {
		return nil
	}

	c.failPending()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.connected = false
		c.logger.Info().Msg("Disconnected from WebSocket")
		return err
	}

	return nil
}

func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected
}

func (c *Client) SendMessage(message Message) error {
	c.mutex.RLock()
	conn := c.conn
	connected := c.connected
	c.mutex.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.logger.Debug().
		Str("name", message.Name).
		Str("ref_id", message.RefID).
		RawJSON("body", data).
		Msg("Sending message")

	c.writeMutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMutex.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to send message")
		c.triggerReconnect(conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Send wraps body in a message and sends it without waiting for a reply.
func (c *Client) Send(name string, body interface{}) error {
	msg, err := NewMessage(name, body)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Request sends name/body with a fresh refId and waits for the matching
// success or error reply. The reply body is decoded into out when non-nil.
func (c *Client) Request(ctx context.Context, name string, body interface{}, out interface{}) error {
	msg, err := NewMessage(name, body)
	if err != nil {
		return err
	}
	msg.RefID = uuid.NewString()

	replies := make(chan Message, 1)
	c.pendingMutex.Lock()
	c.pending[msg.RefID] = replies
	c.pendingMutex.Unlock()

	defer func() {
		c.pendingMutex.Lock()
		delete(c.pending, msg.RefID)
		c.pendingMutex.Unlock()
	}()

	if err := c.SendMessage(msg); err != nil {
		return err
	}

	select {
	case reply, ok := <-replies:
		if !ok {
			return ErrDisconnected
		}
		if reply.Name == NameError {
			var body ErrorBody
			if err := reply.Decode(&body); err != nil {
				return err
			}
			return &RemoteError{Request: name, Code: body.Code, Message: body.Error}
		}
		return reply.Decode(out)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrDisconnected
	}
}

func (c *Client) RegisterHandler(messageName string, handler MessageHandler) {
	c.dispatcher.RegisterHandler(messageName, handler)
}

func (c *Client) deliver(message Message) bool {
	c.pendingMutex.Lock()
	replies, ok := c.pending[message.RefID]
	if ok {
		delete(c.pending, message.RefID)
	}
	c.pendingMutex.Unlock()

	if !ok {
		return false
	}
	replies <- message
	return true
}

func (c *Client) failPending() {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()

	for refID, replies := range c.pending {
		close(replies)
		delete(c.pending, refID)
	}
}

func (c *Client) readMessages(conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("Failed to read message")
				c.triggerReconnect(conn)
			}
			return
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.logger.Error().Err(err).Str("data", string(data)).Msg("Failed to unmarshal message")
			continue
		}

		c.logger.Debug().
			Str("name", message.Name).
			Str("ref_id", message.RefID).
			Msg("Received message")

		if message.isReply() && c.deliver(message) {
			continue
		}

		c.dispatcher.Dispatch(message)
	}
}

func (c *Client) handleReconnect() {
	backoff := initialBackoff

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
			c.logger.Info().Msg("Attempting to reconnect to WebSocket")

			for {
				err := c.Connect()
				if err == nil {
					c.logger.Info().Msg("Successfully reconnected to WebSocket")
					backoff = initialBackoff
					break
				}

				c.logger.Error().Err(err).
					Dur("backoff", backoff).
					Msg("Reconnection failed, retrying")

				select {
				case <-c.ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = nextBackoff(backoff)
			}
		}
	}
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// nextBackoff doubles d, capped at maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxBackoff)
}

func (c *Client) triggerReconnect(conn *websocket.Conn) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.connected || c.conn != conn {
		return
	}

	c.connected = false
	c.conn.Close()
	c.conn = nil
	c.failPending()

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) UpdateAccessToken(token string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.accessToken = token
	c.logger.Info().Msg("Access token updated")
}

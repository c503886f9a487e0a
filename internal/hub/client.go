package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amctechnology/AmazonConnect/internal/ws"
)

// Inbound message names pushed by the hub.
const (
	MsgPresenceChanged   = "presenceChanged"
	MsgClickToDial       = "clickToDial"
	MsgContextualControl = "contextualControl"
	MsgLogout            = "logout"
)

// Outbound request names.
const (
	ReqInitializeComplete   = "initializeComplete"
	ReqSetPresence          = "setPresence"
	ReqSetInteraction       = "setInteraction"
	ReqContextualOperation  = "contextualOperation"
	ReqSetSupportedChannels = "setSupportedChannels"
	ReqEnableClickToDial    = "enableClickToDial"
	ReqLogout               = "logout"
)

// Transport is the part of ws.Client the hub client needs.
type Transport interface {
	Request(ctx context.Context, name string, body interface{}, out interface{}) error
	RegisterHandler(name string, handler ws.MessageHandler)
}

// Client implements Hub over a websocket transport. Every SetPresence it
// issues carries appName as origin so the bridge can recognise its own echoes.
type Client struct {
	transport Transport
	appName   string
	logger    zerolog.Logger

	mu            sync.RWMutex
	onPresence    []func(PresenceChange)
	onClickToDial []func(string)
	onContextual  []func(ContextualContact)
	onLogout      []func(string)
}

var _ Hub = (*Client)(nil)

func NewClient(transport Transport, appName string, logger zerolog.Logger) *Client {
	c := &Client{
		transport: transport,
		appName:   appName,
		logger:    logger.With().Str("component", "hub").Logger(),
	}

	transport.RegisterHandler(MsgPresenceChanged, ws.MessageHandlerFunc(c.handlePresenceChanged))
	transport.RegisterHandler(MsgClickToDial, ws.MessageHandlerFunc(c.handleClickToDial))
	transport.RegisterHandler(MsgContextualControl, ws.MessageHandlerFunc(c.handleContextualControl))
	transport.RegisterHandler(MsgLogout, ws.MessageHandlerFunc(c.handleLogout))

	return c
}

func (c *Client) RegisterContextualControls(fn func(ContextualContact)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onContextual = append(c.onContextual, fn)
}

func (c *Client) RegisterOnPresenceChanged(fn func(PresenceChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = append(c.onPresence, fn)
}

func (c *Client) RegisterClickToDial(fn func(number string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClickToDial = append(c.onClickToDial, fn)
}

func (c *Client) RegisterOnLogout(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLogout = append(c.onLogout, fn)
}

func (c *Client) InitializeComplete(ctx context.Context) (AppConfig, error) {
	var cfg AppConfig
	if err := c.transport.Request(ctx, ReqInitializeComplete, map[string]string{"appName": c.appName}, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("initialize complete: %w", err)
	}
	if cfg.AppName == "" {
		cfg.AppName = c.appName
	}
	return cfg, nil
}

func (c *Client) SetPresence(ctx context.Context, presence, reason string) error {
	body := PresenceChange{Presence: presence, Reason: reason, Origin: c.appName}
	if err := c.transport.Request(ctx, ReqSetPresence, body, nil); err != nil {
		return fmt.Errorf("set presence %q: %w", presence, err)
	}
	return nil
}

func (c *Client) SetInteraction(ctx context.Context, interaction Interaction) error {
	if err := c.transport.Request(ctx, ReqSetInteraction, interaction, nil); err != nil {
		return fmt.Errorf("set interaction %s: %w", interaction.InteractionID, err)
	}
	return nil
}

func (c *Client) ContextualOperation(ctx context.Context, op ContextualOperationType, channel ChannelType) (ContextualContact, error) {
	body := struct {
		Operation ContextualOperationType `json:"operation"`
		Channel   ChannelType             `json:"channelType"`
	}{op, channel}

	var contact ContextualContact
	if err := c.transport.Request(ctx, ReqContextualOperation, body, &contact); err != nil {
		return ContextualContact{}, fmt.Errorf("contextual operation %s: %w", op, err)
	}
	return contact, nil
}

func (c *Client) SetSupportedChannels(ctx context.Context, channels []SupportedChannel) error {
	if err := c.transport.Request(ctx, ReqSetSupportedChannels, channels, nil); err != nil {
		return fmt.Errorf("set supported channels: %w", err)
	}
	return nil
}

func (c *Client) EnableClickToDial(ctx context.Context, enabled bool) error {
	if err := c.transport.Request(ctx, ReqEnableClickToDial, map[string]bool{"enabled": enabled}, nil); err != nil {
		return fmt.Errorf("enable click to dial: %w", err)
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.transport.Request(ctx, ReqLogout, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) handlePresenceChanged(message ws.Message) error {
	var change PresenceChange
	if err := message.Decode(&change); err != nil {
		return err
	}

	c.logger.Debug().
		Str("presence", change.Presence).
		Str("reason", change.Reason).
		Str("origin", change.Origin).
		Msg("Presence changed in hub")

	c.mu.RLock()
	handlers := c.onPresence
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(change)
	}
	return nil
}

func (c *Client) handleClickToDial(message ws.Message) error {
	var body struct {
		Number string `json:"number"`
	}
	if err := message.Decode(&body); err != nil {
		return err
	}
	if body.Number == "" {
		return fmt.Errorf("click to dial without number")
	}

	c.mu.RLock()
	handlers := c.onClickToDial
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(body.Number)
	}
	return nil
}

func (c *Client) handleContextualControl(message ws.Message) error {
	var contact ContextualContact
	if err := message.Decode(&contact); err != nil {
		return err
	}

	c.mu.RLock()
	handlers := c.onContextual
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(contact)
	}
	return nil
}

func (c *Client) handleLogout(message ws.Message) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := message.Decode(&body); err != nil {
		return err
	}

	c.logger.Info().Str("reason", body.Reason).Msg("Hub requested logout")

	c.mu.RLock()
	handlers := c.onLogout
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(body.Reason)
	}
	return nil
}

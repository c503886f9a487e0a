// Package app wires the bridge together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amctechnology/AmazonConnect/internal/api"
	"github.com/amctechnology/AmazonConnect/internal/auth"
	"github.com/amctechnology/AmazonConnect/internal/callevents"
	"github.com/amctechnology/AmazonConnect/internal/callplatform"
	"github.com/amctechnology/AmazonConnect/internal/callplatform/relay"
	"github.com/amctechnology/AmazonConnect/internal/config"
	"github.com/amctechnology/AmazonConnect/internal/dedup"
	"github.com/amctechnology/AmazonConnect/internal/domain"
	"github.com/amctechnology/AmazonConnect/internal/eventloop"
	"github.com/amctechnology/AmazonConnect/internal/hub"
	"github.com/amctechnology/AmazonConnect/internal/hubsync"
	"github.com/amctechnology/AmazonConnect/internal/operations"
	"github.com/amctechnology/AmazonConnect/internal/poller"
	"github.com/amctechnology/AmazonConnect/internal/presence"
	"github.com/amctechnology/AmazonConnect/internal/scenario"
	"github.com/amctechnology/AmazonConnect/internal/ws"
)

const (
	initializeTimeout   = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
	statusTimeout       = time.Second
	healthCheckInterval = time.Minute
	tokenRetryInterval  = 30 * time.Second
)

// PlatformConnector is the call platform plus the session logout the hub can
// request.
type PlatformConnector interface {
	callplatform.Platform
	Logout(ctx context.Context) error
}

// Transport is a websocket connection the executor connects, watches and
// disconnects.
type Transport interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
}

type Executor struct {
	config  *config.Config
	logger  zerolog.Logger
	version string

	hubTransport      Transport
	platformTransport Transport
	hub               hub.Hub
	platform          PlatformConnector

	loop       *eventloop.Loop
	store      *scenario.Store
	emitter    *callevents.Emitter
	controller *callevents.Controller
	poller     *poller.Poller

	// owned by the loop
	bridge     *presence.Bridge
	translator *callevents.Translator

	httpServer  *http.Server
	apiHandlers *api.APIHandlers

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

type ExecutorConfig struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Version string

	// Optional overrides; websocket clients are built from Config when nil.
	HubTransport      Transport
	Hub               hub.Hub
	PlatformTransport Transport
	Platform          PlatformConnector
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		config:            cfg.Config,
		logger:            cfg.Logger,
		version:           cfg.Version,
		hubTransport:      cfg.HubTransport,
		hub:               cfg.Hub,
		platformTransport: cfg.PlatformTransport,
		platform:          cfg.Platform,
		loop:              eventloop.New(cfg.Logger.With().Str("component", "loop").Logger(), eventloop.DefaultDepth),
	}
}

// Start brings the bridge up in order: hub transport, hub callbacks,
// initializeComplete, components, click-to-dial, call platform. Missing
// presence tables or CCP URL abort startup with ErrConfigurationMissing
// before anything subscribes to the call platform.
func (e *Executor) Start(parent context.Context) error {
	e.logger.Info().Msg("Starting presence bridge")

	e.ctx, e.cancel = context.WithCancel(parent)
	e.group, e.ctx = errgroup.WithContext(e.ctx)
	e.group.Go(func() error { return e.loop.Run(e.ctx) })

	if err := e.initTransports(); err != nil {
		return e.abort(err)
	}

	e.registerHubCallbacks()

	if err := e.hubTransport.Connect(); err != nil {
		return e.abort(fmt.Errorf("failed to connect to channel hub: %w", err))
	}

	initCtx, cancel := context.WithTimeout(e.ctx, initializeTimeout)
	appConfig, err := e.hub.InitializeComplete(initCtx)
	cancel()
	if err != nil {
		return e.abort(fmt.Errorf("initializeComplete: %w", err))
	}
	if appConfig.CCPURL == "" {
		return e.abort(fmt.Errorf("%w: ccp url", domain.ErrConfigurationMissing))
	}

	if err := e.initComponents(appConfig); err != nil {
		return e.abort(err)
	}

	if err := e.hub.EnableClickToDial(e.ctx, true); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to enable click-to-dial")
	}

	if err := e.initCallPlatform(appConfig.CCPURL); err != nil {
		return e.abort(err)
	}

	if err := e.initHTTPServer(); err != nil {
		return e.abort(err)
	}

	e.group.Go(func() error { return e.poller.Run(e.ctx) })
	e.group.Go(func() error {
		e.healthCheckRoutine()
		return nil
	})

	e.logger.Info().
		Str("app_name", appConfig.AppName).
		Str("ccp_url", appConfig.CCPURL).
		Msg("Presence bridge started successfully")

	return nil
}

// Stop cancels every routine, closes the transports and waits for the
// errgroup to drain.
func (e *Executor) Stop() error {
	e.logger.Info().Msg("Stopping presence bridge")

	if e.cancel != nil {
		e.cancel()
	}

	if e.platformTransport != nil {
		if err := e.platformTransport.Disconnect(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to disconnect from call platform relay")
		}
	}
	if e.hubTransport != nil {
		if err := e.hubTransport.Disconnect(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to disconnect from channel hub")
		}
	}

	if e.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.httpServer.Shutdown(shutdownCtx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		} else {
			e.logger.Info().Msg("HTTP server stopped")
		}
	}

	err := e.Wait()
	e.logger.Info().Msg("Presence bridge stopped")
	return err
}

// Wait blocks until every routine has returned. Cancellation is not an error.
func (e *Executor) Wait() error {
	if e.group == nil {
		return nil
	}
	if err := e.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Done is closed when the executor begins shutting down, including after a
// hub logout.
func (e *Executor) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Executor) abort(err error) error {
	_ = e.Stop()
	return err
}

// Store exposes the scenario store.
func (e *Executor) Store() *scenario.Store {
	return e.store
}

// GetSystemStatus reports transport connectivity, the agent and the presence
// last seen on each side.
func (e *Executor) GetSystemStatus() map[string]interface{} {
	status := map[string]interface{}{
		"hub_connected":      e.hubTransport != nil && e.hubTransport.IsConnected(),
		"platform_connected": e.platformTransport != nil && e.platformTransport.IsConnected(),
	}
	if e.store != nil {
		status["scenarios"] = len(e.store.Snapshot())
	}
	if e.controller != nil {
		status["agent"] = e.controller.AgentUsername()
	}

	type presenceState struct {
		callPlatform, hub string
		ok                bool
	}
	seen := make(chan presenceState, 1)
	posted := e.loop.Post(func() {
		if e.bridge == nil {
			seen <- presenceState{}
			return
		}
		seen <- presenceState{e.bridge.LastCallPlatform(), e.bridge.LastHub(), true}
	})
	if posted {
		select {
		case p := <-seen:
			if p.ok {
				status["call_platform_presence"] = p.callPlatform
				status["hub_presence"] = p.hub
			}
		case <-time.After(statusTimeout):
		}
	}
	return status
}

func (e *Executor) initTransports() error {
	if e.hubTransport == nil || e.hub == nil {
		client, err := e.newWSClient("hub", e.config.Hub.WSURL, e.config.Hub.Auth)
		if err != nil {
			return err
		}
		e.hubTransport = client
		e.hub = hub.NewClient(client, e.config.Service.AppName, e.logger)
	}

	if e.platformTransport == nil || e.platform == nil {
		client, err := e.newWSClient("relay", e.config.CallPlatform.RelayURL, e.config.CallPlatform.Auth)
		if err != nil {
			return err
		}
		e.platformTransport = client
		e.platform = relay.NewPlatform(client, e.logger)
	}

	return nil
}

// newWSClient authenticates when credentials are configured and keeps the
// token fresh for the lifetime of the executor.
func (e *Executor) newWSClient(name, url string, creds config.AuthConfig) (*ws.Client, error) {
	client := ws.NewClient(ws.ClientConfig{
		URL:    url,
		Logger: e.logger.With().Str("component", name+"_ws").Logger(),
	})

	if !creds.Enabled() {
		e.logger.Debug().Str("transport", name).Msg("No credentials configured; connecting unauthenticated")
		return client, nil
	}

	keycloak := auth.NewKeycloakClient(creds.TokenURL, creds.ClientID, creds.ClientSecret, creds.Username, creds.Password)
	token, err := keycloak.GetAccessToken(e.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate %s transport: %w", name, err)
	}
	client.UpdateAccessToken(token.AccessToken)

	e.logger.Info().
		Str("transport", name).
		Time("expires_at", token.ExpiresAt).
		Msg("Successfully authenticated")

	e.group.Go(func() error {
		e.tokenRefreshRoutine(name, keycloak, client, token)
		return nil
	})

	return client, nil
}

func (e *Executor) registerHubCallbacks() {
	e.hub.RegisterOnPresenceChanged(func(change hub.PresenceChange) {
		e.post("hub presence", func() {
			if e.bridge == nil {
				e.logger.Warn().Str("presence", change.Presence).Msg("Presence change before initialization; dropped")
				return
			}
			e.bridge.OnChannelHubPresenceChanged(e.ctx, change.Presence, change.Reason, change.Origin)
		})
	})

	e.hub.RegisterClickToDial(func(number string) {
		e.dial("click to dial", number)
	})

	e.hub.RegisterContextualControls(func(contact hub.ContextualContact) {
		e.dial("contextual control", contact.ContactID())
	})

	e.hub.RegisterOnLogout(func(reason string) {
		e.logger.Info().Str("reason", reason).Msg("Channel hub requested logout")
		eventloop.Exec(e.loop.Lane(callplatform.Lane), e.ctx, e.platform.Logout, func(err error) {
			if err != nil {
				e.logger.Error().Err(err).Msg("Failed to log out of call platform")
			}
			e.cancel()
		})
	})
}

func (e *Executor) dial(source, number string) {
	e.post(source, func() {
		if e.translator == nil {
			e.logger.Warn().Str("source", source).Msg("Dial request before initialization; dropped")
			return
		}
		e.translator.Dial(e.ctx, number)
	})
}

func (e *Executor) post(source string, fn func()) {
	if !e.loop.Post(fn) {
		e.logger.Debug().Str("source", source).Msg("Event loop stopped; callback dropped")
	}
}

func (e *Executor) initComponents(appConfig hub.AppConfig) error {
	// hub.Client stamps SetPresence with the configured app name.
	identity := e.config.Service.AppName
	iconPack := e.config.Client.IconPack

	e.store = scenario.NewStore(scenario.NewReducer(e.logger), e.logger)
	e.emitter = callevents.NewEmitter(iconPack, e.store.Dispatch)
	e.controller = callevents.NewController(e.loop, e.platform.EventBus(), e.emitter, dedup.NewPool(), e.logger)

	builder := operations.NewBuilder(iconPack, e.controller, e.hub, e.loop, e.logger)
	e.emitter.SetOperations(builder)

	bridge, err := presence.NewBridge(presence.Tables{
		CallPlatformToHub: appConfig.CallPlatformToHubPresence,
		HubToCallPlatform: appConfig.HubToCallPlatformPresence,
	}, identity, e.hub, e.controller, e.loop, e.logger)
	if err != nil {
		return err
	}

	translator := callevents.NewTranslator(e.controller, bridge, e.hub, e.emitter, e.loop, e.logger)

	publisher := hubsync.NewPublisher(e.ctx, e.hub, e.loop, e.logger)
	e.store.AddEffect(publisher.Effect)

	e.poller = poller.New(e.controller, e.emitter, e.loop, e.config.Poller.Interval, e.logger)

	if err := e.loop.Call(e.ctx, func() {
		e.bridge = bridge
		e.translator = translator
	}); err != nil {
		return fmt.Errorf("failed to install components: %w", err)
	}

	e.logger.Debug().Str("identity", identity).Msg("Components initialized")
	return nil
}

func (e *Executor) initCallPlatform(ccpURL string) error {
	if err := e.platformTransport.Connect(); err != nil {
		return fmt.Errorf("failed to connect to call platform relay: %w", err)
	}

	initCtx, cancel := context.WithTimeout(e.ctx, initializeTimeout)
	defer cancel()

	err := e.platform.Initialize(initCtx, callplatform.InitOptions{
		CCPURL:          ccpURL,
		LoginPopup:      e.config.CallPlatform.LoginPopup,
		DisableRingtone: e.config.CallPlatform.DisableRingtone,
	})
	if err != nil {
		return err
	}

	var translator *callevents.Translator
	if err := e.loop.Call(e.ctx, func() { translator = e.translator }); err != nil {
		return err
	}
	translator.Subscribe(e.ctx, e.platform)

	bus := e.platform.EventBus()
	bus.Subscribe(callplatform.EventTerminated, func() {
		e.logger.Info().Msg("Call platform session terminated; logging out of channel hub")
		eventloop.Exec(e.loop.Lane(hub.Lane), e.ctx, e.hub.Logout, func(err error) {
			if err != nil {
				e.logger.Error().Err(err).Msg("Failed to log out of channel hub")
			}
		})
	})
	bus.Subscribe(callplatform.EventAcknowledge, func() {
		e.logger.Info().Msg("Call platform acknowledged the agent session")
	})

	return nil
}

func (e *Executor) initHTTPServer() error {
	if !e.config.HTTP.Enabled {
		e.logger.Info().Msg("HTTP API server is disabled")
		return nil
	}

	e.apiHandlers = api.NewAPIHandlers(e.config.Client, e.store, e, e.version, e.logger.With().Str("component", "api").Logger())

	addr := ":" + strconv.Itoa(e.config.HTTP.Port)
	e.httpServer = &http.Server{
		Addr:              addr,
		Handler:           e.apiHandlers.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	e.group.Go(func() error {
		e.logger.Info().
			Int("port", e.config.HTTP.Port).
			Msg("Starting HTTP API server")

		if err := e.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	return nil
}

// tokenRefreshRoutine renews the transport token ahead of its expiry. A
// failed renewal is retried on a short interval while the old token lives.
func (e *Executor) tokenRefreshRoutine(name string, keycloak *auth.KeycloakClient, client *ws.Client, token auth.Token) {
	timer := time.NewTimer(token.RefreshAfter(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-timer.C:
			e.logger.Debug().Str("transport", name).Msg("Refreshing access token")

			next, err := keycloak.RefreshAccessToken(e.ctx)
			if err != nil {
				e.logger.Error().Err(err).Str("transport", name).Msg("Failed to refresh access token")
				timer.Reset(tokenRetryInterval)
				continue
			}

			client.UpdateAccessToken(next.AccessToken)
			timer.Reset(next.RefreshAfter(time.Now()))
			e.logger.Debug().Str("transport", name).Msg("Access token refreshed successfully")
		}
	}
}

func (e *Executor) healthCheckRoutine() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.performHealthCheck()
		}
	}
}

func (e *Executor) performHealthCheck() {
	status := e.GetSystemStatus()

	e.logger.Debug().
		Interface("system_status", status).
		Msg("Health check completed")

	if connected, _ := status["hub_connected"].(bool); !connected {
		e.logger.Warn().Msg("Channel hub websocket is disconnected")
	}
	if connected, _ := status["platform_connected"].(bool); !connected {
		e.logger.Warn().Msg("Call platform relay websocket is disconnected")
	}
}

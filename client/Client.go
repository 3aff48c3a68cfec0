package client

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"rtsdk/common/ctimer"
	"rtsdk/common/logger"
	"rtsdk/common/observable"
	"rtsdk/config"
	"rtsdk/credential"
	"rtsdk/protocol"
	"rtsdk/websocket/connection"
	"rtsdk/websocket/wclient"
)

// State is the connection status published to consumers.
type State struct {
	Connected bool
	LastError error
}

func (s State) String() string {
	if s.LastError != nil {
		return fmt.Sprintf("State { connected: %v, lastError: %s }", s.Connected, s.LastError.Error())
	}
	return fmt.Sprintf("State { connected: %v }", s.Connected)
}

type Option func(*Client)

func WithLogger(log *logger.SimpleLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log.WithPrefix("[Client]")
		}
	}
}

// Client owns one persistent channel to the chat server. It tracks the connection state, keeps
// the single active room joined across reconnects, routes inbound events to Handlers and emits
// outbound commands.
//
// Handler callbacks run one at a time on the transport goroutine. A callback may call any method,
// including SetHandlers, Activate and Deactivate; a handler set installed from a callback takes
// effect from the next event.
type Client struct {
	config   config.ClientConfig
	provider credential.Provider
	logger   *logger.SimpleLogger

	// generation identifies the current transport; callbacks from an older one are dropped.
	generation uint64

	lock       *sync.Mutex
	transport  *wclient.WClient
	activating bool
	connected  bool
	lastError  error
	activeRoom string
	heartbeat  ctimer.ICTimer

	handlersLock *sync.Mutex
	table        atomic.Pointer[dispatchTable]

	// publishLock orders state snapshots with their Store; observers are notified outside it.
	publishLock *sync.Mutex
	state       *observable.Observable[State]
}

func New(cfg config.ClientConfig, provider credential.Provider, opts ...Option) *Client {
	c := &Client{
		config:       cfg,
		provider:     provider,
		logger:       logger.New(os.Stdout, "[Client]", cfg.Verbose),
		lock:         new(sync.Mutex),
		handlersLock: new(sync.Mutex),
		publishLock:  new(sync.Mutex),
		state:        observable.NewWith(State{}),
	}
	c.table.Store(&dispatchTable{})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate installs handlers, fetches a credential and starts connecting. It blocks only for the
// credential fetch; connection progress is published on the returned Readable. Activating a
// client whose transport is still running only replaces the handlers, which makes it safe to call
// from inside a handler callback.
func (c *Client) Activate(ctx context.Context, handlers Handlers) observable.Readable[State] {
	c.SetHandlers(handlers)
	c.lock.Lock()
	if c.activating || (c.transport != nil && !stopped(c.transport)) {
		c.lock.Unlock()
		return c.state
	}
	c.activating = true
	gen := atomic.AddUint64(&c.generation, 1)
	c.transport = nil
	c.lock.Unlock()
	c.connect(ctx, gen)
	return c.state
}

// connect fetches a credential and, if the generation is still current, starts a transport.
func (c *Client) connect(ctx context.Context, gen uint64) error {
	token, err := credential.Fetch(ctx, c.provider)
	c.lock.Lock()
	if gen != atomic.LoadUint64(&c.generation) {
		c.lock.Unlock()
		return nil
	}
	c.activating = false
	if err != nil {
		c.connected = false
		c.lastError = err
		c.lock.Unlock()
		c.logger.Warnf("not connecting: %s", err.Error())
		c.publish()
		return err
	}
	t := wclient.New(c.transportConfig(gen), c.logger)
	c.transport = t
	c.lock.Unlock()
	c.logger.Debugf("connecting to %s", c.config.ServerURL)
	t.Start(token)
	return nil
}

func (c *Client) transportConfig(gen uint64) *wclient.WClientConfig {
	handler := wclient.NewWClientConnectionHandler(
		func(msg []byte) { c.dispatch(gen, msg) },
		func(*connection.WsConnection) { c.onConnected(gen) },
		func(err error) { c.onConnectionFailed(gen, err) },
		func(err error) { c.onDisconnected(gen, err) },
	)
	wcfg := wclient.NewWClientConfig(c.config.ServerURL, c.reconnectToken, handler)
	wcfg.HandshakeTimeout = c.config.HandshakeTimeout
	wcfg.Connection = connection.Config{
		WriteTimeout:   c.config.WriteTimeout,
		PongWait:       c.config.PongWait,
		PingInterval:   c.config.PingInterval,
		MaxMessageSize: c.config.MaxMessageSize,
	}
	wcfg.Reconnect = wclient.ReconnectPolicy{
		Attempts:            c.config.Reconnect.Attempts,
		Delay:               c.config.Reconnect.Delay,
		DelayMax:            c.config.Reconnect.DelayMax,
		RandomizationFactor: c.config.Reconnect.RandomizationFactor,
	}
	return wcfg
}

// reconnectToken asks the provider again for every reconnect attempt; tokens are never cached.
func (c *Client) reconnectToken(ctx context.Context) (string, error) {
	return credential.Fetch(ctx, c.provider)
}

func stopped(t *wclient.WClient) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

func (c *Client) isCurrent(gen uint64) bool {
	return gen == atomic.LoadUint64(&c.generation)
}

func (c *Client) onConnected(gen uint64) {
	c.lock.Lock()
	if !c.isCurrent(gen) {
		c.lock.Unlock()
		return
	}
	c.connected = true
	c.lastError = nil
	// the re-join goes out before the lock is released so no other command can precede it
	if c.activeRoom != "" {
		c.emitLocked(protocol.CommandJoinThread, protocol.ThreadCommand{ThreadID: c.activeRoom})
	}
	c.startHeartbeatLocked()
	c.lock.Unlock()
	c.logger.Printf("connected to %s", c.config.ServerURL)
	c.publish()
}

func (c *Client) onDisconnected(gen uint64, err error) {
	if err == nil {
		err = ErrDisconnected
	}
	c.markDown(gen, errors.Wrap(err, "disconnected"))
}

func (c *Client) onConnectionFailed(gen uint64, err error) {
	c.markDown(gen, err)
}

func (c *Client) markDown(gen uint64, err error) {
	c.lock.Lock()
	if !c.isCurrent(gen) {
		c.lock.Unlock()
		return
	}
	c.connected = false
	c.lastError = err
	c.stopHeartbeatLocked()
	c.lock.Unlock()
	c.logger.Warnf("connection down: %s", err.Error())
	c.publish()
}

func (c *Client) publish() {
	c.publishLock.Lock()
	c.state.Store(c.snapshot())
	c.publishLock.Unlock()
	c.state.Notify()
}

func (c *Client) snapshot() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return State{Connected: c.connected, LastError: c.lastError}
}

// Deactivate tears the client down: the transport is closed, its callbacks are dropped from
// this point on, and the active room is forgotten. Calling it again is a no-op.
func (c *Client) Deactivate() {
	c.lock.Lock()
	atomic.AddUint64(&c.generation, 1)
	t := c.transport
	changed := c.connected || c.lastError != nil
	c.transport = nil
	c.activating = false
	c.connected = false
	c.lastError = nil
	c.activeRoom = ""
	c.stopHeartbeatLocked()
	c.lock.Unlock()
	if t != nil {
		t.Close()
		c.logger.Debugf("deactivated")
	}
	if changed {
		c.publish()
	}
}

// RotateCredential drops the current transport and connects again with a freshly fetched
// credential. Handlers and the active room survive the rotation.
func (c *Client) RotateCredential(ctx context.Context) error {
	c.lock.Lock()
	if c.transport == nil && !c.activating {
		c.lock.Unlock()
		return ErrNotActive
	}
	gen := atomic.AddUint64(&c.generation, 1)
	old := c.transport
	wasConnected := c.connected
	c.transport = nil
	c.activating = true
	c.connected = false
	c.stopHeartbeatLocked()
	c.lock.Unlock()
	if old != nil {
		old.Close()
	}
	if wasConnected {
		c.publish()
	}
	c.logger.Printf("rotating credential")
	return c.connect(ctx, gen)
}

// SetHandlers atomically replaces the whole handler set. An event already being dispatched
// finishes with the previous set; every later event sees the new one.
func (c *Client) SetHandlers(handlers Handlers) {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()
	next := handlers.table(*c.table.Load())
	c.table.Store(&next)
}

func (c *Client) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

func (c *Client) LastError() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastError
}

// Connection exposes the observable connection state without activating the client.
func (c *Client) Connection() observable.Readable[State] {
	return c.state
}

func (c *Client) ActiveRoom() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.activeRoom
}

func (c *Client) dispatch(gen uint64, msg []byte) {
	if !c.isCurrent(gen) {
		return
	}
	frame, err := protocol.Decode(msg)
	if err != nil {
		c.logger.Warnf("dropping frame: %s", err.Error())
		return
	}
	event := protocol.Event(frame.Event)
	l, ok := (*c.table.Load())[event]
	if !ok {
		if !event.Known() {
			c.logger.Debugf("ignoring unknown event %s", frame.Event)
		}
		return
	}
	c.invoke(event, l, frame)
}

func (c *Client) invoke(event protocol.Event, l listener, frame *protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("handler for %s panicked: %v", event, r)
		}
	}()
	if err := l(frame.Data); err != nil {
		c.logger.Warnf("dropping %s: %s", event, err.Error())
	}
}

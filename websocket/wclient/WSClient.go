package wclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"rtsdk/common/logger"
	"rtsdk/websocket/connection"
)

var (
	ErrNotConnected       = errors.New("websocket is not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

type WClientConnectionHandler struct {
	onMessage               func([]byte)
	onConnectionEstablished func(*connection.WsConnection)
	onConnectionFailed      func(error)
	onDisconnected          func(error)
}

func NewWClientConnectionHandler(
	onMessage func([]byte),
	onConnectionEstablished func(*connection.WsConnection),
	onConnectionFailed func(error),
	onDisconnected func(error),
) *WClientConnectionHandler {
	return &WClientConnectionHandler{onMessage, onConnectionEstablished, onConnectionFailed, onDisconnected}
}

func (c *WClientConnectionHandler) OnMessage(msg []byte) {
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *WClientConnectionHandler) OnConnectionEstablished(conn *connection.WsConnection) {
	if c.onConnectionEstablished != nil {
		c.onConnectionEstablished(conn)
	}
}

func (c *WClientConnectionHandler) OnConnectionFailed(err error) {
	if c.onConnectionFailed != nil {
		c.onConnectionFailed(err)
	}
}

func (c *WClientConnectionHandler) OnDisconnected(err error) {
	if c.onDisconnected != nil {
		c.onDisconnected(err)
	}
}

// TokenSource returns a fresh bearer token for one connection attempt. An error ends the
// reconnect loop.
type TokenSource func(ctx context.Context) (string, error)

type ReconnectPolicy struct {
	// Attempts is the number of reconnect attempts after a failure; the counter resets on every
	// successful connect.
	Attempts            int
	Delay               time.Duration
	DelayMax            time.Duration
	RandomizationFactor float64
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Attempts:            5,
		Delay:               time.Second,
		DelayMax:            5 * time.Second,
		RandomizationFactor: 0.5,
	}
}

type WClientConfig struct {
	*WClientConnectionHandler
	ServerUrl        string
	HandshakeTimeout time.Duration
	Connection       connection.Config
	Reconnect        ReconnectPolicy
	TokenSource      TokenSource
}

func NewWClientConfig(serverUrl string, tokenSource TokenSource, handler *WClientConnectionHandler) *WClientConfig {
	return &WClientConfig{
		WClientConnectionHandler: handler,
		ServerUrl:                serverUrl,
		HandshakeTimeout:         10 * time.Second,
		Connection:               connection.DefaultConfig(),
		Reconnect:                DefaultReconnectPolicy(),
		TokenSource:              tokenSource,
	}
}

// WClient keeps one websocket connection to ServerUrl alive. Every signal (connected,
// disconnected, connection failed, message) is delivered from a single goroutine, in order.
type WClient struct {
	id      string
	config  *WClientConfig
	dialer  *websocket.Dialer
	logger  *logger.SimpleLogger
	lock    *sync.Mutex
	handler *WClientConnectionHandler
	conn    *connection.WsConnection
	cancel  context.CancelFunc
	started bool
	closed  bool
	done    chan struct{}
}

func New(config *WClientConfig, log *logger.SimpleLogger) *WClient {
	if log == nil {
		log = logger.NewNop()
	}
	if config.TokenSource == nil {
		config.TokenSource = func(context.Context) (string, error) {
			return "", errors.New("no token source configured")
		}
	}
	if config.WClientConnectionHandler == nil {
		config.WClientConnectionHandler = &WClientConnectionHandler{}
	}
	id := uuid.NewString()
	return &WClient{
		id:     id,
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger:  log.WithPrefix(fmt.Sprintf("[WClient-%s]", id[:8])),
		lock:    new(sync.Mutex),
		handler: config.WClientConnectionHandler,
		done:    make(chan struct{}),
	}
}

func (c *WClient) Id() string {
	return c.id
}

// Start begins connecting with token; later attempts ask the TokenSource for a new one.
func (c *WClient) Start(token string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx, token)
}

// Done is closed when the connect loop has exited.
func (c *WClient) Done() <-chan struct{} {
	return c.done
}

func (c *WClient) Write(data []byte) error {
	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(data)
}

// Close unregisters the handler, stops reconnecting and closes the socket. It does not wait for
// the connect loop, so it may be called from within a handler.
func (c *WClient) Close() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	c.handler = nil
	cancel, conn, started := c.cancel, c.conn, c.started
	c.conn = nil
	c.lock.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if !started {
		close(c.done)
	}
}

func (c *WClient) currentHandler() *WClientConnectionHandler {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.handler
}

func (c *WClient) setConn(conn *connection.WsConnection) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed && conn != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *WClient) newBackOff(ctx context.Context) backoff.BackOff {
	policy := c.config.Reconnect
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.Delay
	exp.MaxInterval = policy.DelayMax
	exp.RandomizationFactor = policy.RandomizationFactor
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	exp.Reset()
	attempts := policy.Attempts
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts)), ctx)
}

func (c *WClient) run(ctx context.Context, token string) {
	defer close(c.done)
	b := c.newBackOff(ctx)
	for {
		if token == "" {
			fresh, err := c.config.TokenSource(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.logger.Printf("no credential for reconnect, giving up: %s", err.Error())
				c.connectionFailed(err)
				return
			}
			token = fresh
		}
		conn, err := c.dial(ctx, token)
		token = ""
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			c.logger.Printf("connect failed: %s", err.Error())
			c.connectionFailed(err)
			if !c.wait(ctx, b, err) {
				return
			}
			continue
		}
		if !c.setConn(conn) {
			conn.Close()
			return
		}
		b.Reset()
		c.logger.Debugf("connected to %s as %s", c.config.ServerUrl, conn.Id())
		if h := c.currentHandler(); h != nil {
			h.OnConnectionEstablished(conn)
		}
		err = conn.ReadLoop(c.message)
		c.setConn(nil)
		if ctx.Err() != nil {
			return
		}
		c.logger.Printf("disconnected: %v", err)
		if h := c.currentHandler(); h != nil {
			h.OnDisconnected(err)
		}
		if !c.wait(ctx, b, err) {
			return
		}
	}
}

func (c *WClient) message(msg []byte) {
	if h := c.currentHandler(); h != nil {
		h.OnMessage(msg)
	}
}

func (c *WClient) connectionFailed(err error) {
	if h := c.currentHandler(); h != nil {
		h.OnConnectionFailed(err)
	}
}

// wait sleeps for the next backoff interval. It reports false when the loop must stop, either
// because the client was closed or the attempt budget is spent.
func (c *WClient) wait(ctx context.Context, b backoff.BackOff, lastErr error) bool {
	next := b.NextBackOff()
	if next == backoff.Stop {
		if ctx.Err() != nil {
			return false
		}
		err := errors.Wrapf(ErrReconnectExhausted, "after %d attempts, last error: %v", c.config.Reconnect.Attempts, lastErr)
		c.logger.Warnf("%s", err.Error())
		c.connectionFailed(err)
		return false
	}
	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *WClient) dial(ctx context.Context, token string) (*connection.WsConnection, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	ws, resp, err := c.dialer.DialContext(ctx, c.config.ServerUrl, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "handshake with %s rejected (status %d)", c.config.ServerUrl, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", c.config.ServerUrl)
	}
	return connection.NewWsConnection(uuid.NewString(), ws, c.config.Connection, c.logger), nil
}

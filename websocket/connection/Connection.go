package connection

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"rtsdk/common/logger"
)

const (
	StateIdle         = 0
	StateReading      = 1
	StateClosing      = 2
	StateDisconnected = 3
)

var ErrConnectionClosed = errors.New("connection is closed")

type Config struct {
	// WriteTimeout bounds every write, including pings and the close frame.
	WriteTimeout time.Duration
	// PongWait is how long the peer may stay silent before the read fails. Zero disables read
	// deadlines and pings.
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// WsConnection wraps a gorilla websocket connection. Writes are serialized; reads happen only on
// the goroutine running ReadLoop.
type WsConnection struct {
	id        string
	conn      *websocket.Conn
	config    Config
	logger    *logger.SimpleLogger
	state     int32
	writeLock *sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWsConnection(id string, conn *websocket.Conn, config Config, log *logger.SimpleLogger) *WsConnection {
	if log == nil {
		log = logger.NewNop()
	}
	return &WsConnection{
		id:        id,
		conn:      conn,
		config:    config,
		logger:    log.WithPrefix(fmt.Sprintf("[WsConnection-%s]", id)),
		state:     StateIdle,
		writeLock: new(sync.Mutex),
		closed:    make(chan struct{}),
	}
}

func (c *WsConnection) Id() string {
	return c.id
}

func (c *WsConnection) State() int {
	return int(atomic.LoadInt32(&c.state))
}

func (c *WsConnection) setState(state int) {
	atomic.StoreInt32(&c.state, int32(state))
}

func (c *WsConnection) IsLive() bool {
	return c.State() < StateClosing
}

func (c *WsConnection) writeDeadline() time.Time {
	if c.config.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.WriteTimeout)
}

func (c *WsConnection) Write(stream []byte) error {
	if !c.IsLive() {
		return ErrConnectionClosed
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.conn.SetWriteDeadline(c.writeDeadline()); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, stream); err != nil {
		return errors.Wrapf(err, "write to %s", c.Address())
	}
	return nil
}

func (c *WsConnection) ping() error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline())
}

func (c *WsConnection) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debugf("ping failed: %s", err.Error())
				return
			}
		}
	}
}

// ReadLoop reads text frames and hands them to onMessage in arrival order until the connection
// fails or is closed. It returns the terminal read error and leaves the connection closed.
func (c *WsConnection) ReadLoop(onMessage func([]byte)) error {
	if !atomic.CompareAndSwapInt32(&c.state, StateIdle, StateReading) {
		return errors.Errorf("connection %s is not idle (state %d)", c.id, c.State())
	}
	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	stopPing := make(chan struct{})
	defer close(stopPing)
	if c.config.PongWait > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		})
		if c.config.PingInterval > 0 {
			go c.pingLoop(stopPing)
		}
	}
	var err error
	for {
		var (
			msgType int
			stream  []byte
		)
		msgType, stream, err = c.conn.ReadMessage()
		if err != nil {
			break
		}
		if c.config.PongWait > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		}
		if msgType != websocket.TextMessage {
			c.logger.Debugf("ignoring non-text frame of type %d", msgType)
			continue
		}
		onMessage(stream)
	}
	select {
	case <-c.closed:
		err = ErrConnectionClosed
	default:
	}
	c.Close()
	return err
}

// Close sends a best-effort close frame and releases the socket. Safe to call repeatedly and
// from any goroutine.
func (c *WsConnection) Close() (err error) {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		close(c.closed)
		c.writeLock.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeLock.Unlock()
		err = c.conn.Close()
		c.setState(StateDisconnected)
	})
	return
}

func (c *WsConnection) Address() string {
	return c.conn.RemoteAddr().String()
}

func (c *WsConnection) String() string {
	return fmt.Sprintf("WsConnection { id: %s, address: %s, state: %d }", c.id, c.Address(), c.State())
}

package mocks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"rtsdk/common/logger"
	"rtsdk/protocol"
	"rtsdk/websocket/connection"
	"rtsdk/websocket/wserver"
)

var ErrUnauthorized = errors.New("unauthorized")

// MockServer is an in-process chat endpoint for tests. It records every command frame it
// receives, can push events to connected clients, and can drop connections on demand.
type MockServer struct {
	server    *httptest.Server
	ws        *wserver.WServer
	lock      *sync.Mutex
	conns     map[string]*connection.WsConnection
	accepted  int
	tokens    []string
	commands  []protocol.Frame
	authorize func(token string) bool
}

func NewMockServer() *MockServer {
	m := &MockServer{
		lock:  new(sync.Mutex),
		conns: make(map[string]*connection.WsConnection),
	}
	handler := wserver.NewWsConnHandler(m.onConnected, m.onMessage, m.onClosed, m.checkUpgrade)
	m.ws = wserver.NewWServer(wserver.NewServerConfig("mock", "127.0.0.1:0", wserver.DefaultUpgradePath, handler))
	m.ws.SetLogger(logger.NewNop())
	m.server = httptest.NewServer(m.ws)
	return m
}

// URL is the websocket endpoint clients should dial.
func (m *MockServer) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + wserver.DefaultUpgradePath
}

// Authorize installs a token check; rejected handshakes answer 401.
func (m *MockServer) Authorize(check func(token string) bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.authorize = check
}

func (m *MockServer) checkUpgrade(r *http.Request) error {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tokens = append(m.tokens, token)
	if m.authorize != nil && !m.authorize(token) {
		return ErrUnauthorized
	}
	return nil
}

func (m *MockServer) onConnected(conn *connection.WsConnection, header http.Header) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.conns[conn.Id()] = conn
	m.accepted++
}

func (m *MockServer) onMessage(conn *connection.WsConnection, msg []byte) {
	frame, err := protocol.Decode(msg)
	if err != nil {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.commands = append(m.commands, *frame)
}

func (m *MockServer) onClosed(conn *connection.WsConnection, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.conns, conn.Id())
}

func (m *MockServer) live() []*connection.WsConnection {
	m.lock.Lock()
	defer m.lock.Unlock()
	conns := make([]*connection.WsConnection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// Push sends one event frame to every connected client.
func (m *MockServer) Push(event protocol.Event, payload interface{}) error {
	raw, err := protocol.Encode(string(event), payload)
	if err != nil {
		return err
	}
	return m.PushRaw(raw)
}

func (m *MockServer) PushRaw(raw []byte) error {
	for _, c := range m.live() {
		if err := c.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every server-side connection, forcing clients to reconnect.
func (m *MockServer) DropConnections() {
	for _, c := range m.live() {
		c.Close()
	}
}

func (m *MockServer) Commands() []protocol.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]protocol.Frame(nil), m.commands...)
}

// CommandsNamed returns the recorded commands with the given name, in arrival order.
func (m *MockServer) CommandsNamed(cmd protocol.Command) []protocol.Frame {
	var frames []protocol.Frame
	for _, f := range m.Commands() {
		if f.Event == string(cmd) {
			frames = append(frames, f)
		}
	}
	return frames
}

func (m *MockServer) Tokens() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.tokens...)
}

// Accepted is the number of connections upgraded so far.
func (m *MockServer) Accepted() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.accepted
}

func (m *MockServer) LiveConnections() int {
	return len(m.live())
}

func (m *MockServer) Close() {
	m.DropConnections()
	m.server.Close()
}

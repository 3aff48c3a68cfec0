package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtsdk/common/logger"
	"rtsdk/common/test_utils"
	"rtsdk/config"
	"rtsdk/credential"
	"rtsdk/mocks"
	"rtsdk/protocol"
)

const waitTimeout = 3 * time.Second

func testConfig(url string) config.ClientConfig {
	cfg := config.Default()
	cfg.ServerURL = url
	cfg.HandshakeTimeout = time.Second
	cfg.Reconnect = config.ReconnectConfig{Attempts: 3, Delay: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond}
	cfg.Heartbeat.Interval = 0
	return cfg
}

func newTestClient(t *testing.T, cfg config.ClientConfig, provider credential.Provider) *Client {
	c := New(cfg, provider, WithLogger(logger.NewNop()))
	t.Cleanup(c.Deactivate)
	return c
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 5*time.Millisecond)
}

func threadOf(t *testing.T, f protocol.Frame) string {
	t.Helper()
	var cmd protocol.ThreadCommand
	require.NoError(t, json.Unmarshal(f.Data, &cmd))
	return cmd.ThreadID
}

func names(frames []protocol.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

type stateLog struct {
	lock   sync.Mutex
	states []State
}

func (l *stateLog) observe(s State) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) connectedFlags() []bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	flags := make([]bool, 0, len(l.states))
	for _, s := range l.states {
		flags = append(flags, s.Connected)
	}
	return flags
}

func TestActivate_WithoutCredentialDoesNotDial(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static(""))

	state := c.Activate(context.Background(), Handlers{}).Get()
	assert.False(t, state.Connected)
	assert.True(t, errors.Is(state.LastError, ErrCredentialUnavailable))
	assert.True(t, errors.Is(c.LastError(), ErrCredentialUnavailable))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, server.Tokens())
	assert.Equal(t, 0, server.Accepted())

	c.JoinRoom("room-1")
	c.StartTyping("room-1")
	assert.Empty(t, c.ActiveRoom())
	assert.Empty(t, server.Commands())
}

func TestActivate_ConnectsWithBearerToken(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("session-token"))
	log := &stateLog{}
	c.Connection().On(log.observe)

	readable := c.Activate(context.Background(), Handlers{})
	eventually(t, func() bool { return readable.Get().Connected })

	assert.True(t, c.IsConnected())
	assert.NoError(t, c.LastError())
	assert.Equal(t, []string{"session-token"}, server.Tokens())
	assert.Equal(t, []bool{true}, log.connectedFlags())

	// a second Activate keeps the live transport
	c.Activate(context.Background(), Handlers{})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, server.Accepted())
}

func TestJoinRoom_RejoinsFirstAfterReconnect(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	var fetched int32
	provider := credential.ProviderFunc(func(context.Context) (string, error) {
		return fmt.Sprintf("token-%d", atomic.AddInt32(&fetched, 1)), nil
	})
	c := newTestClient(t, testConfig(server.URL()), provider)
	log := &stateLog{}
	c.Connection().On(log.observe)

	test_utils.NewTestGroup("reconnect", "active room survives a dropped connection").
		Run("activate", "connect and join room-1", func() {
			c.Activate(context.Background(), Handlers{})
			eventually(t, c.IsConnected)
			c.JoinRoom("room-1")
			eventually(t, func() bool { return len(server.CommandsNamed(protocol.CommandJoinThread)) == 1 })
		}).
		Run("drop", "server drops every connection", func() {
			server.DropConnections()
			eventually(t, func() bool { return server.Accepted() == 2 && c.IsConnected() })
		}).
		Then("rejoined", "join is re-emitted exactly once more", func() bool {
			return test_utils.Eventually(func() bool {
				return len(server.CommandsNamed(protocol.CommandJoinThread)) == 2
			}, waitTimeout)
		}).
		Run("type", "send a command after the reconnect", func() {
			c.StartTyping("room-1")
			eventually(t, func() bool { return len(server.Commands()) == 3 })
		}).
		Then("order", "re-join precedes every other command", func() bool {
			return assert.Equal(t, []string{"join:thread", "join:thread", "typing:start"}, names(server.Commands()))
		}).
		Then("fresh token", "reconnect fetched a new credential", func() bool {
			return assert.Equal(t, []string{"token-1", "token-2"}, server.Tokens())
		}).
		Then("states", "observers saw connect, drop, reconnect", func() bool {
			return assert.Equal(t, []bool{true, false, true}, log.connectedFlags())
		}).Do(t)

	for _, f := range server.CommandsNamed(protocol.CommandJoinThread) {
		assert.Equal(t, "room-1", threadOf(t, f))
	}
	assert.Equal(t, "room-1", c.ActiveRoom())
}

func TestJoinRoom_SwitchLeavesPreviousRoom(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)

	c.JoinRoom("room-1")
	c.JoinRoom("room-1")
	c.JoinRoom("room-2")
	eventually(t, func() bool { return len(server.Commands()) == 4 })

	cmds := server.Commands()
	assert.Equal(t, []string{"join:thread", "join:thread", "leave:thread", "join:thread"}, names(cmds))
	assert.Equal(t, "room-1", threadOf(t, cmds[2]))
	assert.Equal(t, "room-2", threadOf(t, cmds[3]))
	assert.Equal(t, "room-2", c.ActiveRoom())
}

func TestJoinRoom_WhileConnectingIsSentOnConnect(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	release := make(chan struct{})
	provider := credential.ProviderFunc(func(ctx context.Context) (string, error) {
		<-release
		return "token", nil
	})
	c := newTestClient(t, testConfig(server.URL()), provider)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Activate(context.Background(), Handlers{})
	}()
	eventually(t, func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		return c.activating
	})
	c.JoinRoom("room-9")
	assert.Equal(t, "room-9", c.ActiveRoom())
	close(release)
	<-done

	eventually(t, func() bool { return len(server.CommandsNamed(protocol.CommandJoinThread)) == 1 })
	assert.Equal(t, "room-9", threadOf(t, server.Commands()[0]))
}

func TestLeaveRoom(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)

	c.JoinRoom("room-1")
	c.LeaveRoom("room-0")
	c.LeaveRoom("")
	assert.Equal(t, "room-1", c.ActiveRoom())

	c.LeaveRoom("room-1")
	assert.Empty(t, c.ActiveRoom())
	eventually(t, func() bool { return len(server.Commands()) == 2 })
	assert.Equal(t, []string{"join:thread", "leave:thread"}, names(server.Commands()))

	// nothing to re-join after a reconnect
	server.DropConnections()
	eventually(t, func() bool { return server.Accepted() == 2 && c.IsConnected() })
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, server.Commands(), 2)
}

func TestCommands_PayloadsOnTheWire(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)

	c.StartTyping("room-1")
	c.StopTyping("room-1")
	c.StartTyping("")
	c.SendPresenceHeartbeat()
	require.NoError(t, c.SendPresenceSet(PresenceDoNotDisturb))
	assert.Equal(t, ErrInvalidPresenceStatus, c.SendPresenceSet(PresenceStatus(0)))
	eventually(t, func() bool { return len(server.Commands()) == 4 })

	cmds := server.Commands()
	assert.Equal(t, []string{"typing:start", "typing:stop", "presence:heartbeat", "presence:set"}, names(cmds))
	assert.JSONEq(t, `{"thread_id":"room-1"}`, string(cmds[0].Data))
	assert.JSONEq(t, `{}`, string(cmds[2].Data))
	assert.JSONEq(t, `{"status":"do-not-disturb"}`, string(cmds[3].Data))
}

func TestCommands_NoopWhileInactive(t *testing.T) {
	c := New(config.Default(), nil, WithLogger(logger.NewNop()))
	assert.NotPanics(t, func() {
		c.JoinRoom("room-1")
		c.LeaveRoom("room-1")
		c.StartTyping("room-1")
		c.StopTyping("room-1")
		c.SendPresenceHeartbeat()
		assert.NoError(t, c.SendPresenceSet(PresenceOnline))
	})
	assert.False(t, c.IsConnected())
	assert.Empty(t, c.ActiveRoom())
	assert.Equal(t, ErrNotActive, c.RotateCredential(context.Background()))
}

func TestDeactivate(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	received := int32(0)
	c.Activate(context.Background(), Handlers{OnMessage: func(protocol.MessageEvent) { atomic.AddInt32(&received, 1) }})
	eventually(t, c.IsConnected)
	c.JoinRoom("room-1")
	eventually(t, func() bool { return len(server.Commands()) == 1 })

	c.Deactivate()
	c.Deactivate()
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.LastError())
	assert.Empty(t, c.ActiveRoom())
	assert.False(t, c.Connection().Get().Connected)
	eventually(t, func() bool { return server.LiveConnections() == 0 })

	c.StartTyping("room-1")
	c.JoinRoom("room-2")
	_ = server.Push(protocol.EventMessageNew, protocol.MessageEvent{ThreadID: "t", Message: protocol.Message{ID: "m"}})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, server.Commands(), 1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&received))
	assert.Equal(t, 1, server.Accepted(), "no reconnect after teardown")
}

func TestDeactivate_FromCallback(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	received := int32(0)
	c.Activate(context.Background(), Handlers{OnMessage: func(protocol.MessageEvent) {
		atomic.AddInt32(&received, 1)
		c.Deactivate()
	}})
	eventually(t, c.IsConnected)

	msg := protocol.MessageEvent{ThreadID: "t", Message: protocol.Message{ID: "m"}}
	require.NoError(t, server.Push(protocol.EventMessageNew, msg))
	eventually(t, func() bool { return !c.IsConnected() })
	_ = server.Push(protocol.EventMessageNew, msg)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestEvents_DeliveredInOrder(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	var (
		lock sync.Mutex
		ids  []string
	)
	c.Activate(context.Background(), Handlers{OnMessage: func(e protocol.MessageEvent) {
		lock.Lock()
		defer lock.Unlock()
		ids = append(ids, e.Message.ID)
	}})
	eventually(t, c.IsConnected)

	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			require.NoError(t, server.Push(protocol.EventMessageNew,
				protocol.MessageEvent{ThreadID: "t", Message: protocol.Message{ID: fmt.Sprint(i)}}))
			continue
		}
		require.NoError(t, server.Push(protocol.EventMessageReceived,
			protocol.MessageEnvelope{ThreadID: "t", Item: &protocol.Message{ID: fmt.Sprint(i)}}))
	}
	eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(ids) == 30
	})
	for i, id := range ids {
		assert.Equal(t, fmt.Sprint(i), id)
	}
}

func TestSetHandlers_WhileConnected(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	var first, second int32
	c.Activate(context.Background(), Handlers{OnTypingStarted: func(protocol.TypingEvent) { atomic.AddInt32(&first, 1) }})
	eventually(t, c.IsConnected)
	c.SetHandlers(Handlers{OnTypingStarted: func(protocol.TypingEvent) { atomic.AddInt32(&second, 1) }})

	require.NoError(t, server.Push(protocol.EventTypingStarted, protocol.TypingEvent{ThreadID: "t", UserID: "u"}))
	eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 })
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
}

func TestSetHandlers_FromCallback(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	var first, second int32
	replacement := Handlers{OnMessage: func(protocol.MessageEvent) { atomic.AddInt32(&second, 1) }}
	c.Activate(context.Background(), Handlers{OnMessage: func(protocol.MessageEvent) {
		atomic.AddInt32(&first, 1)
		c.SetHandlers(replacement)
		c.Activate(context.Background(), replacement)
	}})
	eventually(t, c.IsConnected)

	msg := protocol.MessageEvent{ThreadID: "t", Message: protocol.Message{ID: "m"}}
	require.NoError(t, server.Push(protocol.EventMessageNew, msg))
	require.NoError(t, server.Push(protocol.EventMessageNew, msg))
	eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 })
	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, server.Accepted(), "activating a running client must not dial again")
}

func TestReconnect_StopsWhenCredentialDisappears(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	var calls int32
	provider := credential.ProviderFunc(func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "token", nil
		}
		return "", nil
	})
	c := newTestClient(t, testConfig(server.URL()), provider)
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)

	server.DropConnections()
	eventually(t, func() bool { return errors.Is(c.LastError(), ErrCredentialUnavailable) })
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 1, server.Accepted())
}

func TestReconnect_ExhaustedIsReported(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	var calls int32
	server.Authorize(func(string) bool { return atomic.AddInt32(&calls, 1) == 1 })
	c := newTestClient(t, testConfig(server.URL()), credential.Static("token"))
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)

	server.DropConnections()
	eventually(t, func() bool { return errors.Is(c.LastError(), ErrReconnectExhausted) })
	assert.False(t, c.IsConnected())
	assert.Len(t, server.Tokens(), 1+3)
	eventually(t, func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		return stopped(c.transport)
	})

	// the exhausted client can be activated again once the server accepts it
	server.Authorize(nil)
	c.Activate(context.Background(), Handlers{})
	eventually(t, c.IsConnected)
}

func TestRotateCredential(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	var fetched int32
	provider := credential.ProviderFunc(func(context.Context) (string, error) {
		return fmt.Sprintf("token-%d", atomic.AddInt32(&fetched, 1)), nil
	})
	c := newTestClient(t, testConfig(server.URL()), provider)
	var typing int32
	c.Activate(context.Background(), Handlers{OnTypingStarted: func(protocol.TypingEvent) { atomic.AddInt32(&typing, 1) }})
	eventually(t, c.IsConnected)
	c.JoinRoom("room-1")

	require.NoError(t, c.RotateCredential(context.Background()))
	eventually(t, func() bool { return server.Accepted() == 2 && c.IsConnected() })
	eventually(t, func() bool { return len(server.CommandsNamed(protocol.CommandJoinThread)) == 2 })
	assert.Equal(t, []string{"token-1", "token-2"}, server.Tokens())
	assert.Equal(t, "room-1", c.ActiveRoom())
	eventually(t, func() bool { return server.LiveConnections() == 1 })

	require.NoError(t, server.Push(protocol.EventTypingStarted, protocol.TypingEvent{ThreadID: "room-1", UserID: "u"}))
	eventually(t, func() bool { return atomic.LoadInt32(&typing) == 1 })
}

func TestHeartbeat_RunsOnlyWhileConnected(t *testing.T) {
	server := mocks.NewMockServer()
	defer server.Close()
	cfg := testConfig(server.URL())
	cfg.Heartbeat.Interval = 20 * time.Millisecond
	c := newTestClient(t, cfg, credential.Static("token"))
	c.Activate(context.Background(), Handlers{})

	eventually(t, func() bool { return len(server.CommandsNamed(protocol.CommandPresenceHeartbeat)) >= 2 })
	c.Deactivate()
	time.Sleep(30 * time.Millisecond)
	sent := len(server.CommandsNamed(protocol.CommandPresenceHeartbeat))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, sent, len(server.CommandsNamed(protocol.CommandPresenceHeartbeat)))
}

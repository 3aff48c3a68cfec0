package client

import (
	"rtsdk/common/ctimer"
	"rtsdk/protocol"
)

// emitLocked writes one command frame. Callers hold c.lock. Nothing is sent while disconnected,
// and a failed write is logged and swallowed.
func (c *Client) emitLocked(cmd protocol.Command, payload interface{}) {
	if !c.connected || c.transport == nil {
		return
	}
	raw, err := protocol.EncodeCommand(cmd, payload)
	if err != nil {
		c.logger.Errorf("encode %s: %s", cmd, err.Error())
		return
	}
	if err := c.transport.Write(raw); err != nil {
		c.logger.Debugf("%s not sent: %s", cmd, err.Error())
	}
}

func (c *Client) emit(cmd protocol.Command, payload interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.emitLocked(cmd, payload)
}

// JoinRoom makes roomID the active room, leaving the previous one first. While disconnected the
// room is only recorded and gets joined on the next connect. An inactive client ignores the call.
func (c *Client) JoinRoom(roomID string) {
	if roomID == "" {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.transport == nil && !c.activating {
		return
	}
	if c.activeRoom != "" && c.activeRoom != roomID {
		c.emitLocked(protocol.CommandLeaveThread, protocol.ThreadCommand{ThreadID: c.activeRoom})
	}
	c.emitLocked(protocol.CommandJoinThread, protocol.ThreadCommand{ThreadID: roomID})
	c.activeRoom = roomID
}

// LeaveRoom leaves roomID if it is the active room; a stale id is ignored.
func (c *Client) LeaveRoom(roomID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if roomID == "" || roomID != c.activeRoom {
		return
	}
	c.emitLocked(protocol.CommandLeaveThread, protocol.ThreadCommand{ThreadID: roomID})
	c.activeRoom = ""
}

func (c *Client) StartTyping(roomID string) {
	if roomID == "" {
		return
	}
	c.emit(protocol.CommandTypingStart, protocol.ThreadCommand{ThreadID: roomID})
}

func (c *Client) StopTyping(roomID string) {
	if roomID == "" {
		return
	}
	c.emit(protocol.CommandTypingStop, protocol.ThreadCommand{ThreadID: roomID})
}

func (c *Client) SendPresenceHeartbeat() {
	c.emit(protocol.CommandPresenceHeartbeat, nil)
}

// SendPresenceSet announces status. Only an invalid status is reported; a disconnected client
// silently drops the command like every other emitter.
func (c *Client) SendPresenceSet(status PresenceStatus) error {
	if !status.Valid() {
		return ErrInvalidPresenceStatus
	}
	c.emit(protocol.CommandPresenceSet, protocol.PresenceSetCommand{Status: status.String()})
	return nil
}

func (c *Client) startHeartbeatLocked() {
	c.stopHeartbeatLocked()
	if c.config.Heartbeat.Interval <= 0 {
		return
	}
	c.heartbeat = ctimer.New(c.config.Heartbeat.Interval, c.SendPresenceHeartbeat)
	c.heartbeat.Repeat()
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		c.heartbeat.Cancel()
		c.heartbeat = nil
	}
}

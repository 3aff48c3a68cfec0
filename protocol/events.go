// Package protocol defines the JSON frames exchanged over the real-time channel: the named push
// events the server emits and the fire-and-forget commands the client sends.
package protocol

// Event is the name of a server push event.
type Event string

const (
	EventMessageReceived Event = "message-received"
	EventMessageNew      Event = "message-new"
	EventTypingStarted   Event = "typing-started"
	EventTypingStopped   Event = "typing-stopped"
	EventMessageRead     Event = "message-read"
	EventThreadUpdated   Event = "thread-updated"
	EventReactionAdded   Event = "reaction-added"
	EventReactionRemoved Event = "reaction-removed"
	EventPresenceChanged Event = "presence-changed"
)

// Events lists every push event the client understands.
var Events = []Event{
	EventMessageReceived,
	EventMessageNew,
	EventTypingStarted,
	EventTypingStopped,
	EventMessageRead,
	EventThreadUpdated,
	EventReactionAdded,
	EventReactionRemoved,
	EventPresenceChanged,
}

func (e Event) Known() bool {
	for _, known := range Events {
		if known == e {
			return true
		}
	}
	return false
}

// Command is the name of a client-to-server command.
type Command string

const (
	CommandJoinThread        Command = "join:thread"
	CommandLeaveThread       Command = "leave:thread"
	CommandTypingStart       Command = "typing:start"
	CommandTypingStop        Command = "typing:stop"
	CommandPresenceHeartbeat Command = "presence:heartbeat"
	CommandPresenceSet       Command = "presence:set"
)

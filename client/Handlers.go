package client

import (
	"encoding/json"

	"rtsdk/protocol"
)

// Handlers is the full set of event callbacks. A nil field means the event is ignored.
type Handlers struct {
	// OnMessage receives both message-new and message-received, the latter translated from its
	// {thread_id, item} envelope.
	OnMessage         func(protocol.MessageEvent)
	OnTypingStarted   func(protocol.TypingEvent)
	OnTypingStopped   func(protocol.TypingEvent)
	OnMessageRead     func(protocol.ReadEvent)
	OnThreadUpdated   func(protocol.ThreadUpdatedEvent)
	OnReactionAdded   func(protocol.ReactionEvent)
	OnReactionRemoved func(protocol.ReactionEvent)
	OnPresenceChanged func(protocol.PresenceEvent)
}

// listener decodes one event payload and invokes its callback. A decode or validation error
// means the callback was not invoked.
type listener func(data json.RawMessage) error

type dispatchTable map[protocol.Event]listener

func bind[T any, PT interface {
	*T
	protocol.Validatable
}](cb func(T)) listener {
	return func(data json.RawMessage) error {
		var v T
		if err := protocol.DecodePayload(data, PT(&v)); err != nil {
			return err
		}
		cb(v)
		return nil
	}
}

func bindEnvelope(cb func(protocol.MessageEvent)) listener {
	return func(data json.RawMessage) error {
		var env protocol.MessageEnvelope
		if err := protocol.DecodePayload(data, &env); err != nil {
			return err
		}
		cb(env.Logical())
		return nil
	}
}

func (h Handlers) listenerFor(event protocol.Event) listener {
	switch event {
	case protocol.EventMessageReceived:
		if h.OnMessage != nil {
			return bindEnvelope(h.OnMessage)
		}
	case protocol.EventMessageNew:
		if h.OnMessage != nil {
			return bind(h.OnMessage)
		}
	case protocol.EventTypingStarted:
		if h.OnTypingStarted != nil {
			return bind(h.OnTypingStarted)
		}
	case protocol.EventTypingStopped:
		if h.OnTypingStopped != nil {
			return bind(h.OnTypingStopped)
		}
	case protocol.EventMessageRead:
		if h.OnMessageRead != nil {
			return bind(h.OnMessageRead)
		}
	case protocol.EventThreadUpdated:
		if h.OnThreadUpdated != nil {
			return bind(h.OnThreadUpdated)
		}
	case protocol.EventReactionAdded:
		if h.OnReactionAdded != nil {
			return bind(h.OnReactionAdded)
		}
	case protocol.EventReactionRemoved:
		if h.OnReactionRemoved != nil {
			return bind(h.OnReactionRemoved)
		}
	case protocol.EventPresenceChanged:
		if h.OnPresenceChanged != nil {
			return bind(h.OnPresenceChanged)
		}
	}
	return nil
}

// table rebuilds the listener set from scratch: every known event is unregistered and then
// registered again only if h has a callback for it.
func (h Handlers) table(previous dispatchTable) dispatchTable {
	next := make(dispatchTable, len(protocol.Events))
	for event, l := range previous {
		next[event] = l
	}
	for _, event := range protocol.Events {
		delete(next, event)
		if l := h.listenerFor(event); l != nil {
			next[event] = l
		}
	}
	return next
}

package protocol

import (
	"encoding/json"
)

// Message is a chat message as pushed by the server. Raw keeps the full object so callers can
// decode fields this package does not model.
type Message struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Message(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type plain Message
	return json.Marshal(plain(m))
}

// MessageEvent is the logical shape delivered to message callbacks, whichever of
// message-new or message-received carried it.
type MessageEvent struct {
	ThreadID string  `json:"thread_id"`
	Message  Message `json:"message"`
}

func (e *MessageEvent) Validate() error {
	if e.ThreadID == "" {
		return missing("thread_id")
	}
	if e.Message.ID == "" {
		return missing("message.id")
	}
	return nil
}

// MessageEnvelope is the wire shape of message-received.
type MessageEnvelope struct {
	ThreadID string   `json:"thread_id"`
	Item     *Message `json:"item"`
}

func (e *MessageEnvelope) Validate() error {
	if e.ThreadID == "" {
		return missing("thread_id")
	}
	if e.Item == nil || e.Item.ID == "" {
		return missing("item.id")
	}
	return nil
}

func (e *MessageEnvelope) Logical() MessageEvent {
	return MessageEvent{ThreadID: e.ThreadID, Message: *e.Item}
}

type TypingEvent struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
}

func (e *TypingEvent) Validate() error {
	if e.ThreadID == "" {
		return missing("thread_id")
	}
	if e.UserID == "" {
		return missing("user_id")
	}
	return nil
}

// ReadEvent reports that UserID has read MessageID.
type ReadEvent struct {
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	ReadAt    string `json:"read_at,omitempty"`
}

func (e *ReadEvent) Validate() error {
	if e.MessageID == "" {
		return missing("message_id")
	}
	if e.UserID == "" {
		return missing("user_id")
	}
	return nil
}

// ThreadUpdatedEvent carries the changed thread attributes; every key other than thread_id ends
// up in Changes.
type ThreadUpdatedEvent struct {
	ThreadID string
	Changes  map[string]json.RawMessage
}

func (e *ThreadUpdatedEvent) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["thread_id"]; ok {
		if err := json.Unmarshal(raw, &e.ThreadID); err != nil {
			return err
		}
		delete(fields, "thread_id")
	}
	e.Changes = fields
	return nil
}

func (e ThreadUpdatedEvent) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(e.Changes)+1)
	for k, v := range e.Changes {
		fields[k] = v
	}
	id, err := json.Marshal(e.ThreadID)
	if err != nil {
		return nil, err
	}
	fields["thread_id"] = id
	return json.Marshal(fields)
}

func (e *ThreadUpdatedEvent) Validate() error {
	if e.ThreadID == "" {
		return missing("thread_id")
	}
	return nil
}

type ReactionEvent struct {
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
}

func (e *ReactionEvent) Validate() error {
	switch {
	case e.MessageID == "":
		return missing("message_id")
	case e.Emoji == "":
		return missing("emoji")
	case e.UserID == "":
		return missing("user_id")
	}
	return nil
}

type PresenceEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (e *PresenceEvent) Validate() error {
	if e.UserID == "" {
		return missing("user_id")
	}
	if e.Status == "" {
		return missing("status")
	}
	return nil
}

// ThreadCommand is the payload of join, leave and typing commands.
type ThreadCommand struct {
	ThreadID string `json:"thread_id"`
}

type PresenceSetCommand struct {
	Status string `json:"status"`
}

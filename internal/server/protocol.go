// Package server defines the wire protocol shared by the client and hub
// logic: the event envelope, request payloads, and log entry format.
package server

import "encoding/json"

// Inbound event names. They match the reference web client verbatim so it can
// talk to this server without modification.
const (
	EventCreateGroup = "create-group"
	EventJoinGroup   = "join-group"
	EventChangeName  = "change-name"
	EventLeaveGroup  = "leave-group"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
)

// Outbound push event names.
const (
	EventNewMessage    = "new-message"
	EventMembersUpdate = "members-update"
	EventUserTyping    = "user-typing"
)

// Entry kinds stored in a group log.
const (
	KindMessage      = "message"
	KindNotification = "notification"
)

// SystemAuthor is the display name attached to every synthesized notification.
const SystemAuthor = "System"

// Envelope frames every WebSocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Entry is one element of a group's ordered log: a user message or a system
// notification. Timestamps are Unix milliseconds.
type Entry struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// CreateGroupRequest is the payload of a create-group event.
type CreateGroupRequest struct {
	UserName string `json:"userName"`
}

// JoinGroupRequest is the payload of a join-group event.
type JoinGroupRequest struct {
	UserName  string `json:"userName"`
	GroupCode string `json:"groupCode"`
}

// ChangeNameRequest is the payload of a change-name event.
type ChangeNameRequest struct {
	NewName string `json:"newName"`
}

// SendMessageRequest is the payload of a send-message event.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// TypingRequest is the payload of a typing event.
type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// AckResponse is the reply to an acked operation (create-group, join-group,
// change-name): success plus either the result or a user-facing failure
// message. The shape matches the callback payload the web client expects.
type AckResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message,omitempty"`
	GroupCode string   `json:"groupCode,omitempty"`
	Members   []string `json:"members,omitempty"`
	Messages  []Entry  `json:"messages,omitempty"`
}

// TypingEvent is the payload pushed with a user-typing event.
type TypingEvent struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// marshalEnvelope encodes an outbound frame. A marshal failure is logged and
// yields nil, which the delivery path treats as "nothing to send".
func marshalEnvelope(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return nil
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to marshal envelope")
		return nil
	}
	return frame
}

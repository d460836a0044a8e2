// Package protocol defines the JSON frames exchanged over the chat socket.
// Every frame, both directions, is {"event": ..., "data": ...}; payload
// shapes follow the clinic frontend's contract, so field names here are
// load-bearing.
package protocol

import (
	"encoding/json"
	"time"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
)

// Inbound event names.
const (
	EventJoinConversation       = "join_conversation"
	EventLeaveConversation      = "leave_conversation"
	EventSendMessage            = "send_message"
	EventMarkAsRead             = "mark_as_read"
	EventGetConversationHistory = "get_conversation_history"
	EventGetUnreadCount         = "get_unread_count"
	EventUserTyping             = "user_typing"
)

// Outbound event names.
const (
	EventAuthSuccess         = "auth_success"
	EventJoinedConversation  = "joined_conversation"
	EventNewMessage          = "new_message"
	EventMessagesRead        = "messages_read"
	EventTyping              = "typing"
	EventConversationHistory = "conversation_history"
	EventUnreadCount         = "unread_count"
	EventUnreadCounts        = "unread_counts"
	EventNotification        = "notification"
	EventError               = "error"
)

// Error codes attached to outbound error frames.
const (
	CodeAuth        = "auth"
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeCrypto      = "crypto"
	CodePersistence = "persistence"
)

// Frame is the envelope for every socket event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame payload into v. A frame with no payload
// decodes into the zero value.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

// Encode builds the wire bytes for an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// ConversationRef is the payload for join_conversation, leave_conversation
// and user_typing.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// SendMessagePayload is the inbound send_message request. Encrypted is a
// pointer so an omitted flag (defaults to true) is distinguishable from an
// explicit false.
type SendMessagePayload struct {
	ConversationID string  `json:"conversation_id"`
	Content        string  `json:"content"`
	Encrypted      *bool   `json:"encrypted"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
}

// MarkAsReadPayload is the inbound mark_as_read request. ConversationID is
// optional; when present the read receipt is broadcast to that room.
type MarkAsReadPayload struct {
	MessageIDs     []string `json:"message_ids"`
	ConversationID string   `json:"conversation_id"`
}

// GetHistoryPayload is the inbound get_conversation_history request.
type GetHistoryPayload struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

// GetUnreadCountPayload is the inbound get_unread_count request. An empty
// ConversationID asks for the per-conversation breakdown.
type GetUnreadCountPayload struct {
	ConversationID string `json:"conversation_id"`
}

// AuthSuccessPayload acknowledges a verified handshake.
type AuthSuccessPayload struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// JoinedConversationPayload acknowledges a room join to the requester.
type JoinedConversationPayload struct {
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// MessagesReadPayload is the read receipt broadcast to the room. MessageIDs
// echoes the request list; UserID is the reader.
type MessagesReadPayload struct {
	MessageIDs []string `json:"message_ids"`
	UserID     string   `json:"user_id"`
	Timestamp  string   `json:"timestamp"`
}

// TypingPayload is the typing indicator broadcast to the room.
type TypingPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// ConversationHistoryPayload is one page of messages, newest first. Total
// counts the messages in this page; HasMore reports a full page.
type ConversationHistoryPayload struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []WireMessage `json:"messages"`
	Total          int           `json:"total"`
	HasMore        bool          `json:"has_more"`
}

// UnreadCountPayload answers a conversation-scoped unread query.
type UnreadCountPayload struct {
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}

// UnreadCountsPayload answers an unscoped unread query.
type UnreadCountsPayload struct {
	Total          int            `json:"total"`
	ByConversation map[string]int `json:"by_conversation"`
}

// NotificationPayload nudges a recipient about a stored message, addressed
// to every live connection of that participant rather than to a room.
type NotificationPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderType     string `json:"sender_type"`
	Timestamp      string `json:"timestamp"`
}

// ErrorPayload is sent only to the connection that caused the error.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WireMessage is the client-facing message shape. Nullable ids stay explicit
// nulls rather than disappearing, and the send time travels as "timestamp".
type WireMessage struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	PatientID      *string `json:"patient_id"`
	UserID         *string `json:"user_id"`
	SenderType     string  `json:"sender_type"`
	Content        string  `json:"content"`
	Encrypted      bool    `json:"encrypted"`
	Read           bool    `json:"read"`
	ReadAt         *string `json:"read_at"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
	Timestamp      string  `json:"timestamp"`
}

// NewWireMessage converts a domain message to its wire shape.
func NewWireMessage(m chat.Message) WireMessage {
	w := WireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		PatientID:      m.PatientID,
		UserID:         m.UserID,
		SenderType:     m.SenderType,
		Content:        m.Content,
		Encrypted:      m.Encrypted,
		Read:           m.Read,
		AttachmentURL:  m.AttachmentURL,
		AttachmentType: m.AttachmentType,
		Timestamp:      m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.ReadAt != nil {
		readAt := m.ReadAt.Format(time.RFC3339Nano)
		w.ReadAt = &readAt
	}
	return w
}

// NewWireMessages converts a page of domain messages, preserving order.
func NewWireMessages(msgs []chat.Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewWireMessage(m))
	}
	return out
}

// Now is the wire timestamp format used by event payloads.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

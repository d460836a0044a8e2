package chat

import (
	"errors"
	"strings"
	"time"
)

// Domain-level errors for message invariants
var (
	ErrMissingConversation = errors.New("chat: conversation_id is required")
	ErrMissingContent      = errors.New("chat: content is required")
	ErrUnknownSenderType   = errors.New("chat: sender_type must be patient or staff")
	ErrSenderMismatch      = errors.New("chat: sender ids do not match sender_type")
)

// SenderType values stored on message rows.
const (
	SenderTypePatient = "patient"
	SenderTypeStaff   = "staff"
)

// Message is an immutable log entry in a conversation. Exactly one side
// authors it: a patient-sent message carries PatientID and no UserID; a
// staff-sent message carries UserID, plus the conversation's patient party
// in PatientID when it could be resolved.
type Message struct {
	ID             string     `db:"id"`
	ConversationID string     `db:"conversation_id"`
	PatientID      *string    `db:"patient_id"`
	UserID         *string    `db:"user_id"`
	SenderType     string     `db:"sender_type"`
	Content        string     `db:"content"`
	Encrypted      bool       `db:"encrypted"`
	Read           bool       `db:"read"`
	ReadAt         *time.Time `db:"read_at"`
	AttachmentURL  *string    `db:"attachment_url"`
	AttachmentType *string    `db:"attachment_type"`
	DedupeKey      *string    `db:"dedupe_key"`
	CreatedAt      time.Time  `db:"created_at"`
}

// NewMessage validates and normalizes a message ready to broadcast and
// persist. CreatedAt defaults to now (UTC).
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" {
		return nil, ErrMissingConversation
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return nil, ErrMissingContent
	}

	switch m.SenderType {
	case SenderTypePatient:
		if m.PatientID == nil || *m.PatientID == "" || m.UserID != nil {
			return nil, ErrSenderMismatch
		}
	case SenderTypeStaff:
		if m.UserID == nil || *m.UserID == "" {
			return nil, ErrSenderMismatch
		}
	default:
		return nil, ErrUnknownSenderType
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	return &m, nil
}

// AuthorID returns the id of whoever sent the message.
func (m *Message) AuthorID() string {
	if m.SenderType == SenderTypePatient && m.PatientID != nil {
		return *m.PatientID
	}
	if m.UserID != nil {
		return *m.UserID
	}
	return ""
}

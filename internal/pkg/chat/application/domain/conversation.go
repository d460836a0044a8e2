package chat

import "time"

// ConversationMetadata describes a conversation's parties. Conversations are
// not standalone records: identity and parties derive from the messages that
// reference the conversation id, so this is computed, never persisted.
type ConversationMetadata struct {
	ConversationID string    `json:"conversation_id"`
	PatientID      *string   `json:"patient_id"`
	StaffID        *string   `json:"staff_id"`
	StartedAt      time.Time `json:"started_at"`
}

// DeriveConversationMetadata reads the parties off the conversation's first
// message. A staff-opened conversation has no patient party until the
// patient writes (or vice versa), so either side may be nil.
func DeriveConversationMetadata(first *Message) ConversationMetadata {
	meta := ConversationMetadata{
		ConversationID: first.ConversationID,
		StartedAt:      first.CreatedAt,
	}
	if first.PatientID != nil && *first.PatientID != "" {
		meta.PatientID = first.PatientID
	}
	if first.UserID != nil && *first.UserID != "" {
		meta.StaffID = first.UserID
	}
	return meta
}

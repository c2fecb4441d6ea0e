package models

import "time"

// IdentityMapping links a transport chat to its support-platform contact
// and conversation. At most one mapping exists per (session, chat) pair.
type IdentityMapping struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"sessionId"`
	ChatID         string    `json:"chatId"`
	CanonicalID    string    `json:"canonicalId"`
	ContactID      int       `json:"contactId"`
	ConversationID int       `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MessageImportRecord marks a source message as already mirrored to the
// platform. Append-only; existence is the dedup check.
type MessageImportRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"sessionId"`
	ConversationID  int       `json:"conversationId"`
	SourceMessageID string    `json:"sourceMessageId"`
	CreatedAt       time.Time `json:"createdAt"`
}

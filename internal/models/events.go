package models

import (
	"strings"
	"time"
)

// EventKind identifies a domain event emitted by the transport layer.
type EventKind string

const (
	EventMessageReceived EventKind = "message.received"
	EventMessageSent     EventKind = "message.sent"
	EventMessageUpdated  EventKind = "message.updated"
	EventContactUpdated  EventKind = "contact.updated"
	EventChatUpdated     EventKind = "chat.updated"
	EventGroupUpdated    EventKind = "group.updated"
	EventCallReceived    EventKind = "call.received"
	EventPresenceUpdated EventKind = "presence.updated"
	EventSessionStatus   EventKind = "session.status"

	// EventWildcard subscribes a webhook to every event kind.
	EventWildcard EventKind = "*"
)

var knownEventKinds = map[EventKind]bool{
	EventMessageReceived: true,
	EventMessageSent:     true,
	EventMessageUpdated:  true,
	EventContactUpdated:  true,
	EventChatUpdated:     true,
	EventGroupUpdated:    true,
	EventCallReceived:    true,
	EventPresenceUpdated: true,
	EventSessionStatus:   true,
}

// Valid reports whether k is a known event kind. The wildcard is only
// valid as a subscription filter, never on an event itself.
func (k EventKind) Valid() bool {
	return knownEventKinds[k]
}

// ValidFilter reports whether k may appear in a subscription's event set.
func (k EventKind) ValidFilter() bool {
	return k == EventWildcard || knownEventKinds[k]
}

// MessageType classifies message content for sync purposes.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeMedia    MessageType = "media"
	MessageTypeReaction MessageType = "reaction"
	MessageTypeProtocol MessageType = "protocol"
	MessageTypeSystem   MessageType = "system"
)

// ChatKind classifies a chat identifier by its transport suffix.
type ChatKind string

const (
	ChatKindPrivate    ChatKind = "private"
	ChatKindGroup      ChatKind = "group"
	ChatKindBroadcast  ChatKind = "broadcast"
	ChatKindNewsletter ChatKind = "newsletter"
	ChatKindLid        ChatKind = "lid"
)

// ChatKindOf determines the chat kind from a transport chat identifier.
func ChatKindOf(chatID string) ChatKind {
	switch {
	case strings.HasSuffix(chatID, "@g.us"):
		return ChatKindGroup
	case strings.HasSuffix(chatID, "@broadcast"):
		return ChatKindBroadcast
	case strings.HasSuffix(chatID, "@newsletter"):
		return ChatKindNewsletter
	case strings.HasSuffix(chatID, "@lid"):
		return ChatKindLid
	default:
		return ChatKindPrivate
	}
}

// MessageEvent carries a message upsert or update from the transport layer.
type MessageEvent struct {
	MessageID     string      `json:"messageId"`
	ChatID        string      `json:"chatId"`
	SenderID      string      `json:"senderId"`
	SenderName    string      `json:"senderName,omitempty"`
	FromMe        bool        `json:"fromMe"`
	Type          MessageType `json:"type"`
	Body          string      `json:"body,omitempty"`
	MediaURL      string      `json:"mediaUrl,omitempty"`
	MediaMimeType string      `json:"mediaMimeType,omitempty"`
	MediaFilename string      `json:"mediaFilename,omitempty"`
	ReactionTo    string      `json:"reactionTo,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ContactEvent carries a contact profile update.
type ContactEvent struct {
	ContactID   string `json:"contactId"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
	PushName    string `json:"pushName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	InAddressBook bool `json:"inAddressBook"`
}

// ChatEvent carries an archive/pin/mute style chat state change.
type ChatEvent struct {
	ChatID   string `json:"chatId"`
	Archived *bool  `json:"archived,omitempty"`
	Pinned   *bool  `json:"pinned,omitempty"`
	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
}

// GroupEvent carries a group metadata or membership update.
type GroupEvent struct {
	ChatID       string   `json:"chatId"`
	Subject      string   `json:"subject,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Action       string   `json:"action,omitempty"`
}

// CallEvent carries an incoming call notification.
type CallEvent struct {
	CallID   string `json:"callId"`
	ChatID   string `json:"chatId"`
	CallerID string `json:"callerId"`
	IsVideo  bool   `json:"isVideo"`
}

// PresenceEvent carries a presence change for a chat participant.
type PresenceEvent struct {
	ChatID   string `json:"chatId"`
	Presence string `json:"presence"`
}

// SessionStatusEvent carries session lifecycle data, including QR/pairing
// payloads during connect flows and failure reasons.
type SessionStatusEvent struct {
	QRCode      string `json:"qrCode,omitempty"`
	QRBase64    string `json:"qrBase64,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Event is the closed union of domain events flowing through the ingest
// pipeline. Exactly one payload pointer is set, matching Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"event"`
	SessionID string    `json:"sessionId"`
	Session   string    `json:"session"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	Message  *MessageEvent       `json:"message,omitempty"`
	Contact  *ContactEvent       `json:"contact,omitempty"`
	Chat     *ChatEvent          `json:"chat,omitempty"`
	Group    *GroupEvent         `json:"group,omitempty"`
	Call     *CallEvent          `json:"call,omitempty"`
	Presence *PresenceEvent      `json:"presence,omitempty"`
	Lifecycle *SessionStatusEvent `json:"lifecycle,omitempty"`
}

// Payload returns the event-specific data object for the webhook envelope,
// or nil when the event carries none.
func (e *Event) Payload() interface{} {
	switch {
	case e.Message != nil:
		return e.Message
	case e.Contact != nil:
		return e.Contact
	case e.Chat != nil:
		return e.Chat
	case e.Group != nil:
		return e.Group
	case e.Call != nil:
		return e.Call
	case e.Presence != nil:
		return e.Presence
	case e.Lifecycle != nil:
		return e.Lifecycle
	default:
		return nil
	}
}

package chatwoot

// Conversation statuses used by the platform.
const (
	ConversationStatusOpen     = "open"
	ConversationStatusPending  = "pending"
	ConversationStatusResolved = "resolved"
	ConversationStatusSnoozed  = "snoozed"
)

// Message directions accepted by the message-create endpoint.
const (
	MessageIncoming = "incoming"
	MessageOutgoing = "outgoing"
)

// ContactPayload is the body for contact creation.
type ContactPayload struct {
	InboxID     int    `json:"inbox_id"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Contact is a platform contact.
type Contact struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
	Email       string `json:"email"`
}

type contactSearchResponse struct {
	Payload []Contact `json:"payload"`
}

type contactCreateResponse struct {
	Payload struct {
		Contact Contact `json:"contact"`
	} `json:"payload"`
	// Some platform versions return the contact at the top level instead.
	Contact
}

// ConversationPayload is the body for conversation creation.
type ConversationPayload struct {
	SourceID  string `json:"source_id,omitempty"`
	InboxID   int    `json:"inbox_id"`
	ContactID int    `json:"contact_id"`
	Status    string `json:"status,omitempty"`
}

// Conversation is a platform conversation.
type Conversation struct {
	ID      int    `json:"id"`
	InboxID int    `json:"inbox_id"`
	Status  string `json:"status"`
}

type conversationListResponse struct {
	Payload []Conversation `json:"payload"`
}

// MessagePayload is the body for message creation. SourceID carries the
// transport message id for traceability; the external timestamp rides on
// ContentAttributes so out-of-order appends keep their original time.
type MessagePayload struct {
	Content           string                 `json:"content,omitempty"`
	MessageType       string                 `json:"message_type"`
	Private           bool                   `json:"private"`
	SourceID          string                 `json:"source_id,omitempty"`
	ContentAttributes map[string]interface{} `json:"content_attributes,omitempty"`
}

// Message is a platform message.
type Message struct {
	ID             int    `json:"id"`
	Content        string `json:"content"`
	ConversationID int    `json:"conversation_id"`
	MessageType    int    `json:"message_type"`
	CreatedAt      int64  `json:"created_at"`
}

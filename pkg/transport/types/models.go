package types

import "time"

// ClientConfig configures the transport API client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	SessionName string
	Timeout     time.Duration
}

// Contact is a transport-side address book entry.
type Contact struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	PushName    string `json:"pushName"`
	IsMyContact bool   `json:"isMyContact"`
	IsGroup     bool   `json:"isGroup"`
}

// GetDisplayName returns the best available name for the contact.
func (c *Contact) GetDisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.PushName != "" {
		return c.PushName
	}
	return c.Number
}

// Chat is one conversation on the messaging side.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// StoredMessage is one historical message returned by the transport's
// chat history endpoint.
type StoredMessage struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chatId"`
	SenderID      string    `json:"from"`
	SenderName    string    `json:"senderName,omitempty"`
	FromMe        bool      `json:"fromMe"`
	Type          string    `json:"type"`
	Body          string    `json:"body,omitempty"`
	MediaURL      string    `json:"mediaUrl,omitempty"`
	MediaMimeType string    `json:"mediaMimeType,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SendMessageResponse is the transport's reply to an imperative send.
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ProfilePicture is the result of a profile picture fetch.
type ProfilePicture struct {
	URL string `json:"url"`
}

package types

import "context"

// Client is the imperative surface of the session-management layer. The
// event stream arrives separately, over the ingest webhook.
type Client interface {
	GetSessionName() string

	GetContacts(ctx context.Context, limit, offset int) ([]Contact, error)
	GetChats(ctx context.Context, limit, offset int) ([]Chat, error)
	GetChatMessages(ctx context.Context, chatID string, limit, offset int) ([]StoredMessage, error)

	SendText(ctx context.Context, chatID, text string) (*SendMessageResponse, error)
	GetProfilePicture(ctx context.Context, contactID string) (*ProfilePicture, error)
	RejectCall(ctx context.Context, callID string) error
}

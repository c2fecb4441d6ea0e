// Package transport talks to the session-management layer that owns the
// wire protocol. It exposes the imperative operations; decoded domain
// events flow the other way, into the ingest webhook.
package transport

import (
	"context"
	"fmt"

	"supportbridge/pkg/transport/types"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx transport response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transport API %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type client struct {
	http        *resty.Client
	sessionName string
}

// NewClient creates a transport client bound to one session.
func NewClient(config types.ClientConfig) types.Client {
	http := resty.New().
		SetBaseURL(config.BaseURL).
		SetHeader("X-Api-Key", config.APIKey).
		SetTimeout(config.Timeout)

	return &client{
		http:        http,
		sessionName: config.SessionName,
	}
}

func (c *client) GetSessionName() string {
	return c.sessionName
}

func (c *client) GetContacts(ctx context.Context, limit, offset int) ([]types.Contact, error) {
	endpoint := fmt.Sprintf("/api/%s/contacts", c.sessionName)

	var contacts []types.Contact
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("offset", fmt.Sprintf("%d", offset)).
		SetResult(&contacts).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return contacts, nil
}

func (c *client) GetChats(ctx context.Context, limit, offset int) ([]types.Chat, error) {
	endpoint := fmt.Sprintf("/api/%s/chats", c.sessionName)

	var chats []types.Chat
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("offset", fmt.Sprintf("%d", offset)).
		SetResult(&chats).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chats: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return chats, nil
}

func (c *client) GetChatMessages(ctx context.Context, chatID string, limit, offset int) ([]types.StoredMessage, error) {
	endpoint := fmt.Sprintf("/api/%s/chats/%s/messages", c.sessionName, chatID)

	var messages []types.StoredMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("offset", fmt.Sprintf("%d", offset)).
		SetResult(&messages).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat messages: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return messages, nil
}

func (c *client) SendText(ctx context.Context, chatID, text string) (*types.SendMessageResponse, error) {
	endpoint := fmt.Sprintf("/api/%s/sendText", c.sessionName)

	var result types.SendMessageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chatId": chatID, "text": text}).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return &result, nil
}

func (c *client) GetProfilePicture(ctx context.Context, contactID string) (*types.ProfilePicture, error) {
	endpoint := fmt.Sprintf("/api/%s/contacts/%s/profile-picture", c.sessionName, contactID)

	var result types.ProfilePicture
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile picture: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return &result, nil
}

func (c *client) RejectCall(ctx context.Context, callID string) error {
	endpoint := fmt.Sprintf("/api/%s/calls/%s/reject", c.sessionName, callID)

	resp, err := c.http.R().
		SetContext(ctx).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("failed to reject call: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return nil
}

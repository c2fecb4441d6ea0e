// Package chatwoot is a client for the support-platform REST API:
// contacts, conversations and messages under one account.
package chatwoot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx platform response. The status code lets callers
// separate transient (5xx) from terminal (4xx) failures.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to one platform account.
type Client struct {
	http      *resty.Client
	accountID string
}

// NewClient creates a platform client. All credentials are required.
func NewClient(baseURL, token, accountID string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("platform base URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("platform access token cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("platform account id cannot be empty")
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("api_access_token", token).
		SetTimeout(timeout)

	return &Client{http: http, accountID: accountID}, nil
}

// SearchContact finds a contact by exact phone identity, returning nil
// when none matches. The platform search is broad, so results are
// filtered down to an exact phone or identifier match.
func (c *Client) SearchContact(ctx context.Context, phone string) (*Contact, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/contacts/search", c.accountID)

	var result contactSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", phone).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("contact search request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}

	for i := range result.Payload {
		contact := &result.Payload[i]
		if contact.PhoneNumber == phone || contact.PhoneNumber == "+"+phone || contact.Identifier == phone {
			return contact, nil
		}
	}
	return nil, nil
}

// CreateContact creates a contact under the given inbox.
func (c *Client) CreateContact(ctx context.Context, payload ContactPayload) (*Contact, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/contacts", c.accountID)

	var result contactCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("contact create request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}

	if result.Payload.Contact.ID != 0 {
		contact := result.Payload.Contact
		return &contact, nil
	}
	contact := result.Contact
	return &contact, nil
}

// ListContactConversations returns the conversations of a contact.
func (c *Client) ListContactConversations(ctx context.Context, contactID int) ([]Conversation, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/contacts/%d/conversations", c.accountID, contactID)

	var result conversationListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("conversation list request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return result.Payload, nil
}

// GetConversation fetches one conversation, returning nil when the
// platform no longer knows it.
func (c *Client) GetConversation(ctx context.Context, conversationID int) (*Conversation, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/conversations/%d", c.accountID, conversationID)

	var result Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("conversation get request failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return &result, nil
}

// CreateConversation creates a conversation under a target inbox.
func (c *Client) CreateConversation(ctx context.Context, payload ConversationPayload) (*Conversation, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/conversations", c.accountID)

	var result Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("conversation create request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return &result, nil
}

// ToggleConversationStatus moves a conversation to the given status,
// reopening resolved conversations among other transitions.
func (c *Client) ToggleConversationStatus(ctx context.Context, conversationID int, status string) error {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/conversations/%d/toggle_status", c.accountID, conversationID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": status}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("conversation toggle request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return nil
}

// CreateMessage appends a message to a conversation.
func (c *Client) CreateMessage(ctx context.Context, conversationID int, payload MessagePayload) (*Message, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/conversations/%d/messages", c.accountID, conversationID)

	var result Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("message create request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: endpoint, Body: resp.String()}
	}
	return &result, nil
}

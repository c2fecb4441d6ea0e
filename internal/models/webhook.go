package models

import (
	"fmt"
	"net/url"
	"time"
)

// WebhookSubscription is one third-party endpoint fed a filtered copy of
// the event stream. A session may carry any number of subscriptions.
type WebhookSubscription struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	URL       string      `json:"url"`
	Events    []EventKind `json:"events"`
	Enabled   bool        `json:"enabled"`
	Secret    string      `json:"secret,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Validate checks the subscription at write time.
func (s *WebhookSubscription) Validate() error {
	if s.SessionID == "" {
		return ConfigError{Message: "session id is required"}
	}
	if s.URL == "" {
		return ConfigError{Message: "webhook url is required"}
	}
	if _, err := url.ParseRequestURI(s.URL); err != nil {
		return ConfigError{Message: fmt.Sprintf("invalid webhook url: %v", err)}
	}
	if len(s.Events) == 0 {
		return ConfigError{Message: "at least one subscribed event is required"}
	}
	for _, kind := range s.Events {
		if !kind.ValidFilter() {
			return ConfigError{Message: fmt.Sprintf("unknown event kind: %s", kind)}
		}
	}
	return nil
}

// Wants reports whether the subscription's event set covers kind.
func (s *WebhookSubscription) Wants(kind EventKind) bool {
	for _, subscribed := range s.Events {
		if subscribed == EventWildcard || subscribed == kind {
			return true
		}
	}
	return false
}

// WebhookEnvelope is the wire payload delivered to subscribers. Field
// names and shape are a stable contract.
type WebhookEnvelope struct {
	Event     string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Session   string      `json:"session"`
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewWebhookEnvelope builds the envelope for an event. The timestamp is
// rendered as ISO-8601 in UTC.
func NewWebhookEnvelope(ev *Event) WebhookEnvelope {
	return WebhookEnvelope{
		Event:     string(ev.Kind),
		SessionID: ev.SessionID,
		Session:   ev.Session,
		Status:    ev.Status,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Data:      ev.Payload(),
	}
}

// DeliveryAttempt records one webhook delivery try for retry bookkeeping
// and observability. Rows are pruned by the retention scheduler.
type DeliveryAttempt struct {
	ID             int64     `json:"id"`
	EventID        string    `json:"eventId"`
	SubscriptionID string    `json:"subscriptionId"`
	Attempt        int       `json:"attempt"`
	StatusCode     int       `json:"statusCode,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

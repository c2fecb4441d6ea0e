package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationConfigValidate(t *testing.T) {
	valid := IntegrationConfig{
		SessionID: "main",
		Enabled:   true,
		BaseURL:   "https://support.example.com",
		Token:     "token",
		AccountID: "1",
		InboxID:   2,
	}

	tests := []struct {
		name    string
		mutate  func(c *IntegrationConfig)
		wantErr string
	}{
		{"valid enabled config", func(c *IntegrationConfig) {}, ""},
		{"missing session id", func(c *IntegrationConfig) { c.SessionID = "" }, "session id is required"},
		{"missing url", func(c *IntegrationConfig) { c.BaseURL = "" }, "url is required"},
		{"invalid url", func(c *IntegrationConfig) { c.BaseURL = "not a url" }, "invalid url"},
		{"missing token", func(c *IntegrationConfig) { c.Token = "" }, "token is required"},
		{"missing account", func(c *IntegrationConfig) { c.AccountID = "" }, "account is required"},
		{"missing inbox", func(c *IntegrationConfig) { c.InboxID = 0 }, "inboxId is required"},
		{"negative window", func(c *IntegrationConfig) { c.ImportWindowDays = -1 }, "windowDays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("disabled config needs only session id", func(t *testing.T) {
		cfg := IntegrationConfig{SessionID: "main", Enabled: false}
		assert.NoError(t, cfg.Validate())
	})
}

func TestIntegrationConfigIgnored(t *testing.T) {
	cfg := IntegrationConfig{IgnoreChats: []string{"status@broadcast", "123@c.us"}}

	assert.True(t, cfg.Ignored("status@broadcast"))
	assert.True(t, cfg.Ignored("123@c.us"))
	assert.False(t, cfg.Ignored("456@c.us"))
}

func TestWebhookSubscriptionValidate(t *testing.T) {
	valid := WebhookSubscription{
		ID:        "sub-1",
		SessionID: "main",
		URL:       "https://hooks.example.com/events",
		Events:    []EventKind{EventMessageReceived},
	}

	t.Run("valid subscription", func(t *testing.T) {
		sub := valid
		assert.NoError(t, sub.Validate())
	})

	t.Run("wildcard filter is valid", func(t *testing.T) {
		sub := valid
		sub.Events = []EventKind{EventWildcard}
		assert.NoError(t, sub.Validate())
	})

	t.Run("unknown event kind rejected", func(t *testing.T) {
		sub := valid
		sub.Events = []EventKind{"message.exploded"}
		require.Error(t, sub.Validate())
		assert.Contains(t, sub.Validate().Error(), "unknown event kind")
	})

	t.Run("empty event set rejected", func(t *testing.T) {
		sub := valid
		sub.Events = nil
		assert.Error(t, sub.Validate())
	})

	t.Run("missing url rejected", func(t *testing.T) {
		sub := valid
		sub.URL = ""
		assert.Error(t, sub.Validate())
	})
}

func TestWebhookSubscriptionWants(t *testing.T) {
	filtered := WebhookSubscription{Events: []EventKind{EventMessageReceived, EventCallReceived}}
	assert.True(t, filtered.Wants(EventMessageReceived))
	assert.True(t, filtered.Wants(EventCallReceived))
	assert.False(t, filtered.Wants(EventMessageSent))

	wildcard := WebhookSubscription{Events: []EventKind{EventWildcard}}
	assert.True(t, wildcard.Wants(EventMessageReceived))
	assert.True(t, wildcard.Wants(EventSessionStatus))
}

func TestEventKindValidity(t *testing.T) {
	assert.True(t, EventMessageReceived.Valid())
	assert.True(t, EventSessionStatus.Valid())
	assert.False(t, EventWildcard.Valid())
	assert.True(t, EventWildcard.ValidFilter())
	assert.False(t, EventKind("nonsense").Valid())
	assert.False(t, EventKind("nonsense").ValidFilter())
}

func TestChatKindOf(t *testing.T) {
	tests := []struct {
		chatID   string
		expected ChatKind
	}{
		{"14155552671@c.us", ChatKindPrivate},
		{"123456789-987654@g.us", ChatKindGroup},
		{"status@broadcast", ChatKindBroadcast},
		{"123@newsletter", ChatKindNewsletter},
		{"987654@lid", ChatKindLid},
		{"bare-id", ChatKindPrivate},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ChatKindOf(tt.chatID), tt.chatID)
	}
}

func TestNewWebhookEnvelope(t *testing.T) {
	timestamp := time.Date(2024, 3, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	ev := &Event{
		ID:        "ev-1",
		Kind:      EventMessageReceived,
		SessionID: "main",
		Session:   "main",
		Status:    "WORKING",
		Timestamp: timestamp,
		Message: &MessageEvent{
			MessageID: "msg-1",
			ChatID:    "14155552671@c.us",
			Body:      "hello",
			Type:      MessageTypeText,
		},
	}

	envelope := NewWebhookEnvelope(ev)

	assert.Equal(t, "message.received", envelope.Event)
	assert.Equal(t, "main", envelope.SessionID)
	assert.Equal(t, "WORKING", envelope.Status)
	// Rendered in UTC regardless of the event's zone.
	assert.Equal(t, "2024-03-15T09:30:00Z", envelope.Timestamp)
	assert.Equal(t, ev.Message, envelope.Data)

	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"event":"message.received"`)
	assert.Contains(t, string(body), `"sessionId":"main"`)
}

func TestEventPayload(t *testing.T) {
	message := &Event{Message: &MessageEvent{MessageID: "m1"}}
	assert.Equal(t, message.Message, message.Payload())

	call := &Event{Call: &CallEvent{CallID: "c1"}}
	assert.Equal(t, call.Call, call.Payload())

	lifecycle := &Event{Lifecycle: &SessionStatusEvent{Reason: "logged out"}}
	assert.Equal(t, lifecycle.Lifecycle, lifecycle.Payload())

	empty := &Event{}
	assert.Nil(t, empty.Payload())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusIdle.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestStatsTotals(t *testing.T) {
	contacts := ContactStats{Saved: 3, AlreadyExists: 2, Groups: 4, InvalidPhone: 1}
	assert.Equal(t, 10, contacts.Total())

	messages := MessageStats{Text: 5, Media: 2, Reaction: 1, AlreadySynced: 3, TooOld: 4, Ignored: 1}
	assert.Equal(t, 8, messages.Imported())
	assert.Equal(t, 8, messages.Skipped())
}

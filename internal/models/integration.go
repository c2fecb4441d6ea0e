package models

import (
	"fmt"
	"net/url"
	"time"
)

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// IntegrationConfig is the per-session configuration for the support
// platform integration. Validation happens once, at config-write time.
type IntegrationConfig struct {
	SessionID string `json:"sessionId"`
	Enabled   bool   `json:"enabled"`

	BaseURL   string `json:"url"`
	Token     string `json:"token"`
	AccountID string `json:"account"`
	InboxID   int    `json:"inboxId"`

	SignAgent     bool   `json:"signAgent"`
	SignDelimiter string `json:"signDelimiter,omitempty"`
	AutoReopen    bool   `json:"autoReopen"`
	StartPending  bool   `json:"startPending"`
	MergeBrazil   bool   `json:"mergeBrazil"`
	AutoCreate    bool   `json:"autoCreate"`

	ImportWindowDays int      `json:"windowDays"`
	IgnoreChats      []string `json:"ignoreChats,omitempty"`

	// CallReplyText, when set, is sent to the caller after an incoming
	// call is rejected.
	CallReplyText string `json:"callReplyText,omitempty"`

	// PlatformDSN optionally enables privileged direct-database operations
	// (label assignment, orphan cleanup) the REST API does not expose.
	PlatformDSN string `json:"platformDsn,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate enforces the enabled-implies-credentials invariant.
func (c *IntegrationConfig) Validate() error {
	if c.SessionID == "" {
		return ConfigError{Message: "session id is required"}
	}
	if !c.Enabled {
		return nil
	}
	if c.BaseURL == "" {
		return ConfigError{Message: "url is required when integration is enabled"}
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return ConfigError{Message: fmt.Sprintf("invalid url: %v", err)}
	}
	if c.Token == "" {
		return ConfigError{Message: "token is required when integration is enabled"}
	}
	if c.AccountID == "" {
		return ConfigError{Message: "account is required when integration is enabled"}
	}
	if c.InboxID <= 0 {
		return ConfigError{Message: "inboxId is required when integration is enabled"}
	}
	if c.ImportWindowDays < 0 {
		return ConfigError{Message: "windowDays must not be negative"}
	}
	return nil
}

// Ignored reports whether a chat is on the ignore list.
func (c *IntegrationConfig) Ignored(chatID string) bool {
	for _, ignored := range c.IgnoreChats {
		if ignored == chatID {
			return true
		}
	}
	return false
}

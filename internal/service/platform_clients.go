package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"supportbridge/internal/constants"
	"supportbridge/internal/models"
	"supportbridge/pkg/chatwoot"
)

// PlatformClient is the slice of the support platform API the sync layer
// needs. chatwoot.Client satisfies it.
type PlatformClient interface {
	SearchContact(ctx context.Context, phone string) (*chatwoot.Contact, error)
	CreateContact(ctx context.Context, payload chatwoot.ContactPayload) (*chatwoot.Contact, error)
	ListContactConversations(ctx context.Context, contactID int) ([]chatwoot.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (*chatwoot.Conversation, error)
	CreateConversation(ctx context.Context, payload chatwoot.ConversationPayload) (*chatwoot.Conversation, error)
	ToggleConversationStatus(ctx context.Context, conversationID int, status string) error
	CreateMessage(ctx context.Context, conversationID int, payload chatwoot.MessagePayload) (*chatwoot.Message, error)
}

// PlatformClientFactory builds a platform client from a session's
// integration config.
type PlatformClientFactory func(cfg *models.IntegrationConfig) (PlatformClient, error)

// PlatformRegistry caches one platform client per session. Clients are
// keyed by the credentials they were built from, so a config change
// transparently produces a fresh client.
type PlatformRegistry struct {
	mu      sync.Mutex
	clients map[string]PlatformClient
	factory PlatformClientFactory
}

func NewPlatformRegistry() *PlatformRegistry {
	return &PlatformRegistry{
		clients: make(map[string]PlatformClient),
		factory: func(cfg *models.IntegrationConfig) (PlatformClient, error) {
			timeout := time.Duration(constants.DefaultPlatformTimeoutSec) * time.Second
			return chatwoot.NewClient(cfg.BaseURL, cfg.Token, cfg.AccountID, timeout)
		},
	}
}

// NewPlatformRegistryWithFactory allows injecting a client factory.
func NewPlatformRegistryWithFactory(factory PlatformClientFactory) *PlatformRegistry {
	return &PlatformRegistry{
		clients: make(map[string]PlatformClient),
		factory: factory,
	}
}

// ClientFor returns the cached client for the config, building one on
// first use.
func (r *PlatformRegistry) ClientFor(cfg *models.IntegrationConfig) (PlatformClient, error) {
	key := fmt.Sprintf("%s|%s|%s|%s", cfg.SessionID, cfg.BaseURL, cfg.Token, cfg.AccountID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}
	r.clients[key] = client
	return client, nil
}

// Drop evicts every cached client for a session. Called when the
// session's integration config is replaced or removed.
func (r *PlatformRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := sessionID + "|"
	for key := range r.clients {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(r.clients, key)
		}
	}
}

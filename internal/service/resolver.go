package service

import (
	"context"
	"fmt"
	"sync"

	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/internal/phone"
	"supportbridge/pkg/chatwoot"

	"github.com/sirupsen/logrus"
)

// MappingStore defines the persistence operations the resolver needs.
type MappingStore interface {
	GetIdentityMapping(ctx context.Context, sessionID, chatID string) (*models.IdentityMapping, error)
	GetIdentityMappingByCanonicalID(ctx context.Context, sessionID, canonicalID string) (*models.IdentityMapping, error)
	UpsertIdentityMapping(ctx context.Context, mapping *models.IdentityMapping) error
	ListIdentityMappings(ctx context.Context, sessionID string) ([]*models.IdentityMapping, error)
}

// BulkResolveResult summarizes a sweep that marked every mapped
// conversation of a session as resolved on the platform side.
type BulkResolveResult struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// ResolveRequest carries what is known about the chat at resolution time.
type ResolveRequest struct {
	ChatID      string
	DisplayName string
	AvatarURL   string
}

// Resolver maps a transport chat to a platform contact and conversation,
// creating both on first contact. Resolution is idempotent: the same chat
// always lands in the same conversation.
type Resolver interface {
	Resolve(ctx context.Context, cfg *models.IntegrationConfig, req ResolveRequest) (*models.IdentityMapping, error)
	ResolveAllConversations(ctx context.Context, cfg *models.IntegrationConfig) (*BulkResolveResult, error)
}

type resolver struct {
	db       MappingStore
	registry *PlatformRegistry
	logger   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewResolver(db MappingStore, registry *PlatformRegistry, logger *logrus.Logger) Resolver {
	return &resolver{
		db:       db,
		registry: registry,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// chatLock serializes resolution per (session, chat) so concurrent events
// for the same chat cannot create duplicate contacts or conversations.
func (r *resolver) chatLock(sessionID, chatID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionID + "|" + chatID
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

func (r *resolver) Resolve(ctx context.Context, cfg *models.IntegrationConfig, req ResolveRequest) (*models.IdentityMapping, error) {
	lock := r.chatLock(cfg.SessionID, req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	platform, err := r.registry.ClientFor(cfg)
	if err != nil {
		return nil, err
	}

	mapping, err := r.db.GetIdentityMapping(ctx, cfg.SessionID, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if mapping != nil {
		if err := r.ensureConversationUsable(ctx, cfg, platform, mapping); err != nil {
			return nil, err
		}
		return mapping, nil
	}

	kind := models.ChatKindOf(req.ChatID)
	switch kind {
	case models.ChatKindBroadcast, models.ChatKindNewsletter, models.ChatKindLid:
		return nil, apperrors.New(apperrors.ErrCodeRejected,
			fmt.Sprintf("%s chats are not mirrored", kind))
	}

	canonicalID := req.ChatID
	if kind == models.ChatKindPrivate {
		if !phone.IsValid(req.ChatID) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidPhone,
				fmt.Sprintf("chat id %q does not contain a usable phone number", req.ChatID))
		}
		canonicalID = phone.Canonical(req.ChatID, cfg.MergeBrazil)

		// A merged number variant may already be mapped under another
		// chat id. Reuse its contact and conversation.
		byCanonical, err := r.db.GetIdentityMappingByCanonicalID(ctx, cfg.SessionID, canonicalID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up canonical mapping: %w", err)
		}
		if byCanonical != nil {
			mapping = &models.IdentityMapping{
				SessionID:      cfg.SessionID,
				ChatID:         req.ChatID,
				CanonicalID:    canonicalID,
				ContactID:      byCanonical.ContactID,
				ConversationID: byCanonical.ConversationID,
			}
			if err := r.db.UpsertIdentityMapping(ctx, mapping); err != nil {
				return nil, fmt.Errorf("failed to save identity mapping: %w", err)
			}
			return mapping, nil
		}
	}

	contact, err := r.findOrCreateContact(ctx, cfg, platform, req, kind, canonicalID)
	if err != nil {
		return nil, err
	}

	conversation, err := r.findOrCreateConversation(ctx, cfg, platform, req.ChatID, contact.ID)
	if err != nil {
		return nil, err
	}

	mapping = &models.IdentityMapping{
		SessionID:      cfg.SessionID,
		ChatID:         req.ChatID,
		CanonicalID:    canonicalID,
		ContactID:      contact.ID,
		ConversationID: conversation.ID,
	}
	if err := r.db.UpsertIdentityMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to save identity mapping: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"sessionId":      cfg.SessionID,
		"chatId":         req.ChatID,
		"contactId":      contact.ID,
		"conversationId": conversation.ID,
	}).Info("Resolved chat to new conversation")

	return mapping, nil
}

// ensureConversationUsable checks a mapped conversation still exists and,
// when auto-reopen is on, brings a resolved conversation back to open.
// A conversation deleted on the platform is replaced in place.
func (r *resolver) ensureConversationUsable(ctx context.Context, cfg *models.IntegrationConfig, platform PlatformClient, mapping *models.IdentityMapping) error {
	conversation, err := platform.GetConversation(ctx, mapping.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to fetch conversation %d: %w", mapping.ConversationID, err)
	}

	if conversation == nil {
		replacement, err := r.findOrCreateConversation(ctx, cfg, platform, mapping.ChatID, mapping.ContactID)
		if err != nil {
			return err
		}
		mapping.ConversationID = replacement.ID
		if err := r.db.UpsertIdentityMapping(ctx, mapping); err != nil {
			return fmt.Errorf("failed to update identity mapping: %w", err)
		}
		r.logger.WithFields(logrus.Fields{
			"sessionId":      mapping.SessionID,
			"chatId":         mapping.ChatID,
			"conversationId": replacement.ID,
		}).Warn("Mapped conversation was gone, created a replacement")
		return nil
	}

	if cfg.AutoReopen && conversation.Status == chatwoot.ConversationStatusResolved {
		if err := platform.ToggleConversationStatus(ctx, conversation.ID, chatwoot.ConversationStatusOpen); err != nil {
			return fmt.Errorf("failed to reopen conversation %d: %w", conversation.ID, err)
		}
	}
	return nil
}

// ResolveAllConversations marks every mapped conversation of the session
// as resolved on the platform. Per-conversation failures are counted and
// logged, the sweep keeps going.
func (r *resolver) ResolveAllConversations(ctx context.Context, cfg *models.IntegrationConfig) (*BulkResolveResult, error) {
	platform, err := r.registry.ClientFor(cfg)
	if err != nil {
		return nil, err
	}

	mappings, err := r.db.ListIdentityMappings(ctx, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity mappings: %w", err)
	}

	result := &BulkResolveResult{}
	for _, mapping := range mappings {
		if mapping.ConversationID == 0 {
			continue
		}
		if err := platform.ToggleConversationStatus(ctx, mapping.ConversationID, chatwoot.ConversationStatusResolved); err != nil {
			result.Failed++
			r.logger.WithFields(logrus.Fields{
				"sessionId":      cfg.SessionID,
				"conversationId": mapping.ConversationID,
				"error":          err.Error(),
			}).Warn("Failed to resolve conversation")
			continue
		}
		result.Resolved++
	}

	r.logger.WithFields(logrus.Fields{
		"sessionId": cfg.SessionID,
		"resolved":  result.Resolved,
		"failed":    result.Failed,
	}).Info("Bulk conversation resolve finished")
	return result, nil
}

func (r *resolver) findOrCreateContact(ctx context.Context, cfg *models.IntegrationConfig, platform PlatformClient, req ResolveRequest, kind models.ChatKind, canonicalID string) (*chatwoot.Contact, error) {
	var searchTerms []string
	if kind == models.ChatKindPrivate {
		searchTerms = phone.Variants(req.ChatID, cfg.MergeBrazil)
	} else {
		searchTerms = []string{req.ChatID}
	}

	for _, term := range searchTerms {
		contact, err := platform.SearchContact(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("failed to search contact: %w", err)
		}
		if contact != nil {
			return contact, nil
		}
	}

	if !cfg.AutoCreate {
		return nil, apperrors.New(apperrors.ErrCodeRejected,
			fmt.Sprintf("no contact for chat %s and auto-create is disabled", req.ChatID))
	}

	name := req.DisplayName
	if name == "" {
		name = canonicalID
	}
	payload := chatwoot.ContactPayload{
		InboxID:    cfg.InboxID,
		Name:       name,
		Identifier: req.ChatID,
		AvatarURL:  req.AvatarURL,
	}
	if kind == models.ChatKindPrivate {
		payload.PhoneNumber = "+" + canonicalID
	}

	contact, err := platform.CreateContact(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

// findOrCreateConversation picks a live conversation for the contact in
// the configured inbox, or creates one. A resolved conversation is reused
// only when auto-reopen is on; otherwise a fresh conversation starts,
// pending or open per config.
func (r *resolver) findOrCreateConversation(ctx context.Context, cfg *models.IntegrationConfig, platform PlatformClient, chatID string, contactID int) (*chatwoot.Conversation, error) {
	existing, err := platform.ListContactConversations(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for contact %d: %w", contactID, err)
	}

	var resolved *chatwoot.Conversation
	for i := range existing {
		conversation := &existing[i]
		if conversation.InboxID != cfg.InboxID {
			continue
		}
		if conversation.Status == chatwoot.ConversationStatusResolved {
			if resolved == nil {
				resolved = conversation
			}
			continue
		}
		return conversation, nil
	}

	if resolved != nil && cfg.AutoReopen {
		if err := platform.ToggleConversationStatus(ctx, resolved.ID, chatwoot.ConversationStatusOpen); err != nil {
			return nil, fmt.Errorf("failed to reopen conversation %d: %w", resolved.ID, err)
		}
		resolved.Status = chatwoot.ConversationStatusOpen
		return resolved, nil
	}

	status := chatwoot.ConversationStatusOpen
	if cfg.StartPending {
		status = chatwoot.ConversationStatusPending
	}
	conversation, err := platform.CreateConversation(ctx, chatwoot.ConversationPayload{
		SourceID:  chatID,
		InboxID:   cfg.InboxID,
		ContactID: contactID,
		Status:    status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"supportbridge/internal/constants"
	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/pkg/chatwoot"

	"github.com/sirupsen/logrus"
)

// SyncOutcome classifies what happened to one message during sync.
type SyncOutcome string

const (
	OutcomeMirroredText     SyncOutcome = "text"
	OutcomeMirroredMedia    SyncOutcome = "media"
	OutcomeMirroredReaction SyncOutcome = "reaction"
	OutcomeAlreadySynced    SyncOutcome = "already_synced"
	OutcomeBroadcast        SyncOutcome = "broadcast"
	OutcomeNewsletter       SyncOutcome = "newsletter"
	OutcomeLidChat          SyncOutcome = "lid_chat"
	OutcomeProtocol         SyncOutcome = "protocol"
	OutcomeSystem           SyncOutcome = "system"
	OutcomeEmptyContent     SyncOutcome = "empty_content"
	OutcomeMissingMedia     SyncOutcome = "missing_media"
	OutcomeIgnored          SyncOutcome = "ignored"
	OutcomeError            SyncOutcome = "error"
)

// Mirrored reports whether the outcome produced a platform message.
func (o SyncOutcome) Mirrored() bool {
	return o == OutcomeMirroredText || o == OutcomeMirroredMedia || o == OutcomeMirroredReaction
}

// ImportRecordStore defines the dedup persistence the syncer needs.
type ImportRecordStore interface {
	HasMessageImportRecord(ctx context.Context, sessionID, sourceMessageID string) (bool, error)
	SaveMessageImportRecord(ctx context.Context, record *models.MessageImportRecord) error
}

// MessageSyncer mirrors one transport message into the platform
// conversation it belongs to. Sync is idempotent per source message id.
type MessageSyncer interface {
	SyncMessage(ctx context.Context, cfg *models.IntegrationConfig, msg *models.MessageEvent) (SyncOutcome, error)
}

type messageSyncer struct {
	db       ImportRecordStore
	resolver Resolver
	registry *PlatformRegistry
	contacts ContactCache
	logger   *logrus.Logger
}

func NewMessageSyncer(db ImportRecordStore, resolver Resolver, registry *PlatformRegistry, contacts ContactCache, logger *logrus.Logger) MessageSyncer {
	return &messageSyncer{
		db:       db,
		resolver: resolver,
		registry: registry,
		contacts: contacts,
		logger:   logger,
	}
}

func (s *messageSyncer) SyncMessage(ctx context.Context, cfg *models.IntegrationConfig, msg *models.MessageEvent) (SyncOutcome, error) {
	if outcome := classifyForSkip(cfg, msg); outcome != "" {
		return outcome, nil
	}

	// Dedup before any platform call so replays are cheap.
	synced, err := s.db.HasMessageImportRecord(ctx, cfg.SessionID, msg.MessageID)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to check import record: %w", err)
	}
	if synced {
		return OutcomeAlreadySynced, nil
	}

	displayName := msg.SenderName
	if !msg.FromMe {
		displayName = s.contacts.GetDisplayName(ctx, msg.SenderID, msg.SenderName)
	}

	mapping, err := s.resolver.Resolve(ctx, cfg, ResolveRequest{
		ChatID:      msg.ChatID,
		DisplayName: displayName,
		AvatarURL:   s.avatarFor(ctx, msg),
	})
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeRejected {
			return OutcomeIgnored, nil
		}
		return OutcomeError, err
	}

	platform, err := s.registry.ClientFor(cfg)
	if err != nil {
		return OutcomeError, err
	}

	payload := buildMessagePayload(cfg, msg, displayName)
	if _, err := platform.CreateMessage(ctx, mapping.ConversationID, payload); err != nil {
		return OutcomeError, fmt.Errorf("failed to create platform message: %w", err)
	}

	record := &models.MessageImportRecord{
		SessionID:       cfg.SessionID,
		ConversationID:  mapping.ConversationID,
		SourceMessageID: msg.MessageID,
	}
	if err := s.db.SaveMessageImportRecord(ctx, record); err != nil {
		// The platform message exists; a lost record means one duplicate
		// on replay, which the unique index will absorb next time.
		s.logger.WithFields(logrus.Fields{
			"sessionId": cfg.SessionID,
			"messageId": msg.MessageID,
			"error":     err,
		}).Warn("Failed to save import record")
	}

	switch msg.Type {
	case models.MessageTypeMedia:
		return OutcomeMirroredMedia, nil
	case models.MessageTypeReaction:
		return OutcomeMirroredReaction, nil
	default:
		return OutcomeMirroredText, nil
	}
}

// classifyForSkip returns a skip outcome for messages that never reach
// the platform, or "" when the message should be mirrored.
func classifyForSkip(cfg *models.IntegrationConfig, msg *models.MessageEvent) SyncOutcome {
	if cfg.Ignored(msg.ChatID) {
		return OutcomeIgnored
	}

	switch models.ChatKindOf(msg.ChatID) {
	case models.ChatKindBroadcast:
		return OutcomeBroadcast
	case models.ChatKindNewsletter:
		return OutcomeNewsletter
	case models.ChatKindLid:
		return OutcomeLidChat
	}

	switch msg.Type {
	case models.MessageTypeProtocol:
		return OutcomeProtocol
	case models.MessageTypeSystem:
		return OutcomeSystem
	case models.MessageTypeText:
		if strings.TrimSpace(msg.Body) == "" {
			return OutcomeEmptyContent
		}
	case models.MessageTypeMedia:
		if msg.MediaURL == "" {
			return OutcomeMissingMedia
		}
	case models.MessageTypeReaction:
		if msg.Body == "" {
			return OutcomeEmptyContent
		}
	}
	return ""
}

func (s *messageSyncer) avatarFor(ctx context.Context, msg *models.MessageEvent) string {
	if msg.FromMe || models.ChatKindOf(msg.ChatID) != models.ChatKindPrivate {
		return ""
	}
	return s.contacts.GetAvatarURL(ctx, msg.SenderID)
}

// buildMessagePayload renders the transport message as a platform
// message. Direction follows fromMe; outgoing messages are optionally
// signed with the sender's name so multi-agent inboxes stay readable.
func buildMessagePayload(cfg *models.IntegrationConfig, msg *models.MessageEvent, displayName string) chatwoot.MessagePayload {
	content := msg.Body

	switch msg.Type {
	case models.MessageTypeMedia:
		if content != "" {
			content = content + "\n" + msg.MediaURL
		} else {
			content = msg.MediaURL
		}
	case models.MessageTypeReaction:
		content = fmt.Sprintf("Reacted with %s", msg.Body)
		if msg.ReactionTo != "" {
			content = fmt.Sprintf("%s to message %s", content, msg.ReactionTo)
		}
	}

	direction := chatwoot.MessageIncoming
	if msg.FromMe {
		direction = chatwoot.MessageOutgoing
		if cfg.SignAgent && displayName != "" {
			delimiter := cfg.SignDelimiter
			if delimiter == "" {
				delimiter = constants.DefaultSignDelimiter
			}
			content = displayName + delimiter + content
		}
	}

	return chatwoot.MessagePayload{
		Content:     content,
		MessageType: direction,
		SourceID:    msg.MessageID,
		ContentAttributes: map[string]interface{}{
			"external_created_at": msg.Timestamp.Unix(),
		},
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/pkg/chatwoot"
	"supportbridge/pkg/transport/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConfigStore defines the config lookup the ingest pipeline needs.
type ConfigStore interface {
	GetIntegrationConfig(ctx context.Context, sessionID string) (*models.IntegrationConfig, error)
}

// IngestService is the entry point for the transport event stream. Every
// valid event is fanned out to webhook subscribers; message and call
// events are additionally mirrored to the support platform when the
// session has an enabled integration.
type IngestService interface {
	HandleEvent(ctx context.Context, ev *models.Event) error
}

type ingestService struct {
	db         ConfigStore
	syncer     MessageSyncer
	resolver   Resolver
	dispatcher Dispatcher
	registry   *PlatformRegistry
	contacts   ContactCache
	transport  types.Client
	logger     *logrus.Logger
}

func NewIngestService(db ConfigStore, syncer MessageSyncer, resolver Resolver, dispatcher Dispatcher, registry *PlatformRegistry, contacts ContactCache, transport types.Client, logger *logrus.Logger) IngestService {
	return &ingestService{
		db:         db,
		syncer:     syncer,
		resolver:   resolver,
		dispatcher: dispatcher,
		registry:   registry,
		contacts:   contacts,
		transport:  transport,
		logger:     logger,
	}
}

func (s *ingestService) HandleEvent(ctx context.Context, ev *models.Event) error {
	if !ev.Kind.Valid() {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown event kind: %s", ev.Kind))
	}
	if ev.SessionID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "event is missing a session id")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Subscribers always get the event, enabled integration or not.
	s.dispatcher.Dispatch(ctx, ev)

	cfg, err := s.db.GetIntegrationConfig(ctx, ev.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load integration config: %w", err)
	}
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	switch ev.Kind {
	case models.EventMessageReceived, models.EventMessageSent:
		return s.mirrorMessage(ctx, cfg, ev.Message)
	case models.EventMessageUpdated:
		return s.mirrorEdit(ctx, cfg, ev)
	case models.EventContactUpdated:
		s.handleContactUpdate(ev.Contact)
		return nil
	case models.EventCallReceived:
		return s.handleCall(ctx, cfg, ev.Call)
	default:
		return nil
	}
}

func (s *ingestService) mirrorMessage(ctx context.Context, cfg *models.IntegrationConfig, msg *models.MessageEvent) error {
	if msg == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "message event has no message payload")
	}

	outcome, err := s.syncer.SyncMessage(ctx, cfg, msg)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"sessionId": cfg.SessionID,
		"chatId":    msg.ChatID,
		"messageId": msg.MessageID,
		"outcome":   outcome,
	}).Debug("Message event processed")
	return nil
}

// mirrorEdit appends the edited content as a fresh platform message. The
// source id is suffixed with the edit time so repeated delivery of the
// same edit still dedups.
func (s *ingestService) mirrorEdit(ctx context.Context, cfg *models.IntegrationConfig, ev *models.Event) error {
	if ev.Message == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "message event has no message payload")
	}

	edited := *ev.Message
	edited.MessageID = fmt.Sprintf("%s:edit:%d", ev.Message.MessageID, ev.Timestamp.Unix())
	if edited.Type == models.MessageTypeText && edited.Body != "" {
		edited.Body = "(edited) " + edited.Body
	}
	return s.mirrorMessage(ctx, cfg, &edited)
}

func (s *ingestService) handleContactUpdate(contact *models.ContactEvent) {
	if contact == nil {
		return
	}
	s.contacts.Update(contact.ContactID, bestName(contact), contact.AvatarURL)
}

// handleCall leaves a private note on the caller's conversation so agents
// see missed calls, and rejects the call on the transport side since
// calls cannot be bridged.
func (s *ingestService) handleCall(ctx context.Context, cfg *models.IntegrationConfig, call *models.CallEvent) error {
	if call == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "call event has no call payload")
	}

	if err := s.transport.RejectCall(ctx, call.CallID); err != nil {
		s.logger.WithFields(logrus.Fields{
			"sessionId": cfg.SessionID,
			"callId":    call.CallID,
			"error":     err,
		}).Warn("Failed to reject incoming call")
	}

	chatID := call.ChatID
	if chatID == "" {
		chatID = call.CallerID
	}
	if cfg.Ignored(chatID) {
		return nil
	}

	if cfg.CallReplyText != "" {
		if _, err := s.transport.SendText(ctx, chatID, cfg.CallReplyText); err != nil {
			s.logger.WithFields(logrus.Fields{
				"sessionId": cfg.SessionID,
				"chatId":    chatID,
				"error":     err,
			}).Warn("Failed to send call auto-reply")
		}
	}

	name := s.contacts.GetDisplayName(ctx, call.CallerID, call.CallerID)
	mapping, err := s.resolver.Resolve(ctx, cfg, ResolveRequest{ChatID: chatID, DisplayName: name})
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeRejected {
			return nil
		}
		return err
	}

	platform, err := s.registry.ClientFor(cfg)
	if err != nil {
		return err
	}

	kind := "voice"
	if call.IsVideo {
		kind = "video"
	}
	_, err = platform.CreateMessage(ctx, mapping.ConversationID, chatwoot.MessagePayload{
		Content:     fmt.Sprintf("Missed %s call from %s", kind, name),
		MessageType: chatwoot.MessageIncoming,
		Private:     true,
		SourceID:    call.CallID,
	})
	if err != nil {
		return fmt.Errorf("failed to record missed call: %w", err)
	}
	return nil
}

func bestName(contact *models.ContactEvent) string {
	if contact.Name != "" {
		return contact.Name
	}
	return contact.PushName
}

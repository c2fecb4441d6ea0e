package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"supportbridge/internal/constants"
	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/internal/phone"
	"supportbridge/pkg/chatwoot"
	"supportbridge/pkg/transport/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// JobStore defines the persistence operations the import runner needs.
type JobStore interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	UpdateSyncJob(ctx context.Context, job *models.SyncJob) error
	GetActiveSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error)
	GetLatestSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error)
}

// ImportService runs bulk imports of contacts and message history into
// the platform. At most one job runs per session at a time; reruns are
// idempotent because message sync dedups per source message id.
type ImportService interface {
	StartImport(ctx context.Context, cfg *models.IntegrationConfig, jobType models.JobType, windowDays int) (*models.SyncJob, error)
	CancelImport(sessionID string) bool
	GetStatus(ctx context.Context, sessionID string) (*models.SyncJob, error)
}

type importService struct {
	db        JobStore
	transport types.Client
	syncer    MessageSyncer
	registry  *PlatformRegistry
	batchSize int
	limiter   *rate.Limiter
	logger    *logrus.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewImportService(db JobStore, transport types.Client, syncer MessageSyncer, registry *PlatformRegistry, batchSize, ratePerSec int, logger *logrus.Logger) ImportService {
	if batchSize <= 0 {
		batchSize = constants.DefaultImportBatchSize
	}
	if ratePerSec <= 0 {
		ratePerSec = constants.DefaultImportRatePerSec
	}
	return &importService{
		db:        db,
		transport: transport,
		syncer:    syncer,
		registry:  registry,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
	}
}

// StartImport creates a job record and runs the import in the background.
// It fails fast with CONFLICT when another job is already running for the
// session, whether in this process or recorded in the database.
func (s *importService) StartImport(ctx context.Context, cfg *models.IntegrationConfig, jobType models.JobType, windowDays int) (*models.SyncJob, error) {
	if !jobType.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown job type: %s", jobType))
	}
	if windowDays <= 0 {
		windowDays = cfg.ImportWindowDays
	}
	if windowDays <= 0 {
		windowDays = constants.DefaultImportWindowDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.running[cfg.SessionID]; busy {
		return nil, apperrors.NewConflictError("sync job", "an import is already running for this session")
	}
	active, err := s.db.GetActiveSyncJob(ctx, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active job: %w", err)
	}
	if active != nil {
		return nil, apperrors.NewConflictError("sync job", "an import is already running for this session")
	}

	job := &models.SyncJob{
		ID:         uuid.New().String(),
		SessionID:  cfg.SessionID,
		Type:       jobType,
		Status:     models.JobStatusRunning,
		WindowDays: windowDays,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.db.CreateSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.running[cfg.SessionID] = cancel

	go s.run(runCtx, cfg, job)

	return job, nil
}

// CancelImport cancels the running job for a session. It reports whether
// a job was running.
func (s *importService) CancelImport(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.running[sessionID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (s *importService) GetStatus(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	return s.db.GetLatestSyncJob(ctx, sessionID)
}

func (s *importService) run(ctx context.Context, cfg *models.IntegrationConfig, job *models.SyncJob) {
	defer func() {
		s.mu.Lock()
		delete(s.running, cfg.SessionID)
		s.mu.Unlock()
	}()

	log := s.logger.WithFields(logrus.Fields{
		"sessionId": cfg.SessionID,
		"jobId":     job.ID,
		"type":      job.Type,
	})
	log.Info("Starting import job")

	var runErr error
	if job.Type == models.JobTypeContacts || job.Type == models.JobTypeAll {
		runErr = s.importContacts(ctx, cfg, job)
	}
	if runErr == nil && (job.Type == models.JobTypeMessages || job.Type == models.JobTypeAll) {
		runErr = s.importMessages(ctx, cfg, job)
	}

	now := time.Now().UTC()
	job.EndedAt = &now
	if runErr != nil {
		job.Status = models.JobStatusFailed
		if ctx.Err() != nil {
			job.Error = "canceled"
		} else {
			job.Error = runErr.Error()
		}
		log.WithField("error", runErr).Warn("Import job failed")
	} else {
		job.Status = models.JobStatusCompleted
		log.WithFields(logrus.Fields{
			"contactsSaved":    job.Contacts.Saved,
			"messagesImported": job.Messages.Imported(),
			"messagesSkipped":  job.Messages.Skipped(),
		}).Info("Import job completed")
	}

	// Persist with a fresh context; the job context may be canceled.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.db.UpdateSyncJob(saveCtx, job); err != nil {
		log.WithField("error", err).Error("Failed to persist final job state")
	}
}

func (s *importService) importContacts(ctx context.Context, cfg *models.IntegrationConfig, job *models.SyncJob) error {
	platform, err := s.registry.ClientFor(cfg)
	if err != nil {
		return err
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		contacts, err := s.transport.GetContacts(ctx, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to fetch contacts at offset %d: %w", offset, err)
		}
		if len(contacts) == 0 {
			return nil
		}

		for i := range contacts {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.importContact(ctx, cfg, platform, &contacts[i], &job.Contacts)
		}

		if err := s.db.UpdateSyncJob(ctx, job); err != nil {
			s.logger.WithField("error", err).Warn("Failed to checkpoint job progress")
		}
		offset += len(contacts)
	}
}

func (s *importService) importContact(ctx context.Context, cfg *models.IntegrationConfig, platform PlatformClient, contact *types.Contact, stats *models.ContactStats) {
	switch {
	case contact.IsGroup || strings.HasSuffix(contact.ID, "@g.us"):
		stats.Groups++
		return
	case strings.HasSuffix(contact.ID, "@broadcast"):
		stats.Broadcasts++
		return
	case strings.HasSuffix(contact.ID, "@newsletter"):
		stats.Newsletters++
		return
	case strings.HasSuffix(contact.ID, "@lid"):
		stats.Lid++
		return
	case !contact.IsMyContact:
		stats.NotInAddressBook++
		return
	}

	number := contact.Number
	if number == "" {
		number = contact.ID
	}
	if !phone.IsValid(number) {
		stats.InvalidPhone++
		return
	}
	canonical := phone.Canonical(number, cfg.MergeBrazil)

	if err := s.limiter.Wait(ctx); err != nil {
		stats.Errors++
		return
	}

	for _, variant := range phone.Variants(number, cfg.MergeBrazil) {
		existing, err := platform.SearchContact(ctx, variant)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"contactId": contact.ID,
				"error":     err,
			}).Warn("Contact search failed during import")
			stats.Errors++
			return
		}
		if existing != nil {
			stats.AlreadyExists++
			return
		}
	}

	_, err := platform.CreateContact(ctx, chatwoot.ContactPayload{
		InboxID:     cfg.InboxID,
		Name:        contact.GetDisplayName(),
		PhoneNumber: "+" + canonical,
		Identifier:  contact.ID,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"contactId": contact.ID,
			"error":     err,
		}).Warn("Contact create failed during import")
		stats.Errors++
		return
	}
	stats.Saved++
}

func (s *importService) importMessages(ctx context.Context, cfg *models.IntegrationConfig, job *models.SyncJob) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -job.WindowDays)

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chats, err := s.transport.GetChats(ctx, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to fetch chats at offset %d: %w", offset, err)
		}
		if len(chats) == 0 {
			return nil
		}

		for _, chat := range chats {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Chats idle since before the window cannot contribute.
			if !chat.LastMessageAt.IsZero() && chat.LastMessageAt.Before(cutoff) {
				continue
			}
			if err := s.importChatMessages(ctx, cfg, chat.ID, cutoff, &job.Messages); err != nil {
				return err
			}
		}

		if err := s.db.UpdateSyncJob(ctx, job); err != nil {
			s.logger.WithField("error", err).Warn("Failed to checkpoint job progress")
		}
		offset += len(chats)
	}
}

func (s *importService) importChatMessages(ctx context.Context, cfg *models.IntegrationConfig, chatID string, cutoff time.Time, stats *models.MessageStats) error {
	offset := 0
	for {
		messages, err := s.transport.GetChatMessages(ctx, chatID, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to fetch messages for chat %s at offset %d: %w", chatID, offset, err)
		}
		if len(messages) == 0 {
			return nil
		}

		for i := range messages {
			if err := ctx.Err(); err != nil {
				return err
			}
			stored := &messages[i]
			if stored.Timestamp.Before(cutoff) {
				stats.TooOld++
				continue
			}

			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}

			outcome, err := s.syncer.SyncMessage(ctx, cfg, storedToEvent(stored))
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"chatId":    chatID,
					"messageId": stored.ID,
					"error":     err,
				}).Warn("Message sync failed during import")
			}
			recordOutcome(outcome, chatID, stats)
		}
		offset += len(messages)
	}
}

// storedToEvent adapts a history message to the live event shape so the
// same sync pipeline handles both.
func storedToEvent(stored *types.StoredMessage) *models.MessageEvent {
	return &models.MessageEvent{
		MessageID:     stored.ID,
		ChatID:        stored.ChatID,
		SenderID:      stored.SenderID,
		SenderName:    stored.SenderName,
		FromMe:        stored.FromMe,
		Type:          messageTypeOf(stored.Type),
		Body:          stored.Body,
		MediaURL:      stored.MediaURL,
		MediaMimeType: stored.MediaMimeType,
		Timestamp:     stored.Timestamp,
	}
}

// messageTypeOf maps raw transport message types onto sync categories.
func messageTypeOf(raw string) models.MessageType {
	switch raw {
	case "chat", "text", "":
		return models.MessageTypeText
	case "image", "video", "audio", "ptt", "document", "sticker":
		return models.MessageTypeMedia
	case "reaction":
		return models.MessageTypeReaction
	case "protocol", "revoked", "ciphertext":
		return models.MessageTypeProtocol
	default:
		return models.MessageTypeSystem
	}
}

func recordOutcome(outcome SyncOutcome, chatID string, stats *models.MessageStats) {
	switch outcome {
	case OutcomeMirroredText:
		stats.Text++
	case OutcomeMirroredMedia:
		stats.Media++
	case OutcomeMirroredReaction:
		stats.Reaction++
	case OutcomeAlreadySynced:
		stats.AlreadySynced++
	case OutcomeBroadcast:
		stats.Broadcast++
	case OutcomeNewsletter:
		stats.Newsletter++
	case OutcomeLidChat:
		stats.LidChat++
	case OutcomeProtocol:
		stats.Protocol++
	case OutcomeSystem:
		stats.System++
	case OutcomeEmptyContent:
		stats.EmptyContent++
	case OutcomeMissingMedia:
		stats.MissingMedia++
	case OutcomeIgnored:
		stats.Ignored++
	default:
		stats.Errors++
	}

	if outcome.Mirrored() {
		if models.ChatKindOf(chatID) == models.ChatKindGroup {
			stats.Group++
		} else {
			stats.Private++
		}
	}
}

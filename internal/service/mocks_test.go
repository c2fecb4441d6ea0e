package service

import (
	"context"
	"sync"

	"supportbridge/internal/models"
	"supportbridge/pkg/chatwoot"
	"supportbridge/pkg/transport/types"

	"github.com/stretchr/testify/mock"
)

// Mock mapping store
type mockMappingStore struct {
	mock.Mock
}

func (m *mockMappingStore) GetIdentityMapping(ctx context.Context, sessionID, chatID string) (*models.IdentityMapping, error) {
	args := m.Called(ctx, sessionID, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IdentityMapping), args.Error(1)
}

func (m *mockMappingStore) GetIdentityMappingByCanonicalID(ctx context.Context, sessionID, canonicalID string) (*models.IdentityMapping, error) {
	args := m.Called(ctx, sessionID, canonicalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IdentityMapping), args.Error(1)
}

func (m *mockMappingStore) UpsertIdentityMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockMappingStore) ListIdentityMappings(ctx context.Context, sessionID string) ([]*models.IdentityMapping, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.IdentityMapping), args.Error(1)
}

// Mock platform client
type mockPlatformClient struct {
	mock.Mock
}

func (m *mockPlatformClient) SearchContact(ctx context.Context, phone string) (*chatwoot.Contact, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatwoot.Contact), args.Error(1)
}

func (m *mockPlatformClient) CreateContact(ctx context.Context, payload chatwoot.ContactPayload) (*chatwoot.Contact, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatwoot.Contact), args.Error(1)
}

func (m *mockPlatformClient) ListContactConversations(ctx context.Context, contactID int) ([]chatwoot.Conversation, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chatwoot.Conversation), args.Error(1)
}

func (m *mockPlatformClient) GetConversation(ctx context.Context, conversationID int) (*chatwoot.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatwoot.Conversation), args.Error(1)
}

func (m *mockPlatformClient) CreateConversation(ctx context.Context, payload chatwoot.ConversationPayload) (*chatwoot.Conversation, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatwoot.Conversation), args.Error(1)
}

func (m *mockPlatformClient) ToggleConversationStatus(ctx context.Context, conversationID int, status string) error {
	args := m.Called(ctx, conversationID, status)
	return args.Error(0)
}

func (m *mockPlatformClient) CreateMessage(ctx context.Context, conversationID int, payload chatwoot.MessagePayload) (*chatwoot.Message, error) {
	args := m.Called(ctx, conversationID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatwoot.Message), args.Error(1)
}

// testRegistry wires a mock platform client behind a registry so services
// built on PlatformRegistry can be exercised without HTTP.
func testRegistry(platform PlatformClient) *PlatformRegistry {
	return NewPlatformRegistryWithFactory(func(cfg *models.IntegrationConfig) (PlatformClient, error) {
		return platform, nil
	})
}

// Mock import record store
type mockImportRecordStore struct {
	mock.Mock
}

func (m *mockImportRecordStore) HasMessageImportRecord(ctx context.Context, sessionID, sourceMessageID string) (bool, error) {
	args := m.Called(ctx, sessionID, sourceMessageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockImportRecordStore) SaveMessageImportRecord(ctx context.Context, record *models.MessageImportRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// Mock job store
type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobStore) UpdateSyncJob(ctx context.Context, job *models.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobStore) GetActiveSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncJob), args.Error(1)
}

func (m *mockJobStore) GetLatestSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncJob), args.Error(1)
}

// Mock subscription store
type mockSubscriptionStore struct {
	mock.Mock
	mu       sync.Mutex
	attempts []*models.DeliveryAttempt
}

func (m *mockSubscriptionStore) ListWebhookSubscriptions(ctx context.Context, sessionID string) ([]*models.WebhookSubscription, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WebhookSubscription), args.Error(1)
}

func (m *mockSubscriptionStore) RecordDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, attempt)
	m.mu.Unlock()
	return nil
}

func (m *mockSubscriptionStore) recordedAttempts() []*models.DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DeliveryAttempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// Mock config store
type mockConfigStore struct {
	mock.Mock
}

func (m *mockConfigStore) GetIntegrationConfig(ctx context.Context, sessionID string) (*models.IntegrationConfig, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IntegrationConfig), args.Error(1)
}

// Mock resolver
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, cfg *models.IntegrationConfig, req ResolveRequest) (*models.IdentityMapping, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IdentityMapping), args.Error(1)
}

func (m *mockResolver) ResolveAllConversations(ctx context.Context, cfg *models.IntegrationConfig) (*BulkResolveResult, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BulkResolveResult), args.Error(1)
}

// Mock message syncer
type mockMessageSyncer struct {
	mock.Mock
}

func (m *mockMessageSyncer) SyncMessage(ctx context.Context, cfg *models.IntegrationConfig, msg *models.MessageEvent) (SyncOutcome, error) {
	args := m.Called(ctx, cfg, msg)
	return args.Get(0).(SyncOutcome), args.Error(1)
}

// Mock dispatcher
type mockDispatcher struct {
	mu     sync.Mutex
	events []*models.Event
}

func (m *mockDispatcher) Dispatch(ctx context.Context, ev *models.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *mockDispatcher) Stop() {}

func (m *mockDispatcher) dispatched() []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Event, len(m.events))
	copy(out, m.events)
	return out
}

// In-memory mapping store, for tests that need lookups to observe
// earlier upserts.
type memoryMappingStore struct {
	mu       sync.Mutex
	mappings map[string]*models.IdentityMapping
}

func newMemoryMappingStore() *memoryMappingStore {
	return &memoryMappingStore{mappings: make(map[string]*models.IdentityMapping)}
}

func (s *memoryMappingStore) GetIdentityMapping(ctx context.Context, sessionID, chatID string) (*models.IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings[sessionID+"|"+chatID], nil
}

func (s *memoryMappingStore) GetIdentityMappingByCanonicalID(ctx context.Context, sessionID, canonicalID string) (*models.IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.SessionID == sessionID && mapping.CanonicalID == canonicalID {
			return mapping, nil
		}
	}
	return nil, nil
}

func (s *memoryMappingStore) UpsertIdentityMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mapping.SessionID+"|"+mapping.ChatID] = mapping
	return nil
}

func (s *memoryMappingStore) ListIdentityMappings(ctx context.Context, sessionID string) ([]*models.IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mappings []*models.IdentityMapping
	for _, mapping := range s.mappings {
		if mapping.SessionID == sessionID {
			mappings = append(mappings, mapping)
		}
	}
	return mappings, nil
}

// In-memory import record store, for tests that replay the same
// messages across runs.
type memoryRecordStore struct {
	mu      sync.Mutex
	records map[string]bool
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]bool)}
}

func (s *memoryRecordStore) HasMessageImportRecord(ctx context.Context, sessionID, sourceMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[sessionID+"|"+sourceMessageID], nil
}

func (s *memoryRecordStore) SaveMessageImportRecord(ctx context.Context, record *models.MessageImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SessionID+"|"+record.SourceMessageID] = true
	return nil
}

// Stub contact cache with canned answers
type stubContactCache struct {
	names         map[string]string
	avatars       map[string]string
	mu            sync.Mutex
	updates       map[string]string
	invalidations []string
}

func newStubContactCache() *stubContactCache {
	return &stubContactCache{
		names:   make(map[string]string),
		avatars: make(map[string]string),
		updates: make(map[string]string),
	}
}

func (c *stubContactCache) GetDisplayName(ctx context.Context, contactID, fallback string) string {
	if name, ok := c.names[contactID]; ok {
		return name
	}
	return fallback
}

func (c *stubContactCache) GetAvatarURL(ctx context.Context, contactID string) string {
	return c.avatars[contactID]
}

func (c *stubContactCache) Update(contactID, name, avatarURL string) {
	c.mu.Lock()
	c.updates[contactID] = name
	c.mu.Unlock()
}

func (c *stubContactCache) Invalidate(contactID string) {
	c.mu.Lock()
	c.invalidations = append(c.invalidations, contactID)
	c.mu.Unlock()
}

// Mock transport client
type mockTransportClient struct {
	mock.Mock
}

func (m *mockTransportClient) GetSessionName() string {
	return "default"
}

func (m *mockTransportClient) GetContacts(ctx context.Context, limit, offset int) ([]types.Contact, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Contact), args.Error(1)
}

func (m *mockTransportClient) GetChats(ctx context.Context, limit, offset int) ([]types.Chat, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Chat), args.Error(1)
}

func (m *mockTransportClient) GetChatMessages(ctx context.Context, chatID string, limit, offset int) ([]types.StoredMessage, error) {
	args := m.Called(ctx, chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.StoredMessage), args.Error(1)
}

func (m *mockTransportClient) SendText(ctx context.Context, chatID, text string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, chatID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

func (m *mockTransportClient) GetProfilePicture(ctx context.Context, contactID string) (*types.ProfilePicture, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ProfilePicture), args.Error(1)
}

func (m *mockTransportClient) RejectCall(ctx context.Context, callID string) error {
	args := m.Called(ctx, callID)
	return args.Error(0)
}

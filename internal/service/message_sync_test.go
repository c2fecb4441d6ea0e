package service

import (
	"context"
	"testing"
	"time"

	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/pkg/chatwoot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func textMessage(id, chatID, body string) *models.MessageEvent {
	return &models.MessageEvent{
		MessageID: id,
		ChatID:    chatID,
		SenderID:  chatID,
		Type:      models.MessageTypeText,
		Body:      body,
		Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestSyncMessageSkipClassification(t *testing.T) {
	cfg := testIntegrationConfig()
	cfg.IgnoreChats = []string{"spam@c.us"}

	tests := []struct {
		name    string
		msg     *models.MessageEvent
		outcome SyncOutcome
	}{
		{"ignored chat", textMessage("m1", "spam@c.us", "hello"), OutcomeIgnored},
		{"broadcast", textMessage("m2", "status@broadcast", "hello"), OutcomeBroadcast},
		{"newsletter", textMessage("m3", "123@newsletter", "hello"), OutcomeNewsletter},
		{"lid chat", textMessage("m4", "456@lid", "hello"), OutcomeLidChat},
		{"empty text", textMessage("m5", "491700000001@c.us", "   "), OutcomeEmptyContent},
		{
			"protocol message",
			&models.MessageEvent{MessageID: "m6", ChatID: "491700000001@c.us", Type: models.MessageTypeProtocol},
			OutcomeProtocol,
		},
		{
			"system message",
			&models.MessageEvent{MessageID: "m7", ChatID: "491700000001@c.us", Type: models.MessageTypeSystem},
			OutcomeSystem,
		},
		{
			"media without url",
			&models.MessageEvent{MessageID: "m8", ChatID: "491700000001@c.us", Type: models.MessageTypeMedia},
			OutcomeMissingMedia,
		},
		{
			"reaction without emoji",
			&models.MessageEvent{MessageID: "m9", ChatID: "491700000001@c.us", Type: models.MessageTypeReaction},
			OutcomeEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockImportRecordStore{}
			resolver := &mockResolver{}
			platform := &mockPlatformClient{}
			syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

			outcome, err := syncer.SyncMessage(context.Background(), cfg, tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
			db.AssertNotCalled(t, "HasMessageImportRecord", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSyncMessageDedupShortCircuits(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	msg := textMessage("m1", "491700000001@c.us", "hello")

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(true, nil)

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySynced, outcome)

	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	platform.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncMessageMirrorsText(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	contacts := newStubContactCache()
	contacts.names["491700000001@c.us"] = "Hans"
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), contacts, testLogger())

	cfg := testIntegrationConfig()
	msg := textMessage("m1", "491700000001@c.us", "hello")

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.MatchedBy(func(req ResolveRequest) bool {
		return req.ChatID == "491700000001@c.us" && req.DisplayName == "Hans"
	})).Return(&models.IdentityMapping{ConversationID: 99}, nil)
	platform.On("CreateMessage", mock.Anything, 99, mock.MatchedBy(func(p chatwoot.MessagePayload) bool {
		return p.Content == "hello" &&
			p.MessageType == chatwoot.MessageIncoming &&
			p.SourceID == "m1" &&
			p.ContentAttributes["external_created_at"] == msg.Timestamp.Unix()
	})).Return(&chatwoot.Message{ID: 1}, nil)
	db.On("SaveMessageImportRecord", mock.Anything, mock.MatchedBy(func(rec *models.MessageImportRecord) bool {
		return rec.SessionID == "default" && rec.SourceMessageID == "m1" && rec.ConversationID == 99
	})).Return(nil)

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMirroredText, outcome)

	db.AssertExpectations(t)
	platform.AssertExpectations(t)
}

func TestSyncMessageSignsOutgoing(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	cfg.SignAgent = true
	msg := textMessage("m1", "491700000001@c.us", "on my way")
	msg.FromMe = true
	msg.SenderName = "Agent Ana"

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.Anything).Return(&models.IdentityMapping{ConversationID: 99}, nil)
	platform.On("CreateMessage", mock.Anything, 99, mock.MatchedBy(func(p chatwoot.MessagePayload) bool {
		return p.Content == "Agent Ana: on my way" && p.MessageType == chatwoot.MessageOutgoing
	})).Return(&chatwoot.Message{ID: 1}, nil)
	db.On("SaveMessageImportRecord", mock.Anything, mock.Anything).Return(nil)

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMirroredText, outcome)
	platform.AssertExpectations(t)
}

func TestSyncMessageMediaAppendsURL(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	msg := &models.MessageEvent{
		MessageID: "m1",
		ChatID:    "491700000001@c.us",
		SenderID:  "491700000001@c.us",
		Type:      models.MessageTypeMedia,
		Body:      "look at this",
		MediaURL:  "https://media.example.com/photo.jpg",
		Timestamp: time.Now(),
	}

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.Anything).Return(&models.IdentityMapping{ConversationID: 99}, nil)
	platform.On("CreateMessage", mock.Anything, 99, mock.MatchedBy(func(p chatwoot.MessagePayload) bool {
		return p.Content == "look at this\nhttps://media.example.com/photo.jpg"
	})).Return(&chatwoot.Message{ID: 1}, nil)
	db.On("SaveMessageImportRecord", mock.Anything, mock.Anything).Return(nil)

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMirroredMedia, outcome)
}

func TestSyncMessageFormatsReaction(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	msg := &models.MessageEvent{
		MessageID:  "m1",
		ChatID:     "491700000001@c.us",
		SenderID:   "491700000001@c.us",
		Type:       models.MessageTypeReaction,
		Body:       "\U0001F44D",
		ReactionTo: "m0",
		Timestamp:  time.Now(),
	}

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.Anything).Return(&models.IdentityMapping{ConversationID: 99}, nil)
	platform.On("CreateMessage", mock.Anything, 99, mock.MatchedBy(func(p chatwoot.MessagePayload) bool {
		return p.Content == "Reacted with \U0001F44D to message m0"
	})).Return(&chatwoot.Message{ID: 1}, nil)
	db.On("SaveMessageImportRecord", mock.Anything, mock.Anything).Return(nil)

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMirroredReaction, outcome)
}

func TestSyncMessageRejectedResolveIsIgnored(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	msg := textMessage("m1", "491700000001@c.us", "hello")

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.Anything).
		Return(nil, apperrors.New(apperrors.ErrCodeRejected, "auto-create disabled"))

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	platform.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncMessageLostImportRecordIsNotFatal(t *testing.T) {
	db := &mockImportRecordStore{}
	resolver := &mockResolver{}
	platform := &mockPlatformClient{}
	syncer := NewMessageSyncer(db, resolver, testRegistry(platform), newStubContactCache(), testLogger())

	cfg := testIntegrationConfig()
	msg := textMessage("m1", "491700000001@c.us", "hello")

	db.On("HasMessageImportRecord", mock.Anything, "default", "m1").Return(false, nil)
	resolver.On("Resolve", mock.Anything, cfg, mock.Anything).Return(&models.IdentityMapping{ConversationID: 99}, nil)
	platform.On("CreateMessage", mock.Anything, 99, mock.Anything).Return(&chatwoot.Message{ID: 1}, nil)
	db.On("SaveMessageImportRecord", mock.Anything, mock.Anything).
		Return(apperrors.NewDatabaseError("insert", assert.AnError))

	outcome, err := syncer.SyncMessage(context.Background(), cfg, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMirroredText, outcome)
}

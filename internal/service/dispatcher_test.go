package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"supportbridge/internal/models"
	"supportbridge/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		WorkersPerSubscription: 1,
		QueueSize:              16,
		DeliveryTimeoutSec:     5,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  3,
		},
	}
}

func testEvent(kind models.EventKind) *models.Event {
	return &models.Event{
		ID:        "ev-1",
		Kind:      kind,
		SessionID: "default",
		Session:   "default",
		Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Message: &models.MessageEvent{
			MessageID: "m1",
			ChatID:    "491700000001@c.us",
			Body:      "hello",
		},
	}
}

func TestDispatchDeliversToMatchingSubscription(t *testing.T) {
	var delivered int32
	var gotEnvelope models.WebhookEnvelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotEnvelope))
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventMessageReceived}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
	assert.Equal(t, string(models.EventMessageReceived), gotEnvelope.Event)
	assert.Equal(t, "default", gotEnvelope.SessionID)

	attempts := db.recordedAttempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, http.StatusOK, attempts[0].StatusCode)
	assert.Equal(t, "sub-1", attempts[0].SubscriptionID)
}

func TestDispatchSkipsDisabledAndNonMatching(t *testing.T) {
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-disabled", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: false},
		{ID: "sub-calls", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventCallReceived}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&delivered))
	assert.Empty(t, db.recordedAttempts())
}

func TestDispatchWildcardSubscriptionGetsEverything(t *testing.T) {
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-all", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Dispatch(context.Background(), testEvent(models.EventCallReceived))
	d.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&delivered))
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	attempts := db.recordedAttempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, http.StatusServiceUnavailable, attempts[0].StatusCode)
	assert.NotEmpty(t, attempts[0].Error)
	assert.Equal(t, http.StatusOK, attempts[1].StatusCode)
	assert.Empty(t, attempts[1].Error)
}

func TestDispatchClientErrorIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatchSignsPayload(t *testing.T) {
	var gotSignature string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: true, Secret: "topsecret"},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestSignatureIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"message.received"}`)
	assert.Equal(t, Signature("secret", body), Signature("secret", body))
	assert.NotEqual(t, Signature("secret", body), Signature("other", body))
}

func TestDispatchUnreachableEndpointRecordsFailures(t *testing.T) {
	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: "http://127.0.0.1:1", Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
	d.Stop()

	attempts := db.recordedAttempts()
	require.Len(t, attempts, 3)
	for _, attempt := range attempts {
		assert.Equal(t, 0, attempt.StatusCode)
		assert.NotEmpty(t, attempt.Error)
	}
}

func TestDispatchAfterStopIsDropped(t *testing.T) {
	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: "http://127.0.0.1:1", Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	d := NewDispatcher(db, fastDispatcherOptions(), testLogger())
	d.Stop()
	d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))

	assert.Empty(t, db.recordedAttempts())
}

func TestDispatchConcurrentWithStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := &mockSubscriptionStore{}
	db.On("ListWebhookSubscriptions", mock.Anything, "default").Return([]*models.WebhookSubscription{
		{ID: "sub-1", SessionID: "default", URL: server.URL, Events: []models.EventKind{models.EventWildcard}, Enabled: true},
	}, nil)

	for i := 0; i < 50; i++ {
		d := NewDispatcher(db, fastDispatcherOptions(), testLogger())

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Dispatch(context.Background(), testEvent(models.EventMessageReceived))
			}()
		}
		d.Stop()
		wg.Wait()
	}
}

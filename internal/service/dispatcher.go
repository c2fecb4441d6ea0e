package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"supportbridge/internal/constants"
	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/models"
	"supportbridge/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// SubscriptionStore defines the persistence the dispatcher needs.
type SubscriptionStore interface {
	ListWebhookSubscriptions(ctx context.Context, sessionID string) ([]*models.WebhookSubscription, error)
	RecordDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
}

// Dispatcher fans events out to webhook subscribers. Delivery is
// at-least-once with bounded retries; each subscription gets its own
// queue and workers so one slow endpoint cannot stall the rest.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *models.Event)
	Stop()
}

type queuedDelivery struct {
	event        *models.Event
	subscription *models.WebhookSubscription
}

type subscriptionWorker struct {
	queue chan queuedDelivery
}

type dispatcher struct {
	db      SubscriptionStore
	http    *resty.Client
	backoff *retry.Backoff
	logger  *logrus.Logger

	workers   int
	queueSize int

	mu      sync.Mutex
	stopped bool
	pools   map[string]*subscriptionWorker
	wg      sync.WaitGroup
}

// DispatcherOptions bounds the dispatcher's concurrency and timeouts.
type DispatcherOptions struct {
	WorkersPerSubscription int
	QueueSize              int
	DeliveryTimeoutSec     int
	Backoff                retry.BackoffConfig
}

func NewDispatcher(db SubscriptionStore, opts DispatcherOptions, logger *logrus.Logger) Dispatcher {
	if opts.WorkersPerSubscription <= 0 {
		opts.WorkersPerSubscription = constants.DefaultDispatchWorkersPerSubscription
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.DefaultDispatchQueueSize
	}
	if opts.DeliveryTimeoutSec <= 0 {
		opts.DeliveryTimeoutSec = constants.DefaultDeliveryTimeoutSec
	}
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff = retry.DefaultBackoffConfig()
	}

	http := resty.New().
		SetTimeout(time.Duration(opts.DeliveryTimeoutSec) * time.Second).
		SetHeader("Content-Type", "application/json")

	return &dispatcher{
		db:        db,
		http:      http,
		backoff:   retry.NewBackoff(opts.Backoff),
		logger:    logger,
		workers:   opts.WorkersPerSubscription,
		queueSize: opts.QueueSize,
		pools:     make(map[string]*subscriptionWorker),
	}
}

// Dispatch enqueues the event for every enabled subscription whose
// filter covers it. Enqueueing never blocks; a full queue drops the
// delivery and records the drop.
func (d *dispatcher) Dispatch(ctx context.Context, ev *models.Event) {
	subscriptions, err := d.db.ListWebhookSubscriptions(ctx, ev.SessionID)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"sessionId": ev.SessionID,
			"error":     err,
		}).Error("Failed to list webhook subscriptions")
		return
	}

	for _, sub := range subscriptions {
		if !sub.Enabled || !sub.Wants(ev.Kind) {
			continue
		}
		d.enqueue(ctx, ev, sub)
	}
}

func (d *dispatcher) enqueue(ctx context.Context, ev *models.Event, sub *models.WebhookSubscription) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	worker, ok := d.pools[sub.ID]
	if !ok {
		worker = &subscriptionWorker{queue: make(chan queuedDelivery, d.queueSize)}
		d.pools[sub.ID] = worker
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work(worker.queue)
		}
	}
	// The send happens under the lock. Stop closes queues under the
	// same lock, so the send can never hit a closed channel.
	select {
	case worker.queue <- queuedDelivery{event: ev, subscription: sub}:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.logger.WithFields(logrus.Fields{
			"subscriptionId": sub.ID,
			"eventId":        ev.ID,
		}).Warn("Webhook queue full, dropping delivery")
		d.record(ctx, ev, sub, 0, 0, "queue full")
	}
}

// Stop waits for queued deliveries to drain.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, worker := range d.pools {
		close(worker.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *dispatcher) work(queue <-chan queuedDelivery) {
	defer d.wg.Done()
	for delivery := range queue {
		d.deliver(delivery.event, delivery.subscription)
	}
}

func (d *dispatcher) deliver(ev *models.Event, sub *models.WebhookSubscription) {
	body, err := json.Marshal(models.NewWebhookEnvelope(ev))
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"eventId": ev.ID,
			"error":   err,
		}).Error("Failed to encode webhook envelope")
		return
	}

	ctx := context.Background()
	attempt := 0

	err = d.backoff.RetryWithPredicate(ctx, func() error {
		attempt++
		statusCode, postErr := d.post(ctx, sub, body)
		d.record(ctx, ev, sub, attempt, statusCode, errString(postErr))
		return postErr
	}, apperrors.IsRetryable)

	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"subscriptionId": sub.ID,
			"eventId":        ev.ID,
			"attempts":       attempt,
			"error":          err,
		}).Warn("Webhook delivery gave up")
	}
}

// post sends one delivery attempt. Network failures and retryable status
// codes come back as retryable errors; other non-2xx codes are terminal.
func (d *dispatcher) post(ctx context.Context, sub *models.WebhookSubscription, body []byte) (int, error) {
	req := d.http.R().SetContext(ctx).SetBody(body)
	if sub.Secret != "" {
		req.SetHeader("X-Webhook-Signature", Signature(sub.Secret, body))
	}

	resp, err := req.Post(sub.URL)
	if err != nil {
		return 0, apperrors.WrapRetryable(err, apperrors.ErrCodeWebhookDelivery, "webhook request failed")
	}

	statusCode := resp.StatusCode()
	if statusCode >= 200 && statusCode < 300 {
		return statusCode, nil
	}

	deliveryErr := fmt.Errorf("webhook returned status %d", statusCode)
	if apperrors.RetryableStatus(statusCode) {
		return statusCode, apperrors.WrapRetryable(deliveryErr, apperrors.ErrCodeWebhookDelivery, "webhook delivery failed")
	}
	return statusCode, apperrors.Wrap(deliveryErr, apperrors.ErrCodeWebhookDelivery, "webhook delivery rejected")
}

func (d *dispatcher) record(ctx context.Context, ev *models.Event, sub *models.WebhookSubscription, attempt, statusCode int, errMsg string) {
	record := &models.DeliveryAttempt{
		EventID:        ev.ID,
		SubscriptionID: sub.ID,
		Attempt:        attempt,
		StatusCode:     statusCode,
		Error:          errMsg,
	}
	if err := d.db.RecordDeliveryAttempt(ctx, record); err != nil {
		d.logger.WithField("error", err).Debug("Failed to record delivery attempt")
	}
}

// Signature computes the hex HMAC-SHA256 of the payload, the value
// subscribers verify against the X-Webhook-Signature header.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

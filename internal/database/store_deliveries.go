package database

import (
	"context"
	"fmt"

	"supportbridge/internal/models"
)

// RecordDeliveryAttempt appends one webhook delivery try. These rows are
// bookkeeping only and are pruned by the retention scheduler.
func (d *Database) RecordDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO webhook_deliveries (event_id, subscription_id, attempt, status_code, error)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		attempt.EventID, attempt.SubscriptionID, attempt.Attempt,
		attempt.StatusCode, attempt.Error)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

// ListDeliveryAttempts returns the recorded tries for a subscription,
// newest first, bounded by limit.
func (d *Database) ListDeliveryAttempts(ctx context.Context, subscriptionID string, limit int) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT id, event_id, subscription_id, attempt, status_code, error, created_at
		FROM webhook_deliveries
		WHERE subscription_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.DeliveryAttempt
	for rows.Next() {
		attempt := &models.DeliveryAttempt{}
		if err := rows.Scan(&attempt.ID, &attempt.EventID, &attempt.SubscriptionID,
			&attempt.Attempt, &attempt.StatusCode, &attempt.Error, &attempt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery attempts: %w", err)
	}
	return attempts, nil
}

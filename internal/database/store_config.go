package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"supportbridge/internal/models"
)

// SaveIntegrationConfig inserts or replaces the integration configuration
// for a session. Callers are expected to have validated it.
func (d *Database) SaveIntegrationConfig(ctx context.Context, cfg *models.IntegrationConfig) error {
	ignoreChats, err := json.Marshal(cfg.IgnoreChats)
	if err != nil {
		return fmt.Errorf("failed to marshal ignore list: %w", err)
	}

	query := `
		INSERT INTO integration_configs (
			session_id, enabled, base_url, token, account_id, inbox_id,
			sign_agent, sign_delimiter, auto_reopen, start_pending,
			merge_brazil, auto_create, import_window_days, ignore_chats,
			call_reply_text, platform_dsn, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (session_id) DO UPDATE SET
			enabled = excluded.enabled,
			base_url = excluded.base_url,
			token = excluded.token,
			account_id = excluded.account_id,
			inbox_id = excluded.inbox_id,
			sign_agent = excluded.sign_agent,
			sign_delimiter = excluded.sign_delimiter,
			auto_reopen = excluded.auto_reopen,
			start_pending = excluded.start_pending,
			merge_brazil = excluded.merge_brazil,
			auto_create = excluded.auto_create,
			import_window_days = excluded.import_window_days,
			ignore_chats = excluded.ignore_chats,
			call_reply_text = excluded.call_reply_text,
			platform_dsn = excluded.platform_dsn,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = d.db.ExecContext(ctx, query,
		cfg.SessionID, cfg.Enabled, cfg.BaseURL, cfg.Token, cfg.AccountID, cfg.InboxID,
		cfg.SignAgent, cfg.SignDelimiter, cfg.AutoReopen, cfg.StartPending,
		cfg.MergeBrazil, cfg.AutoCreate, cfg.ImportWindowDays, string(ignoreChats),
		cfg.CallReplyText, cfg.PlatformDSN,
	)
	if err != nil {
		return fmt.Errorf("failed to save integration config: %w", err)
	}
	return nil
}

// GetIntegrationConfig retrieves the integration configuration for a
// session, or nil when none is stored.
func (d *Database) GetIntegrationConfig(ctx context.Context, sessionID string) (*models.IntegrationConfig, error) {
	query := `
		SELECT session_id, enabled, base_url, token, account_id, inbox_id,
			   sign_agent, sign_delimiter, auto_reopen, start_pending,
			   merge_brazil, auto_create, import_window_days, ignore_chats,
			   call_reply_text, platform_dsn, created_at, updated_at
		FROM integration_configs
		WHERE session_id = ?
	`

	cfg := &models.IntegrationConfig{}
	var ignoreChats string

	err := d.db.QueryRowContext(ctx, query, sessionID).Scan(
		&cfg.SessionID, &cfg.Enabled, &cfg.BaseURL, &cfg.Token, &cfg.AccountID, &cfg.InboxID,
		&cfg.SignAgent, &cfg.SignDelimiter, &cfg.AutoReopen, &cfg.StartPending,
		&cfg.MergeBrazil, &cfg.AutoCreate, &cfg.ImportWindowDays, &ignoreChats,
		&cfg.CallReplyText, &cfg.PlatformDSN, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration config: %w", err)
	}

	if err := json.Unmarshal([]byte(ignoreChats), &cfg.IgnoreChats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ignore list: %w", err)
	}
	return cfg, nil
}

// DeleteIntegrationConfig removes the integration configuration for a
// session. Deleting a missing config is not an error.
func (d *Database) DeleteIntegrationConfig(ctx context.Context, sessionID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM integration_configs WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete integration config: %w", err)
	}
	return nil
}

// SaveWebhookSubscription inserts or replaces a webhook subscription.
func (d *Database) SaveWebhookSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal event set: %w", err)
	}

	query := `
		INSERT INTO webhook_subscriptions (id, session_id, url, events, enabled, secret, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			events = excluded.events,
			enabled = excluded.enabled,
			secret = excluded.secret,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = d.db.ExecContext(ctx, query,
		sub.ID, sub.SessionID, sub.URL, string(events), sub.Enabled, sub.Secret)
	if err != nil {
		return fmt.Errorf("failed to save webhook subscription: %w", err)
	}
	return nil
}

// GetWebhookSubscription retrieves one subscription by id, or nil.
func (d *Database) GetWebhookSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	query := `
		SELECT id, session_id, url, events, enabled, secret, created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = ?
	`

	sub := &models.WebhookSubscription{}
	var events string

	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID, &sub.SessionID, &sub.URL, &events, &sub.Enabled, &sub.Secret,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}

	if err := json.Unmarshal([]byte(events), &sub.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event set: %w", err)
	}
	return sub, nil
}

// ListWebhookSubscriptions returns every subscription for a session.
func (d *Database) ListWebhookSubscriptions(ctx context.Context, sessionID string) ([]*models.WebhookSubscription, error) {
	query := `
		SELECT id, session_id, url, events, enabled, secret, created_at, updated_at
		FROM webhook_subscriptions
		WHERE session_id = ?
		ORDER BY created_at
	`

	rows, err := d.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub := &models.WebhookSubscription{}
		var events string
		if err := rows.Scan(&sub.ID, &sub.SessionID, &sub.URL, &events, &sub.Enabled,
			&sub.Secret, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(events), &sub.Events); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event set: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhook subscriptions: %w", err)
	}
	return subs, nil
}

// DeleteWebhookSubscription removes a subscription by id.
func (d *Database) DeleteWebhookSubscription(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no webhook subscription found with id: %s", id)
	}
	return nil
}

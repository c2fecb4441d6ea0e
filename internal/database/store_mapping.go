package database

import (
	"context"
	"database/sql"
	"fmt"

	"supportbridge/internal/models"
)

// UpsertIdentityMapping creates or updates the mapping for a chat. The
// unique (session_id, chat_id) constraint makes concurrent resolution for
// the same chat converge on a single row.
func (d *Database) UpsertIdentityMapping(ctx context.Context, mapping *models.IdentityMapping) error {
	query := `
		INSERT INTO identity_mappings (
			session_id, chat_id, canonical_id, contact_id, conversation_id, updated_at
		) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (session_id, chat_id) DO UPDATE SET
			canonical_id = excluded.canonical_id,
			contact_id = excluded.contact_id,
			conversation_id = excluded.conversation_id,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := d.db.ExecContext(ctx, query,
		mapping.SessionID, mapping.ChatID, mapping.CanonicalID,
		mapping.ContactID, mapping.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to upsert identity mapping: %w", err)
	}
	return nil
}

// GetIdentityMapping retrieves the mapping for a chat, or nil.
func (d *Database) GetIdentityMapping(ctx context.Context, sessionID, chatID string) (*models.IdentityMapping, error) {
	query := `
		SELECT id, session_id, chat_id, canonical_id, contact_id, conversation_id,
			   created_at, updated_at
		FROM identity_mappings
		WHERE session_id = ? AND chat_id = ?
	`

	mapping := &models.IdentityMapping{}
	err := d.db.QueryRowContext(ctx, query, sessionID, chatID).Scan(
		&mapping.ID, &mapping.SessionID, &mapping.ChatID, &mapping.CanonicalID,
		&mapping.ContactID, &mapping.ConversationID,
		&mapping.CreatedAt, &mapping.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity mapping: %w", err)
	}
	return mapping, nil
}

// GetIdentityMappingByCanonicalID finds a mapping by canonical phone
// identity, used to collapse merged number variants onto one contact.
func (d *Database) GetIdentityMappingByCanonicalID(ctx context.Context, sessionID, canonicalID string) (*models.IdentityMapping, error) {
	query := `
		SELECT id, session_id, chat_id, canonical_id, contact_id, conversation_id,
			   created_at, updated_at
		FROM identity_mappings
		WHERE session_id = ? AND canonical_id = ?
		LIMIT 1
	`

	mapping := &models.IdentityMapping{}
	err := d.db.QueryRowContext(ctx, query, sessionID, canonicalID).Scan(
		&mapping.ID, &mapping.SessionID, &mapping.ChatID, &mapping.CanonicalID,
		&mapping.ContactID, &mapping.ConversationID,
		&mapping.CreatedAt, &mapping.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity mapping by canonical id: %w", err)
	}
	return mapping, nil
}

// ListIdentityMappings returns every mapping for a session.
func (d *Database) ListIdentityMappings(ctx context.Context, sessionID string) ([]*models.IdentityMapping, error) {
	query := `
		SELECT id, session_id, chat_id, canonical_id, contact_id, conversation_id,
			   created_at, updated_at
		FROM identity_mappings
		WHERE session_id = ?
		ORDER BY id
	`

	rows, err := d.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.IdentityMapping
	for rows.Next() {
		mapping := &models.IdentityMapping{}
		if err := rows.Scan(&mapping.ID, &mapping.SessionID, &mapping.ChatID,
			&mapping.CanonicalID, &mapping.ContactID, &mapping.ConversationID,
			&mapping.CreatedAt, &mapping.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity mapping: %w", err)
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity mappings: %w", err)
	}
	return mappings, nil
}

// SaveMessageImportRecord marks a source message as mirrored. Saving an
// already-recorded message is a no-op, which keeps concurrent live sync
// and bulk import from double-counting.
func (d *Database) SaveMessageImportRecord(ctx context.Context, record *models.MessageImportRecord) error {
	query := `
		INSERT INTO message_import_records (session_id, conversation_id, source_message_id)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, source_message_id) DO NOTHING
	`

	_, err := d.db.ExecContext(ctx, query,
		record.SessionID, record.ConversationID, record.SourceMessageID)
	if err != nil {
		return fmt.Errorf("failed to save message import record: %w", err)
	}
	return nil
}

// HasMessageImportRecord reports whether a source message was already
// mirrored for the session. This is the dedup check.
func (d *Database) HasMessageImportRecord(ctx context.Context, sessionID, sourceMessageID string) (bool, error) {
	query := `
		SELECT 1 FROM message_import_records
		WHERE session_id = ? AND source_message_id = ?
	`

	var one int
	err := d.db.QueryRowContext(ctx, query, sessionID, sourceMessageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check message import record: %w", err)
	}
	return true, nil
}

// ResetIntegrationState clears identity mappings and import records for a
// session without touching remote data.
func (d *Database) ResetIntegrationState(ctx context.Context, sessionID string) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM identity_mappings WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to reset identity mappings: %w", err)
	}
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM message_import_records WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to reset message import records: %w", err)
	}
	return nil
}

// CleanupOldRecords prunes import records and delivery attempts older
// than the retention window.
func (d *Database) CleanupOldRecords(retentionDays int) error {
	if _, err := d.db.Exec(`
		DELETE FROM message_import_records
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old import records: %w", err)
	}

	if _, err := d.db.Exec(`
		DELETE FROM webhook_deliveries
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old delivery attempts: %w", err)
	}
	return nil
}

package chatwoot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is a direct connection to the platform's Postgres database, used
// only for privileged operations the REST API does not expose. It is
// optional and configured per session via a DSN.
type Store struct {
	db *sqlx.DB
}

// OpenStore connects to the platform database.
func OpenStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("platform DSN cannot be empty")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open platform database: %w", err)
	}
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping platform database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping platform database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AssignLabels attaches labels to a conversation through the platform's
// tagging tables.
func (s *Store) AssignLabels(ctx context.Context, conversationID int, labels []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin label transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, label := range labels {
		var tagID int64
		err := tx.GetContext(ctx, &tagID, `
			INSERT INTO tags (name, taggings_count)
			VALUES ($1, 0)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, label)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", label, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO taggings (tag_id, taggable_type, taggable_id, context, created_at)
			VALUES ($1, 'Conversation', $2, 'labels', NOW())
			ON CONFLICT DO NOTHING
		`, tagID, conversationID)
		if err != nil {
			return fmt.Errorf("failed to tag conversation %d with %q: %w", conversationID, label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label transaction: %w", err)
	}
	return nil
}

// DeleteOrphanContacts removes contacts in an inbox that have no
// conversations left, returning the number of rows removed.
func (s *Store) DeleteOrphanContacts(ctx context.Context, inboxID int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM contacts
		WHERE id IN (
			SELECT ci.contact_id
			FROM contact_inboxes ci
			LEFT JOIN conversations c ON c.contact_id = ci.contact_id
			WHERE ci.inbox_id = $1 AND c.id IS NULL
		)
	`, inboxID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan contacts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

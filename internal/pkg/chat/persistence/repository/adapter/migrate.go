package adapter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		conversation_id uuid NOT NULL,
		patient_id uuid,
		user_id uuid,
		sender_type varchar(10) NOT NULL,
		content text NOT NULL,
		encrypted boolean NOT NULL DEFAULT TRUE,
		read boolean NOT NULL DEFAULT FALSE,
		read_at timestamptz,
		attachment_url text,
		attachment_type varchar(50),
		dedupe_key uuid UNIQUE,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,

	// History is always read newest-first per conversation.
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_created
	ON chat_messages (conversation_id, created_at DESC)`,

	// Unread counting scans only the unread slice.
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_unread
	ON chat_messages (sender_type, conversation_id)
	WHERE read = FALSE`,
}

// Migrate applies the chat schema. Statements are idempotent, so running it
// on every boot is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate chat schema: %w", err)
		}
	}
	return nil
}

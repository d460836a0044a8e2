package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

const messageColumns = `id::text, conversation_id::text, patient_id::text, user_id::text,
	sender_type, content, encrypted, read, read_at, attachment_url, attachment_type,
	dedupe_key::text, created_at`

// PgMessageRepository persists chat messages on a pgx connection pool.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

var _ repository.MessageRepository = (*PgMessageRepository)(nil)

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Save(ctx context.Context, m chat.Message) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgMessageRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (
			conversation_id, patient_id, user_id, sender_type, content,
			encrypted, read, read_at, attachment_url, attachment_type,
			dedupe_key, created_at
		) VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, $9, $10, $11::uuid, $12)
		ON CONFLICT (dedupe_key) DO UPDATE SET content = EXCLUDED.content
		RETURNING id::text
	`, m.ConversationID, m.PatientID, m.UserID, m.SenderType, m.Content,
		m.Encrypted, m.Read, m.ReadAt, m.AttachmentURL, m.AttachmentType,
		m.DedupeKey, m.CreatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save message: %w", err)
	}
	return id, nil
}

func (r *PgMessageRepository) History(ctx context.Context, conversationID string, limit, offset int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMessageRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, messageIDs []string, readAt time.Time) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMessageRepository: nil pool")
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}
	// id::text comparison keeps malformed ids from failing the whole batch;
	// they simply match no row.
	rows, err := r.pool.Query(ctx, `
		UPDATE chat_messages
		SET read = TRUE, read_at = $2
		WHERE id::text = ANY($1::text[])
		RETURNING id::text
	`, messageIDs, readAt)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer rows.Close()

	var marked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		marked = append(marked, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return marked, nil
}

func (r *PgMessageRepository) FirstMessage(ctx context.Context, conversationID string) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMessageRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at ASC
		LIMIT 1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query first message: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, repository.ErrNotFound
	}
	msg, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *PgMessageRepository) UnreadCount(ctx context.Context, senderType, conversationID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgMessageRepository: nil pool")
	}
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE conversation_id = $1::uuid AND sender_type = $2 AND read = FALSE
	`, conversationID, senderType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *PgMessageRepository) UnreadBreakdown(ctx context.Context, senderType string, patientID *string) (int, map[string]int, error) {
	if r == nil || r.pool == nil {
		return 0, nil, errors.New("PgMessageRepository: nil pool")
	}

	var (
		rows pgx.Rows
		err  error
	)
	if patientID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT conversation_id::text, COUNT(*)
			FROM chat_messages
			WHERE sender_type = $1 AND read = FALSE AND patient_id = $2::uuid
			GROUP BY conversation_id
		`, senderType, *patientID)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT conversation_id::text, COUNT(*)
			FROM chat_messages
			WHERE sender_type = $1 AND read = FALSE
			GROUP BY conversation_id
		`, senderType)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("unread breakdown: %w", err)
	}
	defer rows.Close()

	total := 0
	byConversation := make(map[string]int)
	for rows.Next() {
		var (
			conversationID string
			count          int
		)
		if err := rows.Scan(&conversationID, &count); err != nil {
			return 0, nil, err
		}
		byConversation[conversationID] = count
		total += count
	}
	if rows.Err() != nil {
		return 0, nil, rows.Err()
	}
	return total, byConversation, nil
}

func scanMessage(rows pgx.Rows) (chat.Message, error) {
	var msg chat.Message
	err := rows.Scan(
		&msg.ID, &msg.ConversationID, &msg.PatientID, &msg.UserID,
		&msg.SenderType, &msg.Content, &msg.Encrypted, &msg.Read, &msg.ReadAt,
		&msg.AttachmentURL, &msg.AttachmentType, &msg.DedupeKey, &msg.CreatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("scan message: %w", err)
	}
	return msg, nil
}

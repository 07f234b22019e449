package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageCols = `m.id, m.chat_id, m.sender_id, m.content, m.content_format, m.type, m.attachments, m.created_at, m.updated_at`

func scanMessage(s scanner, m *model.Message) error {
	var raw []byte
	if err := s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.ContentFormat, &m.Type, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return err
	}
	m.Attachments = []model.Attachment{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Attachments); err != nil {
			return fmt.Errorf("decode attachments: %w", err)
		}
	}
	return nil
}

func collectMessages(rows pgx.Rows, capHint int) ([]model.Message, error) {
	defer rows.Close()
	msgs := make([]model.Message, 0, capHint)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	attachments := m.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("msgRepo.Create encode attachments: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, content, content_format, type, attachments, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ChatID, m.SenderID, m.Content, m.ContentFormat, m.Type, raw, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageCols+` FROM messages m WHERE m.id = $1`, id), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByChat возвращает страницу сообщений чата (новые первыми) и общее количество.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	defer logger.DeferLogDuration("msg.ListByChat", time.Now())()
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat count: %w", err)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages m
		 WHERE m.chat_id = $1
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat query: %w", err)
	}
	msgs, err := collectMessages(rows, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("msgRepo.ListByChat scan: %w", err)
	}
	return msgs, total, nil
}

// Latest возвращает последнее сообщение чата или ErrNotFound.
func (r *MessageRepository) Latest(ctx context.Context, chatID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Latest", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.db.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages m WHERE m.chat_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, chatID,
	), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Latest: %w", err)
	}
	return m, nil
}

// CountSince считает сообщения отправителя в чате, созданные не раньше since.
func (r *MessageRepository) CountSince(ctx context.Context, chatID, senderID string, since time.Time) (int, error) {
	defer logger.DeferLogDuration("msg.CountSince", time.Now())()
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND sender_id = $2 AND created_at >= $3`,
		chatID, senderID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountSince: %w", err)
	}
	return n, nil
}

// OverwriteContent заменяет содержимое сообщения (модерация/удаление); строка остаётся.
func (r *MessageRepository) OverwriteContent(ctx context.Context, id, content string, at time.Time) error {
	defer logger.DeferLogDuration("msg.OverwriteContent", time.Now())()
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET content = $2, content_format = 'plain', updated_at = $3 WHERE id = $1`, id, content, at,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.OverwriteContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search ищет по содержимому в чатах пользователя. Если chatID не пустой — только в этом чате.
// Перезаписанные модерацией/удалением сообщения не возвращаются.
func (r *MessageRepository) Search(ctx context.Context, userID, query, chatID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Search", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages m
		 JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.participant_id = $1
		 WHERE to_tsvector('simple', m.content) @@ plainto_tsquery('simple', $2)
		   AND m.content NOT IN ($3, $4)
		   AND ($5 = '' OR m.chat_id::text = $5)
		 ORDER BY m.created_at DESC
		 LIMIT $6`,
		userID, query, model.ModeratedContent, model.DeletedContent, chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search query: %w", err)
	}
	msgs, err := collectMessages(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search scan: %w", err)
	}
	return msgs, nil
}

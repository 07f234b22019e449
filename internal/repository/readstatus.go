package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

// ReadStatusRepository ведёт отметки прочтения (message_read_status).
// Отметок на собственные сообщения пользователя не бывает: все вставки фильтруют sender_id.
type ReadStatusRepository struct {
	db DBTX
}

func NewReadStatusRepository(db DBTX) *ReadStatusRepository {
	return &ReadStatusRepository{db: db}
}

// Upsert ставит отметку на одно сообщение. Существующая отметка не ошибка, read_at назад не двигается.
func (r *ReadStatusRepository) Upsert(ctx context.Context, messageID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("read.Upsert", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO message_read_status (message_id, user_id, read_at)
		 SELECT m.id, $2, $3 FROM messages m WHERE m.id = $1 AND m.sender_id <> $2
		 ON CONFLICT (message_id, user_id)
		 DO UPDATE SET read_at = GREATEST(message_read_status.read_at, EXCLUDED.read_at)`,
		messageID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("readRepo.Upsert: %w", err)
	}
	return nil
}

// MarkChat отмечает все непрочитанные чужие сообщения чата. Возвращает число новых отметок.
func (r *ReadStatusRepository) MarkChat(ctx context.Context, chatID, userID string, at time.Time) (int, error) {
	defer logger.DeferLogDuration("read.MarkChat", time.Now())()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO message_read_status (message_id, user_id, read_at)
		 SELECT m.id, $2, $3 FROM messages m
		 WHERE m.chat_id = $1 AND m.sender_id <> $2
		   AND NOT EXISTS (SELECT 1 FROM message_read_status rs WHERE rs.message_id = m.id AND rs.user_id = $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		chatID, userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("readRepo.MarkChat: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountUnread — число чужих сообщений чата без отметки пользователя.
func (r *ReadStatusRepository) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	defer logger.DeferLogDuration("read.CountUnread", time.Now())()
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.chat_id = $1 AND m.sender_id <> $2
		   AND NOT EXISTS (SELECT 1 FROM message_read_status rs WHERE rs.message_id = m.id AND rs.user_id = $2)`,
		chatID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("readRepo.CountUnread: %w", err)
	}
	return n, nil
}

// UnreadByChat — сводка непрочитанного по всем чатам пользователя (только чаты с unread > 0).
func (r *ReadStatusRepository) UnreadByChat(ctx context.Context, userID string) ([]model.UnreadChat, error) {
	defer logger.DeferLogDuration("read.UnreadByChat", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT m.chat_id, COUNT(*),
		        (ARRAY_AGG(m.id::text ORDER BY m.created_at DESC))[1],
		        MAX(m.created_at)
		 FROM messages m
		 JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.participant_id = $1
		 WHERE m.sender_id <> $1
		   AND NOT EXISTS (SELECT 1 FROM message_read_status rs WHERE rs.message_id = m.id AND rs.user_id = $1)
		 GROUP BY m.chat_id
		 ORDER BY MAX(m.created_at) DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("readRepo.UnreadByChat query: %w", err)
	}
	defer rows.Close()

	out := make([]model.UnreadChat, 0, 8)
	for rows.Next() {
		var u model.UnreadChat
		if err := rows.Scan(&u.ChatID, &u.UnreadCount, &u.LastMessageID, &u.LastMessageTime); err != nil {
			return nil, fmt.Errorf("readRepo.UnreadByChat scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readRepo.UnreadByChat rows: %w", err)
	}
	return out, nil
}

func (r *ReadStatusRepository) IsRead(ctx context.Context, messageID, userID string) (bool, error) {
	defer logger.DeferLogDuration("read.IsRead", time.Now())()
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM message_read_status WHERE message_id = $1 AND user_id = $2)`,
		messageID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("readRepo.IsRead: %w", err)
	}
	return ok, nil
}

func (r *ReadStatusRepository) ListByMessage(ctx context.Context, messageID string) ([]model.ReadMarker, error) {
	defer logger.DeferLogDuration("read.ListByMessage", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT message_id, user_id, read_at FROM message_read_status WHERE message_id = $1 ORDER BY read_at`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("readRepo.ListByMessage query: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReadMarker, 0, 4)
	for rows.Next() {
		var rm model.ReadMarker
		if err := rows.Scan(&rm.MessageID, &rm.UserID, &rm.ReadAt); err != nil {
			return nil, fmt.Errorf("readRepo.ListByMessage scan: %w", err)
		}
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readRepo.ListByMessage rows: %w", err)
	}
	return out, nil
}

// ChatCounts возвращает общее число сообщений чата и, по каждому участнику,
// число прочитанных и доступных для прочтения (чужих) сообщений.
func (r *ReadStatusRepository) ChatCounts(ctx context.Context, chatID string) (int, []model.ParticipantReadStats, error) {
	defer logger.DeferLogDuration("read.ChatCounts", time.Now())()
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("readRepo.ChatCounts total: %w", err)
	}
	rows, err := r.db.Query(ctx,
		`SELECT cp.participant_id,
		        COUNT(rs.message_id),
		        COUNT(m.id) - COUNT(rs.message_id)
		 FROM chat_participants cp
		 LEFT JOIN messages m ON m.chat_id = cp.chat_id AND m.sender_id <> cp.participant_id
		 LEFT JOIN message_read_status rs ON rs.message_id = m.id AND rs.user_id = cp.participant_id
		 WHERE cp.chat_id = $1
		 GROUP BY cp.participant_id
		 ORDER BY cp.participant_id`, chatID,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("readRepo.ChatCounts query: %w", err)
	}
	defer rows.Close()

	stats := make([]model.ParticipantReadStats, 0, 4)
	for rows.Next() {
		var s model.ParticipantReadStats
		if err := rows.Scan(&s.UserID, &s.ReadCount, &s.UnreadCount); err != nil {
			return 0, nil, fmt.Errorf("readRepo.ChatCounts scan: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("readRepo.ChatCounts rows: %w", err)
	}
	return total, stats, nil
}

// DeleteBefore удаляет отметки старше cutoff.
func (r *ReadStatusRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer logger.DeferLogDuration("read.DeleteBefore", time.Now())()
	tag, err := r.db.Exec(ctx, `DELETE FROM message_read_status WHERE read_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("readRepo.DeleteBefore: %w", err)
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

type ChatRepository struct {
	db DBTX
}

func NewChatRepository(db DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

const chatCols = `c.id, c.rescue_id, c.pet_id, c.application_id, c.status, c.created_at, c.updated_at`

func scanChat(s scanner, c *model.Chat) error {
	return s.Scan(&c.ID, &c.RescueID, &c.PetID, &c.ApplicationID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO chats (id, rescue_id, pet_id, application_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.RescueID, c.PetID, c.ApplicationID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	err := scanChat(r.db.QueryRow(ctx, `SELECT `+chatCols+` FROM chats c WHERE c.id = $1`, id), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

// GetForParticipant возвращает чат, только если userID — его участник.
// Отсутствие чата и отсутствие участия неразличимы: оба дают ErrNotFound.
func (r *ChatRepository) GetForParticipant(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetForParticipant", time.Now())()
	c := &model.Chat{}
	err := scanChat(r.db.QueryRow(ctx,
		`SELECT `+chatCols+`
		 FROM chats c
		 JOIN chat_participants cp ON cp.chat_id = c.id AND cp.participant_id = $2
		 WHERE c.id = $1`, chatID, userID,
	), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetForParticipant: %w", err)
	}
	return c, nil
}

// ListForUser возвращает чаты пользователя (сначала недавно активные) и общее количество.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string, status model.ChatStatus, limit, offset int) ([]model.Chat, int, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chats c
		 JOIN chat_participants cp ON cp.chat_id = c.id
		 WHERE cp.participant_id = $1 AND ($2 = '' OR c.status = $2)`, userID, string(status),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser count: %w", err)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chatCols+`
		 FROM chats c
		 JOIN chat_participants cp ON cp.chat_id = c.id
		 WHERE cp.participant_id = $1 AND ($2 = '' OR c.status = $2)
		 ORDER BY c.updated_at DESC
		 LIMIT $3 OFFSET $4`, userID, string(status), limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0, limit)
	for rows.Next() {
		var c model.Chat
		if err := scanChat(rows, &c); err != nil {
			return nil, 0, fmt.Errorf("chatRepo.ListForUser scan: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("chatRepo.ListForUser rows: %w", err)
	}
	return chats, total, nil
}

func (r *ChatRepository) UpdateStatus(ctx context.Context, id string, status model.ChatStatus, at time.Time) error {
	defer logger.DeferLogDuration("chat.UpdateStatus", time.Now())()
	tag, err := r.db.Exec(ctx, `UPDATE chats SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch обновляет время последней активности чата.
func (r *ChatRepository) Touch(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("chat.Touch", time.Now())()
	_, err := r.db.Exec(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("chatRepo.Touch: %w", err)
	}
	return nil
}

// Delete физически удаляет чат; участники, сообщения, реакции и отметки удаляются каскадом.
func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("chat.Delete", time.Now())()
	tag, err := r.db.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("chatRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant возвращает false, если участник уже есть.
func (r *ChatRepository) AddParticipant(ctx context.Context, p *model.Participant) (bool, error) {
	defer logger.DeferLogDuration("chat.AddParticipant", time.Now())()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, participant_id, role, joined_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		p.ChatID, p.ParticipantID, p.Role, p.JoinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("chatRepo.AddParticipant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ChatRepository) GetParticipant(ctx context.Context, chatID, userID string) (*model.Participant, error) {
	defer logger.DeferLogDuration("chat.GetParticipant", time.Now())()
	p := &model.Participant{}
	err := r.db.QueryRow(ctx,
		`SELECT chat_id, participant_id, role, joined_at, last_read_at
		 FROM chat_participants WHERE chat_id = $1 AND participant_id = $2`, chatID, userID,
	).Scan(&p.ChatID, &p.ParticipantID, &p.Role, &p.JoinedAt, &p.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipant: %w", err)
	}
	return p, nil
}

func (r *ChatRepository) ListParticipants(ctx context.Context, chatID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("chat.ListParticipants", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT chat_id, participant_id, role, joined_at, last_read_at
		 FROM chat_participants WHERE chat_id = $1
		 ORDER BY joined_at, participant_id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListParticipants query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0, 4)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ChatID, &p.ParticipantID, &p.Role, &p.JoinedAt, &p.LastReadAt); err != nil {
			return nil, fmt.Errorf("chatRepo.ListParticipants scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListParticipants rows: %w", err)
	}
	return out, nil
}

// RemoveParticipant — жёсткое удаление. false, если участника не было.
func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chat.RemoveParticipant", time.Now())()
	tag, err := r.db.Exec(ctx,
		`DELETE FROM chat_participants WHERE chat_id = $1 AND participant_id = $2`, chatID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("chatRepo.RemoveParticipant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateLastReadAt двигает last_read_at только вперёд.
func (r *ChatRepository) UpdateLastReadAt(ctx context.Context, chatID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("chat.UpdateLastReadAt", time.Now())()
	_, err := r.db.Exec(ctx,
		`UPDATE chat_participants SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3)
		 WHERE chat_id = $1 AND participant_id = $2`, chatID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateLastReadAt: %w", err)
	}
	return nil
}

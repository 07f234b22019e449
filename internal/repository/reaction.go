package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

type ReactionRepository struct {
	db DBTX
}

func NewReactionRepository(db DBTX) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Add идемпотентен: повторная реакция тем же эмодзи не создаёт дубликат.
func (r *ReactionRepository) Add(ctx context.Context, rc *model.Reaction) error {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		rc.MessageID, rc.UserID, rc.Emoji, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Add: %w", err)
	}
	return nil
}

// Remove сообщает, была ли реакция на самом деле.
func (r *ReactionRepository) Remove(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	defer logger.DeferLogDuration("reaction.Remove", time.Now())()
	tag, err := r.db.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByMessages возвращает реакции для набора сообщений, сгруппированные по message_id.
func (r *ReactionRepository) ListByMessages(ctx context.Context, messageIDs []string) (map[string][]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessages", time.Now())()
	out := make(map[string][]model.Reaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT message_id, user_id, emoji, created_at
		 FROM message_reactions
		 WHERE message_id::text = ANY($1)
		 ORDER BY created_at`, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessages query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByMessages scan: %w", err)
		}
		out[rc.MessageID] = append(out[rc.MessageID], rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessages rows: %w", err)
	}
	return out, nil
}

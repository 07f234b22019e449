package service

import (
	"context"
	"time"

	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

const defaultReadHorizonDays = 90

// ReadTracker ведёт отметки прочтения и агрегаты по ним.
type ReadTracker struct {
	store Store
	audit audit.Logger
	now   func() time.Time
}

func NewReadTracker(store Store, auditLog audit.Logger) *ReadTracker {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &ReadTracker{store: store, audit: auditLog, now: func() time.Time { return time.Now().UTC() }}
}

// MarkMessageAsRead ставит отметку на одно сообщение. Своё сообщение не отмечается.
func (t *ReadTracker) MarkMessageAsRead(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("reads.MarkMessageAsRead", time.Now())()
	if !validID(messageID) {
		return ErrMessageNotFound
	}
	msg, err := t.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return notFound(err, ErrMessageNotFound)
	}
	if _, err := t.store.Chats().GetParticipant(ctx, msg.ChatID, userID); err != nil {
		return notFound(err, ErrNotParticipant)
	}
	if msg.SenderID == userID {
		return nil
	}
	return t.store.Reads().Upsert(ctx, messageID, userID, t.now())
}

// MarkAllAsRead отмечает все чужие сообщения чата и двигает last_read_at участника.
// Возвращает число новых отметок.
func (t *ReadTracker) MarkAllAsRead(ctx context.Context, chatID, userID string) (int, error) {
	defer logger.DeferLogDuration("reads.MarkAllAsRead", time.Now())()
	if !validID(chatID) {
		return 0, ErrChatNotFoundOrNotParticipant
	}
	now := t.now()
	var marked int
	err := t.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Chats().GetParticipant(ctx, chatID, userID); err != nil {
			return notFound(err, ErrChatNotFoundOrNotParticipant)
		}
		var err error
		if marked, err = tx.Reads().MarkChat(ctx, chatID, userID, now); err != nil {
			return err
		}
		return tx.Chats().UpdateLastReadAt(ctx, chatID, userID, now)
	})
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		t.audit.Log(audit.Record{
			Action:   audit.ActionMessagesBulkRead,
			Entity:   "Chat",
			EntityID: chatID,
			UserID:   userID,
			Details:  map[string]any{"message_count": marked},
		})
	}
	return marked, nil
}

// UnreadCount — число непрочитанных чужих сообщений в чате.
func (t *ReadTracker) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	defer logger.DeferLogDuration("reads.UnreadCount", time.Now())()
	if !validID(chatID) {
		return 0, ErrChatNotFoundOrNotParticipant
	}
	if _, err := t.store.Chats().GetParticipant(ctx, chatID, userID); err != nil {
		return 0, notFound(err, ErrChatNotFoundOrNotParticipant)
	}
	return t.store.Reads().CountUnread(ctx, chatID, userID)
}

// UnreadForUser — чаты пользователя, где есть непрочитанное.
func (t *ReadTracker) UnreadForUser(ctx context.Context, userID string) ([]model.UnreadChat, error) {
	defer logger.DeferLogDuration("reads.UnreadForUser", time.Now())()
	out, err := t.store.Reads().UnreadByChat(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.UnreadChat{}
	}
	return out, nil
}

func (t *ReadTracker) IsMessageRead(ctx context.Context, messageID, userID string) (bool, error) {
	if !validID(messageID) {
		return false, nil
	}
	return t.store.Reads().IsRead(ctx, messageID, userID)
}

// MessageReadInfo — кто из участников прочитал сообщение. Запрашивающий должен быть участником чата.
func (t *ReadTracker) MessageReadInfo(ctx context.Context, messageID, requesterID string) (*model.MessageReadInfo, error) {
	defer logger.DeferLogDuration("reads.MessageReadInfo", time.Now())()
	if !validID(messageID) {
		return nil, ErrMessageNotFound
	}
	msg, err := t.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, ErrMessageNotFound)
	}
	participants, err := t.store.Chats().ListParticipants(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, p := range participants {
		if p.ParticipantID == requesterID {
			member = true
			break
		}
	}
	if !member {
		return nil, ErrNotParticipant
	}
	markers, err := t.store.Reads().ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return buildReadInfo(msg, participants, markers), nil
}

func buildReadInfo(msg *model.Message, participants []model.Participant, markers []model.ReadMarker) *model.MessageReadInfo {
	readAt := make(map[string]time.Time, len(markers))
	for _, m := range markers {
		readAt[m.UserID] = m.ReadAt
	}
	info := &model.MessageReadInfo{MessageID: msg.ID, ReadBy: []model.ReadBy{}, UnreadBy: []string{}}
	for _, p := range participants {
		if p.ParticipantID == msg.SenderID {
			continue
		}
		info.TotalParticipants++
		if at, ok := readAt[p.ParticipantID]; ok {
			info.ReadBy = append(info.ReadBy, model.ReadBy{UserID: p.ParticipantID, ReadAt: at})
		} else {
			info.UnreadBy = append(info.UnreadBy, p.ParticipantID)
		}
	}
	info.ReadCount = len(info.ReadBy)
	info.ReadPercentage = model.Percentage(info.ReadCount, info.TotalParticipants)
	return info
}

// ChatReadStatistics — прочитанное и непрочитанное по каждому участнику чата.
func (t *ReadTracker) ChatReadStatistics(ctx context.Context, chatID, requesterID string) (*model.ChatReadStats, error) {
	defer logger.DeferLogDuration("reads.ChatReadStatistics", time.Now())()
	if !validID(chatID) {
		return nil, ErrChatNotFoundOrNotParticipant
	}
	if _, err := t.store.Chats().GetParticipant(ctx, chatID, requesterID); err != nil {
		return nil, notFound(err, ErrChatNotFoundOrNotParticipant)
	}
	total, per, err := t.store.Reads().ChatCounts(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var read, readable int
	for _, p := range per {
		read += p.ReadCount
		readable += p.ReadCount + p.UnreadCount
	}
	if per == nil {
		per = []model.ParticipantReadStats{}
	}
	return &model.ChatReadStats{
		ChatID:         chatID,
		TotalMessages:  total,
		Participants:   per,
		ReadPercentage: model.Percentage(read, readable),
	}, nil
}

// Cleanup удаляет отметки старше days дней (по умолчанию 90).
func (t *ReadTracker) Cleanup(ctx context.Context, days int) (int64, error) {
	defer logger.DeferLogDuration("reads.Cleanup", time.Now())()
	if days <= 0 {
		days = defaultReadHorizonDays
	}
	n, err := t.store.Reads().DeleteBefore(ctx, t.now().AddDate(0, 0, -days))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Infof("reads: removed %d read markers older than %d days", n, days)
	}
	return n, nil
}

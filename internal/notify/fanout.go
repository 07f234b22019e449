package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
	"github.com/petchat/internal/service"
)

const previewLength = 120

type MessageGetter interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
}

type ParticipantLister interface {
	ListParticipants(ctx context.Context, chatID string) ([]model.Participant, error)
}

// FanOut рассылает уведомление о новом сообщении всем участникам чата, кроме отправителя.
type FanOut struct {
	router       *Router
	messages     MessageGetter
	participants ParticipantLister
	users        Directory
}

func NewFanOut(router *Router, messages MessageGetter, participants ParticipantLister, users Directory) *FanOut {
	return &FanOut{router: router, messages: messages, participants: participants, users: users}
}

// MessageSent — обработчик события chat:message_sent. Повторная обработка того же события
// не создаёт дублей благодаря ключу msg:<messageId>:<userId>. Ошибка отдельного получателя
// только логируется.
func (f *FanOut) MessageSent(ctx context.Context, ev service.MessageSentEvent) error {
	defer logger.DeferLogDuration("notify.FanOut", time.Now())()
	msg, err := f.messages.GetByID(ctx, ev.MessageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fanout load message: %w", err)
	}
	participants, err := f.participants.ListParticipants(ctx, msg.ChatID)
	if err != nil {
		return fmt.Errorf("fanout load participants: %w", err)
	}

	senderName := "Someone"
	if id, err := f.users.GetIdentity(ctx, msg.SenderID); err == nil && id.DisplayName != "" {
		senderName = id.DisplayName
	}
	title := "New message from " + senderName
	body := Preview(msg)

	for _, p := range participants {
		if p.ParticipantID == msg.SenderID {
			continue
		}
		_, err := f.router.Notify(ctx, Request{
			UserID:            p.ParticipantID,
			Type:              model.TypeMessageReceived,
			Priority:          model.PriorityNormal,
			Title:             title,
			Message:           body,
			Data:              map[string]any{"chat_id": msg.ChatID, "message_id": msg.ID, "sender_id": msg.SenderID},
			RelatedEntityType: "message",
			RelatedEntityID:   msg.ID,
			DedupeKey:         "msg:" + msg.ID + ":" + p.ParticipantID,
		})
		if err != nil {
			logger.Errorf("notify: fanout chat=%s msg=%s user=%s: %v", msg.ChatID, msg.ID, p.ParticipantID, err)
		}
	}
	return nil
}

// Preview — текст уведомления о сообщении: первые 120 символов содержимого или «Sent an attachment».
func Preview(msg *model.Message) string {
	if msg.Content == "" {
		if len(msg.Attachments) > 0 {
			return "Sent an attachment"
		}
		return "New message"
	}
	if utf8.RuneCountInString(msg.Content) <= previewLength {
		return msg.Content
	}
	r := []rune(msg.Content)
	return string(r[:previewLength]) + "..."
}

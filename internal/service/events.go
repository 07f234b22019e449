package service

import "context"

// MessageSentEvent публикуется после коммита отправки сообщения.
type MessageSentEvent struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

// EventPublisher передаёт события переписки в фоновую обработку (рассылка уведомлений).
type EventPublisher interface {
	MessageSent(ctx context.Context, ev MessageSentEvent) error
}

type nopPublisher struct{}

func (nopPublisher) MessageSent(context.Context, MessageSentEvent) error { return nil }

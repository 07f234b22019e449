package ws

import "github.com/petchat/internal/model"

type EventType string

const (
	// Сервер -> клиент
	EventNotification EventType = "notification"
	EventChatRead     EventType = "chat_read"
	EventError        EventType = "error"
	EventPong         EventType = "pong"

	// Клиент -> сервер
	EventMarkChatRead         EventType = "mark_chat_read"
	EventMarkNotificationRead EventType = "mark_notification_read"
	EventPing                 EventType = "ping"
)

// IncomingMessage — сообщение клиента.
type IncomingMessage struct {
	Type           EventType `json:"type"`
	ChatID         string    `json:"chat_id,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
}

// OutgoingMessage — сообщение сервера.
type OutgoingMessage struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// ChatReadPayload — подтверждение отметки чата прочитанным.
type ChatReadPayload struct {
	ChatID string `json:"chat_id"`
	Marked int    `json:"marked"`
}

// envelope — формат сообщения в канале Redis.
type envelope struct {
	UserID       string              `json:"user_id"`
	Notification *model.Notification `json:"notification"`
}

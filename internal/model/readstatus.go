package model

import "time"

// ReadMarker — факт прочтения сообщения пользователем.
type ReadMarker struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type ReadBy struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageReadInfo — кто прочитал сообщение. Отправитель в знаменатель не входит.
type MessageReadInfo struct {
	MessageID         string   `json:"message_id"`
	ReadBy            []ReadBy `json:"read_by"`
	UnreadBy          []string `json:"unread_by"`
	ReadCount         int      `json:"read_count"`
	TotalParticipants int      `json:"total_participants"`
	ReadPercentage    int      `json:"read_percentage"`
}

// UnreadChat — сводка непрочитанного по одному чату.
type UnreadChat struct {
	ChatID          string    `json:"chat_id"`
	UnreadCount     int       `json:"unread_count"`
	LastMessageID   string    `json:"last_message_id"`
	LastMessageTime time.Time `json:"last_message_time"`
}

type ParticipantReadStats struct {
	UserID      string `json:"user_id"`
	ReadCount   int    `json:"read_count"`
	UnreadCount int    `json:"unread_count"`
}

type ChatReadStats struct {
	ChatID         string                 `json:"chat_id"`
	TotalMessages  int                    `json:"total_messages"`
	Participants   []ParticipantReadStats `json:"participants"`
	ReadPercentage int                    `json:"read_percentage"`
}

// Percentage округляет part/total*100 до целого; при total == 0 возвращает 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (part*200 + total) / (total * 2)
}

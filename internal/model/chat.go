package model

import "time"

type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
)

type ParticipantRole string

const (
	RoleUser   ParticipantRole = "user"
	RoleRescue ParticipantRole = "rescue"
)

// Valid сообщает, известна ли роль.
func (r ParticipantRole) Valid() bool {
	return r == RoleUser || r == RoleRescue
}

// Chat — переписка в рамках одного приюта, опционально привязанная к питомцу и/или заявке.
type Chat struct {
	ID            string        `json:"id"`
	RescueID      string        `json:"rescue_id"`
	PetID         *string       `json:"pet_id,omitempty"`
	ApplicationID *string       `json:"application_id,omitempty"`
	Status        ChatStatus    `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Participants  []Participant `json:"participants,omitempty"`
}

// CanTransitionTo: единственный допустимый переход active -> archived.
func (c *Chat) CanTransitionTo(next ChatStatus) bool {
	return c.Status == ChatStatusActive && next == ChatStatusArchived
}

type Participant struct {
	ChatID        string          `json:"chat_id"`
	ParticipantID string          `json:"participant_id"`
	Role          ParticipantRole `json:"role"`
	JoinedAt      time.Time       `json:"joined_at"`
	LastReadAt    *time.Time      `json:"last_read_at,omitempty"`
}

// ParticipantSpec — участник при создании чата с явной ролью.
type ParticipantSpec struct {
	ParticipantID string          `json:"participant_id"`
	Role          ParticipantRole `json:"role"`
}

// ChatSummary — элемент списка чатов пользователя.
type ChatSummary struct {
	Chat        Chat     `json:"chat"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

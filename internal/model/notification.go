package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type NotificationType string

const (
	TypeApplicationStatus  NotificationType = "application_status"
	TypeMessageReceived    NotificationType = "message_received"
	TypePetAvailable       NotificationType = "pet_available"
	TypeInterviewScheduled NotificationType = "interview_scheduled"
	TypeHomeVisitScheduled NotificationType = "home_visit_scheduled"
	TypeAdoptionApproved   NotificationType = "adoption_approved"
	TypeAdoptionRejected   NotificationType = "adoption_rejected"
	TypeReferenceRequest   NotificationType = "reference_request"
	TypeSystemAnnouncement NotificationType = "system_announcement"
	TypeAccountSecurity    NotificationType = "account_security"
	TypeReminder           NotificationType = "reminder"
	TypeMarketing          NotificationType = "marketing"
	TypeRescueInvitation   NotificationType = "rescue_invitation"
	TypeStaffAssignment    NotificationType = "staff_assignment"
	TypePetUpdate          NotificationType = "pet_update"
	TypeFollowUp           NotificationType = "follow_up"
)

// Category — группа типов, на которую у пользователя есть отдельная подписка.
type Category string

const (
	CategoryApplication Category = "application"
	CategoryMessage     Category = "message"
	CategorySystem      Category = "system"
	CategorySecurity    Category = "security"
	CategoryReminder    Category = "reminder"
	CategoryMarketing   Category = "marketing"
	CategoryOther       Category = "other"
)

var typeCategories = map[NotificationType]Category{
	TypeApplicationStatus:  CategoryApplication,
	TypeInterviewScheduled: CategoryApplication,
	TypeHomeVisitScheduled: CategoryApplication,
	TypeAdoptionApproved:   CategoryApplication,
	TypeAdoptionRejected:   CategoryApplication,
	TypeReferenceRequest:   CategoryApplication,
	TypeMessageReceived:    CategoryMessage,
	TypeSystemAnnouncement: CategorySystem,
	TypeAccountSecurity:    CategorySecurity,
	TypeReminder:           CategoryReminder,
	TypeFollowUp:           CategoryReminder,
	TypeMarketing:          CategoryMarketing,
}

// Category возвращает категорию типа; неизвестные типы попадают в CategoryOther.
func (t NotificationType) Category() Category {
	if c, ok := typeCategories[t]; ok {
		return c
	}
	return CategoryOther
}

// Valid сообщает, известен ли тип.
func (t NotificationType) Valid() bool {
	switch t {
	case TypePetAvailable, TypeRescueInvitation, TypeStaffAssignment, TypePetUpdate:
		return true
	}
	_, ok := typeCategories[t]
	return ok
}

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DefaultExpiry — срок жизни уведомления по приоритету.
func DefaultExpiry(p Priority) time.Duration {
	switch p {
	case PriorityUrgent:
		return time.Hour
	case PriorityHigh:
		return 24 * time.Hour
	case PriorityLow:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// RetryBackoff — пауза перед повторной доставкой по приоритету.
func RetryBackoff(p Priority) time.Duration {
	switch p {
	case PriorityUrgent:
		return time.Minute
	case PriorityHigh:
		return 5 * time.Minute
	case PriorityLow:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusRead      NotificationStatus = "read"
	StatusFailed    NotificationStatus = "failed"
	StatusCancelled NotificationStatus = "cancelled"
)

const (
	DefaultMaxRetries = 3
	MaxTitleLength    = 255
	MaxMessageLength  = 5000
)

var ErrInvalidTransition = errors.New("invalid notification status transition")

// Notification — одно уведомление одному получателю.
type Notification struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	Type              NotificationType   `json:"type"`
	Channel           Channel            `json:"channel"`
	Priority          Priority           `json:"priority"`
	Status            NotificationStatus `json:"status"`
	Title             string             `json:"title"`
	Message           string             `json:"message"`
	Data              json.RawMessage    `json:"data,omitempty"`
	RelatedEntityType string             `json:"related_entity_type,omitempty"`
	RelatedEntityID   string             `json:"related_entity_id,omitempty"`
	DedupeKey         string             `json:"-"`
	ScheduledFor      *time.Time         `json:"scheduled_for,omitempty"`
	SentAt            *time.Time         `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time         `json:"delivered_at,omitempty"`
	ReadAt            *time.Time         `json:"read_at,omitempty"`
	ClickedAt         *time.Time         `json:"clicked_at,omitempty"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty"`
	RetryCount        int                `json:"retry_count"`
	MaxRetries        int                `json:"max_retries"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ApplyDefaults заполняет незаданные поля: статус, канал, приоритет, лимит повторов и срок жизни.
func (n *Notification) ApplyDefaults(now time.Time) {
	if n.Status == "" {
		n.Status = StatusPending
	}
	if n.Channel == "" {
		n.Channel = ChannelInApp
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = DefaultMaxRetries
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.ExpiresAt == nil {
		exp := now.Add(DefaultExpiry(n.Priority))
		n.ExpiresAt = &exp
	}
}

// Validate проверяет обязательные поля и длины.
func (n *Notification) Validate() error {
	switch {
	case n.UserID == "":
		return errors.New("user id is required")
	case !n.Type.Valid():
		return fmt.Errorf("unknown notification type %q", n.Type)
	case n.Title == "" || len([]rune(n.Title)) > MaxTitleLength:
		return fmt.Errorf("title must be between 1 and %d characters", MaxTitleLength)
	case n.Message == "" || len([]rune(n.Message)) > MaxMessageLength:
		return fmt.Errorf("message must be between 1 and %d characters", MaxMessageLength)
	}
	return nil
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

func (n *Notification) CanRetry(now time.Time) bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries && !n.IsExpired(now)
}

// ShouldSend: срок не истёк, время отправки наступило, статус pending или failed.
func (n *Notification) ShouldSend(now time.Time) bool {
	if n.IsExpired(now) {
		return false
	}
	if n.ScheduledFor != nil && now.Before(*n.ScheduledFor) {
		return false
	}
	return n.Status == StatusPending || n.Status == StatusFailed
}

func (n *Notification) IsTerminal() bool {
	return n.Status == StatusRead || n.Status == StatusCancelled
}

var transitions = map[NotificationStatus][]NotificationStatus{
	StatusPending:   {StatusSent, StatusFailed, StatusCancelled, StatusRead},
	StatusSent:      {StatusDelivered, StatusRead, StatusFailed},
	StatusDelivered: {StatusRead},
	StatusFailed:    {StatusPending, StatusCancelled},
}

// TransitionTo переводит уведомление в next, проставляя соответствующие отметки времени.
// failed -> pending разрешён только через Retry.
func (n *Notification) TransitionTo(next NotificationStatus, now time.Time) error {
	if n.Status == StatusFailed && next == StatusPending {
		return fmt.Errorf("%w: use retry", ErrInvalidTransition)
	}
	return n.transition(next, now)
}

func (n *Notification) transition(next NotificationStatus, now time.Time) error {
	allowed := false
	for _, s := range transitions[n.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, next)
	}
	n.Status = next
	n.UpdatedAt = now
	switch next {
	case StatusSent:
		n.SentAt = &now
	case StatusDelivered:
		n.DeliveredAt = &now
	case StatusRead:
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	return nil
}

// MarkFailed фиксирует неудачную попытку доставки. Счётчик попыток увеличивается,
// статус остаётся failed до явного Retry.
func (n *Notification) MarkFailed(reason string, now time.Time) error {
	if err := n.transition(StatusFailed, now); err != nil {
		return err
	}
	n.RetryCount++
	n.ErrorMessage = reason
	return nil
}

// Retry возвращает failed -> pending, пока не исчерпан лимит и не истёк срок.
func (n *Notification) Retry(now time.Time) error {
	if !n.CanRetry(now) {
		return fmt.Errorf("%w: retry not allowed (status=%s retries=%d/%d)", ErrInvalidTransition, n.Status, n.RetryCount, n.MaxRetries)
	}
	return n.transition(StatusPending, now)
}

// MarkRead переводит любое нетерминальное состояние в read. Повторный вызов ничего не делает.
func (n *Notification) MarkRead(now time.Time) error {
	if n.Status == StatusRead {
		return nil
	}
	if n.Status == StatusCancelled {
		return fmt.Errorf("%w: %s -> read", ErrInvalidTransition, n.Status)
	}
	n.Status = StatusRead
	n.ReadAt = &now
	n.UpdatedAt = now
	return nil
}

// MarkClicked — клик подразумевает прочтение.
func (n *Notification) MarkClicked(now time.Time) error {
	if err := n.MarkRead(now); err != nil {
		return err
	}
	if n.ClickedAt == nil {
		n.ClickedAt = &now
	}
	return nil
}

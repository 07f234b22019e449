package model

import "time"

// DeliveryResult — итог одной попытки доставки по одному каналу.
type DeliveryResult struct {
	Channel    Channel   `json:"channel"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	At         time.Time `json:"attempted_at"`
}

// NotificationFilter — фильтр списка уведомлений пользователя.
type NotificationFilter struct {
	Status NotificationStatus
	Type   NotificationType
	Limit  int
	Offset int
}

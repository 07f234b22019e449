package storage

import (
	"context"
	"errors"
	"time"
)

// Лимиты подписок Web Push на пользователя.
const (
	MaxSubscriptionsPerUser = 10
	SubscriptionTTL         = 30 * 24 * time.Hour
)

// Subscription — подписка Web Push из браузера.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

var ErrInvalidSubscription = errors.New("endpoint, keys.p256dh and keys.auth are required")

func (s Subscription) Validate() error {
	if s.Endpoint == "" || s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return ErrInvalidSubscription
	}
	return nil
}

// SubscriptionStore — хранилище push-подписок (device tokens).
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type SubscriptionStore interface {
	// Add сохраняет подписку; повторный endpoint заменяет старую запись. Хранятся последние
	// MaxSubscriptionsPerUser, срок жизни продлевается на SubscriptionTTL.
	Add(ctx context.Context, userID string, sub Subscription) error
	Remove(ctx context.Context, userID, endpoint string) error
	List(ctx context.Context, userID string) ([]Subscription, error)
	HasActive(ctx context.Context, userID string) (bool, error)
	Close() error
}

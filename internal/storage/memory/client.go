package memory

import (
	"context"
	"sync"
	"time"

	"github.com/petchat/internal/storage"
)

type entry struct {
	subs []storage.Subscription
	exp  time.Time
}

// Client — подписки в памяти процесса для -dev и тестов. Поведение повторяет redis.Client.
type Client struct {
	mu    sync.RWMutex
	users map[string]entry
	now   func() time.Time
}

var _ storage.SubscriptionStore = (*Client)(nil)

func New() *Client {
	return &Client{users: make(map[string]entry), now: time.Now}
}

func (c *Client) Close() error { return nil }

func (c *Client) live(userID string) []storage.Subscription {
	e, ok := c.users[userID]
	if !ok || c.now().After(e.exp) {
		return nil
	}
	return e.subs
}

func (c *Client) Add(ctx context.Context, userID string, sub storage.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := withoutEndpoint(c.live(userID), sub.Endpoint)
	subs = append(subs, sub)
	if len(subs) > storage.MaxSubscriptionsPerUser {
		subs = subs[len(subs)-storage.MaxSubscriptionsPerUser:]
	}
	c.users[userID] = entry{subs: subs, exp: c.now().Add(storage.SubscriptionTTL)}
	return nil
}

func (c *Client) Remove(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := withoutEndpoint(c.live(userID), endpoint)
	if len(subs) == 0 {
		delete(c.users, userID)
		return nil
	}
	c.users[userID] = entry{subs: subs, exp: c.now().Add(storage.SubscriptionTTL)}
	return nil
}

func (c *Client) List(ctx context.Context, userID string) ([]storage.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	live := c.live(userID)
	out := make([]storage.Subscription, len(live))
	copy(out, live)
	return out, nil
}

func (c *Client) HasActive(ctx context.Context, userID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.live(userID)) > 0, nil
}

func withoutEndpoint(subs []storage.Subscription, endpoint string) []storage.Subscription {
	out := make([]storage.Subscription, 0, len(subs)+1)
	for _, s := range subs {
		if s.Endpoint != endpoint {
			out = append(out, s)
		}
	}
	return out
}

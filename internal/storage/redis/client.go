package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petchat/internal/storage"
)

// Подписки пользователя хранятся списком JSON-строк по ключу push:subs:{userID}.
const subsKeyPrefix = "push:subs:"

type Client struct {
	cli *redis.Client
}

var _ storage.SubscriptionStore = (*Client)(nil)

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Wrap использует уже подключённый клиент (общий с pubsub и аудитом).
func Wrap(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

// Redis — исходный клиент для pubsub и потока аудита.
func (c *Client) Redis() *redis.Client {
	return c.cli
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Add(ctx context.Context, userID string, sub storage.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := subsKeyPrefix + userID
	kept, err := c.without(ctx, key, sub.Endpoint)
	if err != nil {
		return err
	}
	kept = append(kept, string(raw))
	return c.replace(ctx, key, kept)
}

func (c *Client) Remove(ctx context.Context, userID, endpoint string) error {
	key := subsKeyPrefix + userID
	kept, err := c.without(ctx, key, endpoint)
	if err != nil {
		return err
	}
	return c.replace(ctx, key, kept)
}

func (c *Client) List(ctx context.Context, userID string) ([]storage.Subscription, error) {
	items, err := c.cli.LRange(ctx, subsKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis subs list: %w", err)
	}
	subs := make([]storage.Subscription, 0, len(items))
	for _, item := range items {
		var sub storage.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// HasActive: ключ с истёкшим TTL Redis удаляет сам, поэтому достаточно длины списка.
func (c *Client) HasActive(ctx context.Context, userID string) (bool, error) {
	n, err := c.cli.LLen(ctx, subsKeyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis subs len: %w", err)
	}
	return n > 0, nil
}

// without возвращает элементы списка, кроме подписки с данным endpoint.
func (c *Client) without(ctx context.Context, key, endpoint string) ([]string, error) {
	items, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis subs list: %w", err)
	}
	kept := make([]string, 0, len(items))
	for _, item := range items {
		var sub storage.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// replace атомарно перезаписывает список, обрезает до лимита и продлевает TTL.
func (c *Client) replace(ctx context.Context, key string, items []string) error {
	_, err := c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(items) == 0 {
			return nil
		}
		vals := make([]any, len(items))
		for i, v := range items {
			vals[i] = v
		}
		pipe.RPush(ctx, key, vals...)
		pipe.LTrim(ctx, key, -storage.MaxSubscriptionsPerUser, -1)
		pipe.Expire(ctx, key, storage.SubscriptionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis subs save: %w", err)
	}
	return nil
}

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

// InAppChannel — канал Redis, через который воркер передаёт in-app уведомления API.
const InAppChannel = "notifications:inapp"

// RedisRelay публикует in-app уведомления в Redis и доставляет их из Redis в Hub.
// Воркер только публикует, API подписывается.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
}

func NewRedisRelay(rdb *redis.Client) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: InAppChannel}
}

func (r *RedisRelay) PublishInApp(ctx context.Context, n *model.Notification) error {
	raw, err := json.Marshal(envelope{UserID: n.UserID, Notification: n})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("ws relay publish: %w", err)
	}
	return nil
}

// Run подписывается на канал и пересылает уведомления в hub до отмены ctx.
// go-redis сам переподключает подписку при обрыве соединения.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	ch := sub.Channel(redis.WithChannelHealthCheckInterval(30 * time.Second))
	logger.Infof("ws relay subscribed to %s", r.channel)
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil || env.Notification == nil {
				logger.Errorf("ws relay: bad payload: %v", err)
				continue
			}
			hub.DeliverNotification(env.Notification)
		}
	}
}

// LocalRelay доставляет уведомления прямо в Hub того же процесса (-dev без Redis).
type LocalRelay struct {
	hub *Hub
}

func NewLocalRelay(hub *Hub) *LocalRelay { return &LocalRelay{hub: hub} }

func (l *LocalRelay) PublishInApp(_ context.Context, n *model.Notification) error {
	l.hub.DeliverNotification(n)
	return nil
}

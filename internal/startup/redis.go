package startup

import (
	"context"
	"time"

	redisstorage "github.com/petchat/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
// Клиент общий: подписки push, поток аудита и pubsub in-app уведомлений.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	return untilReady("redis", maxWait, logPrefix, func(ctx context.Context) (*redisstorage.Client, error) {
		return redisstorage.New(ctx, redisURL)
	})
}

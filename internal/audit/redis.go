package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const streamMaxLen = 100000

// StreamWriter добавляет записи в Redis stream (XADD с ограничением длины).
type StreamWriter struct {
	rdb    redis.Cmdable
	stream string
}

func NewStreamWriter(rdb redis.Cmdable, stream string) *StreamWriter {
	return &StreamWriter{rdb: rdb, stream: stream}
}

func (s *StreamWriter) Write(ctx context.Context, r Record) error {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("audit encode details: %w", err)
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"action":    string(r.Action),
			"entity":    r.Entity,
			"entity_id": r.EntityID,
			"user_id":   r.UserID,
			"details":   string(details),
			"ts":        r.Timestamp.UnixMilli(),
		},
	}).Err()
}

// Package queue — фоновые задачи: тип + непрозрачный payload. Реализации: asynq (Redis) и
// in-memory для -dev и тестов.
package queue

import (
	"context"
	"time"
)

type Task struct {
	Type    string
	Payload []byte
}

// Handler обрабатывает задачу. Ненулевая ошибка означает повтор по политике адаптера.
// Обработчики должны быть идемпотентными.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption управляет постановкой задачи. Нулевые значения — «не задано».
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	ProcessAt time.Time // приоритетнее ProcessIn
	MaxRetry  int
	UniqueTTL time.Duration
	TaskID    string
}

type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server выполняет зарегистрированные обработчики. Run блокируется до отмены ctx.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}

// Periodic — периодическая задача для планировщика.
type Periodic struct {
	Cronspec string
	Task     Task
}

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// mergeOptions сворачивает несколько опций в одну (последнее ненулевое значение побеждает).
func mergeOptions(opts []EnqueueOption) EnqueueOption {
	var out EnqueueOption
	for _, o := range opts {
		if o.Queue != "" {
			out.Queue = o.Queue
		}
		if o.ProcessIn > 0 {
			out.ProcessIn = o.ProcessIn
		}
		if !o.ProcessAt.IsZero() {
			out.ProcessAt = o.ProcessAt
		}
		if o.MaxRetry > 0 {
			out.MaxRetry = o.MaxRetry
		}
		if o.UniqueTTL > 0 {
			out.UniqueTTL = o.UniqueTTL
		}
		if o.TaskID != "" {
			out.TaskID = o.TaskID
		}
	}
	return out
}

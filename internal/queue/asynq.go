package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/petchat/internal/logger"
)

// AsynqClient ставит задачи в Redis через asynq.
type AsynqClient struct {
	client *asynq.Client
}

var _ Client = (*AsynqClient)(nil)

func NewAsynqClient(redisURL string) (*AsynqClient, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqClient{client: asynq.NewClient(opt)}, nil
}

func (a *AsynqClient) Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("asynq: task type is required")
	}
	op := mergeOptions(opts)
	var asynqOpts []asynq.Option
	if !op.ProcessAt.IsZero() {
		asynqOpts = append(asynqOpts, asynq.ProcessAt(op.ProcessAt))
	} else if op.ProcessIn > 0 {
		asynqOpts = append(asynqOpts, asynq.ProcessIn(op.ProcessIn))
	}
	if op.Queue != "" {
		asynqOpts = append(asynqOpts, asynq.Queue(op.Queue))
	}
	if op.MaxRetry > 0 {
		asynqOpts = append(asynqOpts, asynq.MaxRetry(op.MaxRetry))
	}
	if op.UniqueTTL > 0 {
		asynqOpts = append(asynqOpts, asynq.Unique(op.UniqueTTL))
	}
	if op.TaskID != "" {
		asynqOpts = append(asynqOpts, asynq.TaskID(op.TaskID))
	}
	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), asynqOpts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return op.TaskID, nil
	}
	if err != nil {
		return "", fmt.Errorf("asynq enqueue %s: %w", t.Type, err)
	}
	return info.ID, nil
}

func (a *AsynqClient) Close() error {
	return a.client.Close()
}

// AsynqServer выполняет задачи из Redis и, опционально, периодические задачи через asynq.Scheduler.
type AsynqServer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

var _ Server = (*AsynqServer)(nil)

func NewAsynqServer(redisURL string, concurrency int, periodic []Periodic) (*AsynqServer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueCritical: 6, QueueDefault: 3, QueueLow: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Errorf("asynq task failed: type=%s err=%v", task.Type(), err)
		}),
	})
	s := &AsynqServer{server: srv, mux: asynq.NewServeMux()}
	if len(periodic) > 0 {
		s.scheduler = asynq.NewScheduler(opt, nil)
		for _, p := range periodic {
			if _, err := s.scheduler.Register(p.Cronspec, asynq.NewTask(p.Task.Type, p.Task.Payload), asynq.Queue(QueueLow)); err != nil {
				return nil, fmt.Errorf("asynq scheduler register %s: %w", p.Task.Type, err)
			}
		}
	}
	return s, nil
}

func (s *AsynqServer) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

// Run запускает обработку и блокируется до отмены ctx, затем корректно останавливается.
func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("asynq server start: %w", err)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			s.server.Shutdown()
			return fmt.Errorf("asynq scheduler start: %w", err)
		}
	}
	<-ctx.Done()
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	s.server.Shutdown()
	return nil
}

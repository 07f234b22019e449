package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petchat/internal/logger"
)

// Memory — очередь в памяти процесса: клиент и сервер одновременно. Для -dev без Redis и для тестов.
// Отложенные задачи выполняются по таймеру, при ошибке повторяются до MaxRetry раз.
type Memory struct {
	mu       sync.Mutex
	handlers map[string]Handler
	seen     map[string]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

var (
	_ Client = (*Memory)(nil)
	_ Server = (*Memory)(nil)
)

func NewMemory() *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{
		handlers: make(map[string]Handler),
		seen:     make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Memory) Register(taskType string, h Handler) {
	m.mu.Lock()
	m.handlers[taskType] = h
	m.mu.Unlock()
}

func (m *Memory) Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("memory queue: task type is required")
	}
	op := mergeOptions(opts)
	id := op.TaskID
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", errors.New("memory queue: closed")
	}
	if id != "" {
		if _, dup := m.seen[id]; dup {
			m.mu.Unlock()
			return id, nil
		}
		m.seen[id] = struct{}{}
	} else {
		id = uuid.New().String()
	}
	m.wg.Add(1)
	m.mu.Unlock()

	delay := op.ProcessIn
	if !op.ProcessAt.IsZero() {
		delay = time.Until(op.ProcessAt)
	}
	maxRetry := op.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}
	go m.run(t, delay, maxRetry)
	return id, nil
}

func (m *Memory) run(t Task, delay time.Duration, maxRetry int) {
	defer m.wg.Done()
	for attempt := 0; attempt <= maxRetry; attempt++ {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		m.mu.Lock()
		h, ok := m.handlers[t.Type]
		m.mu.Unlock()
		if !ok {
			logger.Errorf("memory queue: no handler for %s", t.Type)
			return
		}
		err := h(m.ctx, t)
		if err == nil {
			return
		}
		logger.Errorf("memory queue: task %s attempt %d: %v", t.Type, attempt+1, err)
		delay = time.Duration(attempt+1) * time.Second
	}
}

// Run блокируется до отмены ctx, затем ждёт выполняющиеся задачи.
func (m *Memory) Run(ctx context.Context) error {
	<-ctx.Done()
	return m.Close()
}

// Wait ждёт завершения всех поставленных задач (для тестов).
func (m *Memory) Wait() {
	m.wg.Wait()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
	return nil
}

// Every ставит задачу t каждые interval до закрытия очереди. Заменяет планировщик asynq в -dev.
func (m *Memory) Every(interval time.Duration, t Task) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Enqueue(m.ctx, t); err != nil {
					logger.Errorf("memory queue: periodic %s: %v", t.Type, err)
				}
			}
		}
	}()
}

var cronAliases = map[string]time.Duration{
	"@hourly": time.Hour,
	"@daily":  24 * time.Hour,
}

// Schedule запускает периодические задачи через Every. Понимает "@every <duration>",
// "@hourly" и "@daily"; полные cron-выражения пропускаются с записью в лог.
func (m *Memory) Schedule(periodic []Periodic) int {
	started := 0
	for _, p := range periodic {
		d, ok := cronAliases[p.Cronspec]
		if every, found := strings.CutPrefix(p.Cronspec, "@every "); found {
			parsed, err := time.ParseDuration(every)
			d, ok = parsed, err == nil && parsed > 0
		}
		if !ok {
			logger.Infof("memory queue: periodic %s skipped, unsupported spec %q", p.Task.Type, p.Cronspec)
			continue
		}
		m.Every(d, p.Task)
		started++
	}
	return started
}

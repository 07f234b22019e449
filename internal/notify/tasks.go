package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/queue"
	"github.com/petchat/internal/service"
)

const (
	TaskMessageSent     = "chat:message_sent"
	TaskDeliver         = "notification:deliver"
	TaskSweep           = "notification:sweep"
	TaskReadCleanup     = "readstatus:cleanup"
	defaultSweepEvery   = 5 * time.Minute
	readCleanupCronspec = "@daily"
)

type deliverPayload struct {
	NotificationID string `json:"notification_id"`
}

type readCleanupPayload struct {
	Days int `json:"days"`
}

// Publisher ставит задачи в очередь: события переписки и отложенные доставки.
type Publisher struct {
	client queue.Client
}

var (
	_ service.EventPublisher = (*Publisher)(nil)
	_ DeliveryScheduler      = (*Publisher)(nil)
)

func NewPublisher(c queue.Client) *Publisher {
	return &Publisher{client: c}
}

// MessageSent ставит рассылку в критическую очередь. TaskID по id сообщения не даёт поставить
// одно событие дважды.
func (p *Publisher) MessageSent(ctx context.Context, ev service.MessageSentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.client.Enqueue(ctx, queue.Task{Type: TaskMessageSent, Payload: payload}, queue.EnqueueOption{
		Queue:    queue.QueueCritical,
		MaxRetry: 5,
		TaskID:   "message_sent:" + ev.MessageID,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskMessageSent, err)
	}
	return nil
}

func (p *Publisher) ScheduleDelivery(ctx context.Context, notificationID string, at time.Time) error {
	payload, err := json.Marshal(deliverPayload{NotificationID: notificationID})
	if err != nil {
		return err
	}
	opt := queue.EnqueueOption{Queue: queue.QueueDefault, MaxRetry: 3}
	if at.After(time.Now()) {
		opt.ProcessAt = at
	}
	if _, err := p.client.Enqueue(ctx, queue.Task{Type: TaskDeliver, Payload: payload}, opt); err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskDeliver, err)
	}
	return nil
}

// ReadCleaner — очистка старых отметок прочтения.
type ReadCleaner interface {
	Cleanup(ctx context.Context, days int) (int64, error)
}

// Handlers — обработчики фоновых задач.
type Handlers struct {
	Router          *Router
	FanOut          *FanOut
	Reads           ReadCleaner
	ReadHorizonDays int
	SweepInterval   time.Duration
}

// Register подключает обработчики к серверу очереди.
func (h Handlers) Register(srv queue.Server) {
	srv.Register(TaskMessageSent, h.handleMessageSent)
	srv.Register(TaskDeliver, h.handleDeliver)
	srv.Register(TaskSweep, h.handleSweep)
	if h.Reads != nil {
		srv.Register(TaskReadCleanup, h.handleReadCleanup)
	}
}

// Periodic — расписание периодических задач воркера.
func (h Handlers) Periodic() []queue.Periodic {
	every := h.SweepInterval
	if every <= 0 {
		every = defaultSweepEvery
	}
	payload, _ := json.Marshal(readCleanupPayload{Days: h.ReadHorizonDays})
	return []queue.Periodic{
		{Cronspec: "@every " + every.String(), Task: queue.Task{Type: TaskSweep}},
		{Cronspec: readCleanupCronspec, Task: queue.Task{Type: TaskReadCleanup, Payload: payload}},
	}
}

func (h Handlers) handleMessageSent(ctx context.Context, t queue.Task) error {
	var ev service.MessageSentEvent
	if err := json.Unmarshal(t.Payload, &ev); err != nil {
		// Битый payload повторять бессмысленно.
		logger.Errorf("task %s: bad payload: %v", t.Type, err)
		return nil
	}
	return h.FanOut.MessageSent(ctx, ev)
}

func (h Handlers) handleDeliver(ctx context.Context, t queue.Task) error {
	var p deliverPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil || p.NotificationID == "" {
		logger.Errorf("task %s: bad payload: %v", t.Type, err)
		return nil
	}
	return h.Router.DeliverByID(ctx, p.NotificationID)
}

func (h Handlers) handleSweep(ctx context.Context, _ queue.Task) error {
	return h.Router.Sweep(ctx)
}

func (h Handlers) handleReadCleanup(ctx context.Context, t queue.Task) error {
	var p readCleanupPayload
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			logger.Errorf("task %s: bad payload: %v", t.Type, err)
		}
	}
	_, err := h.Reads.Cleanup(ctx, p.Days)
	return err
}

// Package audit — запись действий пользователей «выстрелил и забыл»: Log никогда не блокирует
// и не возвращает ошибку вызывающему.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/petchat/internal/logger"
)

type Action string

const (
	ActionCreate                   Action = "CREATE"
	ActionMessageSent              Action = "MESSAGE_SENT"
	ActionParticipantAdded         Action = "CHAT_PARTICIPANT_ADDED"
	ActionParticipantRemoved       Action = "CHAT_PARTICIPANT_REMOVED"
	ActionMessageModerated         Action = "MESSAGE_MODERATED"
	ActionMessageDeleted           Action = "MESSAGE_DELETED"
	ActionMessageReported          Action = "MESSAGE_REPORTED"
	ActionReactionAdded            Action = "REACTION_ADDED"
	ActionReactionRemoved          Action = "REACTION_REMOVED"
	ActionChatArchived             Action = "CHAT_ARCHIVED"
	ActionChatDeleted              Action = "CHAT_DELETED"
	ActionMessagesBulkRead         Action = "MESSAGES_BULK_READ"
	ActionNotificationCreated      Action = "NOTIFICATION_CREATED"
	ActionNotificationRead         Action = "NOTIFICATION_READ"
	ActionBulkNotificationsCreated Action = "BULK_NOTIFICATIONS_CREATED"
)

type Record struct {
	Action    Action         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	UserID    string         `json:"user_id"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger — приёмник аудита.
type Logger interface {
	Log(r Record)
}

// Writer — конечная запись (Redis stream, лог). Вызывается из фонового воркера.
type Writer interface {
	Write(ctx context.Context, r Record) error
}

const bufferSize = 4096

// Async буферизует записи и отдаёт их Writer в отдельной горутине; при полном буфере запись теряется.
type Async struct {
	w    Writer
	ch   chan Record
	wg   sync.WaitGroup
	once sync.Once
}

func NewAsync(w Writer) *Async {
	a := &Async{w: w, ch: make(chan Record, bufferSize)}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer a.wg.Done()
	for r := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.w.Write(ctx, r); err != nil {
			logger.Errorf("audit write action=%s entity=%s id=%s: %v", r.Action, r.Entity, r.EntityID, err)
		}
		cancel()
	}
}

func (a *Async) Log(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	defer func() {
		// Log после Close не должен ронять вызывающего.
		_ = recover()
	}()
	select {
	case a.ch <- r:
	default:
		logger.Errorf("audit buffer full, dropped action=%s id=%s", r.Action, r.EntityID)
	}
}

// Close дожидается записи буфера.
func (a *Async) Close() {
	a.once.Do(func() {
		close(a.ch)
		a.wg.Wait()
	})
}

// LogWriter пишет аудит в общий лог сервиса.
type LogWriter struct{}

func (LogWriter) Write(_ context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	logger.Infof("audit %s", b)
	return nil
}

// Nop отбрасывает записи.
type Nop struct{}

func (Nop) Log(Record) {}

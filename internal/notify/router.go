// Package notify — маршрутизация уведомлений: выбор каналов по настройкам пользователя,
// независимая доставка по каждому каналу, жизненный цикл уведомления и фоновые задачи.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
	"github.com/petchat/internal/service"
)

// Directory — справочник пользователей.
type Directory interface {
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)
}

// PreferenceStore — настройки уведомлений. GetPreferences для неизвестного пользователя
// возвращает значения по умолчанию вместе с repository.ErrNotFound.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, id string) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, bool, error)
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	// Update сохраняет n, если в хранилище статус всё ещё from (repository.ErrStaleStatus иначе).
	Update(ctx context.Context, n *model.Notification, from model.NotificationStatus) error
	ListForUser(ctx context.Context, userID string, f model.NotificationFilter) ([]model.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	CancelExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	RecordDelivery(ctx context.Context, notificationID string, res model.DeliveryResult) error
}

// ChannelSender — внешний канал доставки. Возвращает идентификатор у провайдера.
type ChannelSender interface {
	Channel() model.Channel
	Send(ctx context.Context, to model.Identity, n *model.Notification) (deliveryID string, err error)
}

// TokenChecker сообщает, есть ли у пользователя действующие push-подписки.
type TokenChecker interface {
	HasActive(ctx context.Context, userID string) (bool, error)
}

// InAppPublisher передаёт сохранённое in-app уведомление подключённым клиентам.
type InAppPublisher interface {
	PublishInApp(ctx context.Context, n *model.Notification) error
}

// DeliveryScheduler откладывает доставку уведомления до момента at.
type DeliveryScheduler interface {
	ScheduleDelivery(ctx context.Context, notificationID string, at time.Time) error
}

// QuietHoursPolicy — что делать с внешними каналами в тихие часы.
type QuietHoursPolicy string

const (
	QuietDelay    QuietHoursPolicy = "delay"
	QuietSuppress QuietHoursPolicy = "suppress"
)

const (
	defaultRetentionDays   = 30
	defaultDeliveryTimeout = 30 * time.Second
	sweepBatch             = 100
)

var (
	ErrNotificationNotFound = service.NewError(service.ErrNotFound, "Notification not found")
	ErrInvalidStatus        = service.NewError(service.ErrConflict, "Notification status does not allow this operation")
)

type Config struct {
	QuietHours      QuietHoursPolicy
	RetentionDays   int
	DeliveryTimeout time.Duration
}

type Router struct {
	store     NotificationStore
	users     Directory
	prefs     PreferenceStore
	tokens    TokenChecker
	senders   map[model.Channel]ChannelSender
	inApp     InAppPublisher
	scheduler DeliveryScheduler
	audit     audit.Logger
	cfg       Config
	now       func() time.Time
}

// Deps — зависимости Router. Незаданные адаптеры каналов просто не участвуют в доставке.
type Deps struct {
	Store     NotificationStore
	Users     Directory
	Prefs     PreferenceStore
	Tokens    TokenChecker
	Senders   []ChannelSender
	InApp     InAppPublisher
	Scheduler DeliveryScheduler
	Audit     audit.Logger
}

func NewRouter(d Deps, cfg Config) *Router {
	if cfg.QuietHours != QuietSuppress {
		cfg.QuietHours = QuietDelay
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	r := &Router{
		store:     d.Store,
		users:     d.Users,
		prefs:     d.Prefs,
		tokens:    d.Tokens,
		senders:   make(map[model.Channel]ChannelSender, len(d.Senders)),
		inApp:     d.InApp,
		scheduler: d.Scheduler,
		audit:     d.Audit,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, s := range d.Senders {
		if s != nil {
			r.senders[s.Channel()] = s
		}
	}
	if r.audit == nil {
		r.audit = audit.Nop{}
	}
	return r
}

// SetScheduler нужен, когда планировщик создаётся после Router (клиент очереди зависит от обработчиков).
func (r *Router) SetScheduler(s DeliveryScheduler) { r.scheduler = s }

// recipient — всё, что нужно знать о получателе для выбора каналов.
type recipient struct {
	identity model.Identity
	prefs    model.Preferences
}

// loadRecipient возвращает nil без ошибки, если пользователя нет в справочнике.
func (r *Router) loadRecipient(ctx context.Context, userID string) (*recipient, error) {
	id, err := r.users.GetIdentity(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	prefs, err := r.prefs.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return &recipient{identity: *id, prefs: prefs}, nil
}

// SelectChannels возвращает внешние каналы, разрешённые пользователю для типа и приоритета.
// Неизвестный пользователь получает пустой набор.
func (r *Router) SelectChannels(ctx context.Context, userID string, t model.NotificationType, p model.Priority) ([]model.Channel, error) {
	rc, err := r.loadRecipient(ctx, userID)
	if err != nil || rc == nil {
		return []model.Channel{}, err
	}
	return r.channelsFor(ctx, rc, t, p), nil
}

func (r *Router) channelsFor(ctx context.Context, rc *recipient, t model.NotificationType, p model.Priority) []model.Channel {
	channels := []model.Channel{}
	allowed := rc.prefs.AllowsCategory(t.Category())
	if rc.prefs.Email && allowed && rc.identity.Email != "" {
		channels = append(channels, model.ChannelEmail)
	}
	if rc.prefs.Push && allowed && r.hasPushTokens(ctx, rc.identity.ID) {
		channels = append(channels, model.ChannelPush)
	}
	if rc.prefs.SMS && allowed && (p == model.PriorityHigh || p == model.PriorityUrgent) && rc.identity.Phone != "" {
		channels = append(channels, model.ChannelSMS)
	}
	return channels
}

func (r *Router) hasPushTokens(ctx context.Context, userID string) bool {
	if r.tokens == nil {
		return false
	}
	ok, err := r.tokens.HasActive(ctx, userID)
	if err != nil {
		logger.Errorf("notify: push tokens user=%s: %v", userID, err)
		return false
	}
	return ok
}

// Request описывает событие для одного получателя.
type Request struct {
	UserID            string                 `json:"user_id"`
	Type              model.NotificationType `json:"type"`
	Priority          model.Priority         `json:"priority,omitempty"`
	Title             string                 `json:"title"`
	Message           string                 `json:"message"`
	Data              map[string]any         `json:"data,omitempty"`
	RelatedEntityType string                 `json:"related_entity_type,omitempty"`
	RelatedEntityID   string                 `json:"related_entity_id,omitempty"`
	ScheduledFor      *time.Time             `json:"scheduled_for,omitempty"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	// DedupeKey делает повторную обработку одного события идемпотентной.
	DedupeKey string `json:"-"`
}

func (req Request) notification() (*model.Notification, error) {
	n := &model.Notification{
		ID:                uuid.New().String(),
		UserID:            strings.TrimSpace(req.UserID),
		Type:              req.Type,
		Channel:           model.ChannelInApp,
		Priority:          req.Priority,
		Title:             req.Title,
		Message:           req.Message,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
		ScheduledFor:      req.ScheduledFor,
		ExpiresAt:         req.ExpiresAt,
		DedupeKey:         req.DedupeKey,
	}
	if len(req.Data) > 0 {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			return nil, service.NewError(service.ErrValidation, "Invalid notification data")
		}
		n.Data = raw
	}
	return n, nil
}

// CreateNotification сохраняет in-app уведомление без внешней доставки.
// При совпадении ключа дедупликации возвращает существующую запись и created=false.
func (r *Router) CreateNotification(ctx context.Context, req Request) (*model.Notification, bool, error) {
	defer logger.DeferLogDuration("notify.CreateNotification", time.Now())()
	n, err := req.notification()
	if err != nil {
		return nil, false, err
	}
	if n.Priority != "" {
		switch n.Priority {
		case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
		default:
			return nil, false, service.NewError(service.ErrValidation, fmt.Sprintf("Invalid priority %q", n.Priority))
		}
	}
	n.ApplyDefaults(r.now())
	if err := n.Validate(); err != nil {
		return nil, false, service.NewError(service.ErrValidation, err.Error())
	}
	stored, created, err := r.store.Create(ctx, n)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return stored, false, nil
	}
	r.audit.Log(audit.Record{
		Action:   audit.ActionNotificationCreated,
		Entity:   "Notification",
		EntityID: stored.ID,
		UserID:   stored.UserID,
		Details:  map[string]any{"type": string(stored.Type), "priority": string(stored.Priority)},
	})
	if r.inApp != nil {
		if err := r.inApp.PublishInApp(ctx, stored); err != nil {
			logger.Errorf("notify: in-app publish id=%s user=%s: %v", stored.ID, stored.UserID, err)
		}
	}
	return stored, true, nil
}

// Notify создаёт уведомление и сразу запускает внешнюю доставку (если время отправки наступило).
// Ошибки каналов сюда не поднимаются.
func (r *Router) Notify(ctx context.Context, req Request) (*model.Notification, error) {
	defer logger.DeferLogDuration("notify.Notify", time.Now())()
	n, created, err := r.CreateNotification(ctx, req)
	if err != nil {
		return nil, err
	}
	if !created {
		return n, nil
	}
	if n.ScheduledFor != nil && n.ScheduledFor.After(r.now()) {
		r.schedule(ctx, n, *n.ScheduledFor)
		return n, nil
	}
	// В API адаптеров каналов нет: доставку выполняет воркер.
	if len(r.senders) == 0 && r.scheduler != nil {
		r.schedule(ctx, n, r.now())
		return n, nil
	}
	if err := r.dispatch(ctx, n); err != nil {
		logger.Errorf("notify: dispatch id=%s user=%s: %v", n.ID, n.UserID, err)
	}
	return n, nil
}

// CreateBulk создаёт одинаковое уведомление для нескольких пользователей. Невалидные и
// повторяющиеся получатели пропускаются; ошибка возвращается, только если не создано ни одного.
func (r *Router) CreateBulk(ctx context.Context, userIDs []string, tmpl Request) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notify.CreateBulk", time.Now())()
	out := make([]model.Notification, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	var firstErr error
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		req := tmpl
		req.UserID = id
		n, err := r.Notify(ctx, req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Errorf("notify: bulk user=%s: %v", id, err)
			continue
		}
		out = append(out, *n)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	r.audit.Log(audit.Record{
		Action:  audit.ActionBulkNotificationsCreated,
		Entity:  "Notification",
		Details: map[string]any{"count": len(out), "type": string(tmpl.Type)},
	})
	return out, nil
}

func (r *Router) schedule(ctx context.Context, n *model.Notification, at time.Time) {
	if r.scheduler == nil {
		logger.Errorf("notify: no scheduler, delivery of %s at %s is left to the due sweep", n.ID, at.Format(time.RFC3339))
		return
	}
	if err := r.scheduler.ScheduleDelivery(ctx, n.ID, at); err != nil {
		logger.Errorf("notify: schedule id=%s at=%s: %v", n.ID, at.Format(time.RFC3339), err)
	}
}

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
	"github.com/petchat/internal/service"
)

type Page struct {
	Notifications []model.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

func (r *Router) List(ctx context.Context, userID string, status model.NotificationStatus, t model.NotificationType, page, limit int) (*Page, error) {
	defer logger.DeferLogDuration("notify.List", time.Now())()
	if page < 1 {
		return nil, service.ErrInvalidPage
	}
	if limit < 1 || limit > 100 {
		return nil, service.ErrInvalidLimit
	}
	list, total, err := r.store.ListForUser(ctx, userID, model.NotificationFilter{
		Status: status, Type: t, Limit: limit, Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Notification{}
	}
	return &Page{Notifications: list, Total: total, Page: page, Limit: limit}, nil
}

func (r *Router) UnreadCount(ctx context.Context, userID string) (int, error) {
	return r.store.CountUnread(ctx, userID)
}

// owned загружает уведомление; чужое неотличимо от отсутствующего.
func (r *Router) owned(ctx context.Context, id, userID string) (*model.Notification, error) {
	n, err := r.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID != "" && n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// casAttempts — сколько раз перечитывать уведомление, если его статус меняется параллельно.
const casAttempts = 3

// mutate загружает уведомление, применяет fn и сохраняет при условии, что статус не сменился
// с момента чтения. Проигравший гонку перечитывает и применяет fn заново. fn возвращает false,
// если менять нечего.
func (r *Router) mutate(ctx context.Context, id, userID string, fn func(n *model.Notification) (bool, error)) (*model.Notification, error) {
	var err error
	for attempt := 0; attempt < casAttempts; attempt++ {
		var n *model.Notification
		if n, err = r.owned(ctx, id, userID); err != nil {
			return nil, err
		}
		from := n.Status
		changed, ferr := fn(n)
		if ferr != nil {
			return nil, ferr
		}
		if !changed {
			return n, nil
		}
		err = r.store.Update(ctx, n, from)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		if !errors.Is(err, repository.ErrStaleStatus) {
			return nil, err
		}
		logger.Debugf("notify: id=%s changed concurrently, reloading", id)
	}
	return nil, err
}

func (r *Router) MarkAsRead(ctx context.Context, id, userID string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notify.MarkAsRead", time.Now())()
	n, err := r.mutate(ctx, id, userID, func(n *model.Notification) (bool, error) {
		if n.Status == model.StatusRead {
			return false, nil
		}
		if err := n.MarkRead(r.now()); err != nil {
			return false, ErrInvalidStatus
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	r.audit.Log(audit.Record{Action: audit.ActionNotificationRead, Entity: "Notification", EntityID: n.ID, UserID: userID})
	return n, nil
}

// MarkAsClicked отмечает клик и прочтение.
func (r *Router) MarkAsClicked(ctx context.Context, id, userID string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notify.MarkAsClicked", time.Now())()
	var wasRead bool
	n, err := r.mutate(ctx, id, userID, func(n *model.Notification) (bool, error) {
		wasRead = n.Status == model.StatusRead
		if err := n.MarkClicked(r.now()); err != nil {
			return false, ErrInvalidStatus
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !wasRead {
		r.audit.Log(audit.Record{Action: audit.ActionNotificationRead, Entity: "Notification", EntityID: n.ID, UserID: userID,
			Details: map[string]any{"clicked": true}})
	}
	return n, nil
}

func (r *Router) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	defer logger.DeferLogDuration("notify.MarkAllAsRead", time.Now())()
	n, err := r.store.MarkAllRead(ctx, userID, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.audit.Log(audit.Record{Action: audit.ActionNotificationRead, Entity: "Notification", UserID: userID,
			Details: map[string]any{"count": n, "bulk": true}})
	}
	return n, nil
}

// MarkDelivered — подтверждение доставки от клиента или провайдера (sent -> delivered).
func (r *Router) MarkDelivered(ctx context.Context, id string) (*model.Notification, error) {
	return r.transition(ctx, id, model.StatusDelivered)
}

// Cancel отменяет ещё не доставленное уведомление (pending или failed).
func (r *Router) Cancel(ctx context.Context, id string) (*model.Notification, error) {
	return r.transition(ctx, id, model.StatusCancelled)
}

func (r *Router) transition(ctx context.Context, id string, next model.NotificationStatus) (*model.Notification, error) {
	return r.mutate(ctx, id, "", func(n *model.Notification) (bool, error) {
		if n.Status == next {
			return false, nil
		}
		if err := n.TransitionTo(next, r.now()); err != nil {
			return false, ErrInvalidStatus
		}
		return true, nil
	})
}

// Retry возвращает failed -> pending и ставит доставку в очередь.
func (r *Router) Retry(ctx context.Context, id string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notify.Retry", time.Now())()
	now := r.now()
	n, err := r.mutate(ctx, id, "", func(n *model.Notification) (bool, error) {
		return true, prepareRetry(n, now)
	})
	if err != nil {
		return nil, err
	}
	r.schedule(ctx, n, now)
	return n, nil
}

func prepareRetry(n *model.Notification, now time.Time) error {
	if err := n.Retry(now); err != nil {
		return ErrInvalidStatus
	}
	n.ScheduledFor = nil
	return nil
}

// RetryFailed — проход по failed-уведомлениям: повтор, если пауза по приоритету истекла.
func (r *Router) RetryFailed(ctx context.Context) (int, error) {
	defer logger.DeferLogDuration("notify.RetryFailed", time.Now())()
	now := r.now()
	list, err := r.store.ListRetryable(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	retried := 0
	for i := range list {
		n := &list[i]
		if now.Sub(n.UpdatedAt) < model.RetryBackoff(n.Priority) {
			continue
		}
		from := n.Status
		if err := prepareRetry(n, now); err != nil {
			continue
		}
		if err := r.store.Update(ctx, n, from); err != nil {
			if !errors.Is(err, repository.ErrStaleStatus) && !errors.Is(err, repository.ErrNotFound) {
				logger.Errorf("notify: retry id=%s: %v", n.ID, err)
			}
			continue
		}
		r.schedule(ctx, n, now)
		retried++
	}
	return retried, nil
}

// DeliverDue подбирает pending-уведомления, чьё отложенное время уже прошло, на случай потерянной задачи.
func (r *Router) DeliverDue(ctx context.Context) (int, error) {
	defer logger.DeferLogDuration("notify.DeliverDue", time.Now())()
	list, err := r.store.ListDue(ctx, r.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	for i := range list {
		if err := r.dispatch(ctx, &list[i]); err != nil {
			logger.Errorf("notify: due delivery id=%s: %v", list[i].ID, err)
		}
	}
	return len(list), nil
}

// Cleanup отменяет просроченные и удаляет уведомления старше срока хранения.
func (r *Router) Cleanup(ctx context.Context) (cancelled, deleted int64, err error) {
	defer logger.DeferLogDuration("notify.Cleanup", time.Now())()
	now := r.now()
	if cancelled, err = r.store.CancelExpired(ctx, now); err != nil {
		return 0, 0, err
	}
	if deleted, err = r.store.DeleteOlderThan(ctx, now.AddDate(0, 0, -r.cfg.RetentionDays)); err != nil {
		return cancelled, 0, err
	}
	if cancelled > 0 || deleted > 0 {
		logger.Infof("notify: cleanup cancelled=%d deleted=%d", cancelled, deleted)
	}
	return cancelled, deleted, nil
}

// Sweep — периодическая задача: повторы, отложенные доставки и очистка.
func (r *Router) Sweep(ctx context.Context) error {
	if _, err := r.RetryFailed(ctx); err != nil {
		return err
	}
	if _, err := r.DeliverDue(ctx); err != nil {
		return err
	}
	_, _, err := r.Cleanup(ctx)
	return err
}

// Preferences возвращает настройки пользователя (значения по умолчанию, если сохранённых нет).
func (r *Router) Preferences(ctx context.Context, userID string) (model.Preferences, error) {
	prefs, err := r.prefs.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return prefs, err
	}
	return prefs, nil
}

func (r *Router) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) (model.Preferences, error) {
	defer logger.DeferLogDuration("notify.UpdatePreferences", time.Now())()
	if err := prefs.Validate(); err != nil {
		return prefs, service.NewError(service.ErrValidation, "Invalid preferences: "+err.Error())
	}
	if err := r.prefs.UpdatePreferences(ctx, userID, prefs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return prefs, service.NewError(service.ErrNotFound, "User not found")
		}
		return prefs, err
	}
	return prefs, nil
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
	"golang.org/x/sync/errgroup"
)

const quietHoursSuppressed = "suppressed: quiet hours"

// DeliverByID — точка входа задачи notification:deliver. Отсутствующее, завершённое или
// ещё не наступившее уведомление пропускается без ошибки.
func (r *Router) DeliverByID(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("notify.DeliverByID", time.Now())()
	n, err := r.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if n.Status != model.StatusPending {
		return nil
	}
	return r.dispatch(ctx, n)
}

// dispatch выбирает каналы, применяет тихие часы и доставляет. Итог фиксируется в статусе уведомления.
func (r *Router) dispatch(ctx context.Context, n *model.Notification) error {
	now := r.now()
	if !n.ShouldSend(now) {
		return nil
	}
	rc, err := r.loadRecipient(ctx, n.UserID)
	if err != nil {
		return err
	}
	var channels []model.Channel
	if rc != nil {
		channels = r.channelsFor(ctx, rc, n.Type, n.Priority)
	}

	if len(channels) > 0 && n.Priority != model.PriorityUrgent && rc.prefs.InQuietHours(now) {
		if r.cfg.QuietHours == QuietDelay {
			at := rc.prefs.QuietHoursEndAfter(now).UTC()
			n.ScheduledFor = &at
			n.UpdatedAt = now
			if err := r.store.Update(ctx, n, model.StatusPending); err != nil {
				if errors.Is(err, repository.ErrStaleStatus) {
					logger.Debugf("notify: id=%s changed before quiet-hours delay", n.ID)
					return nil
				}
				return err
			}
			logger.Debugf("notify: id=%s delayed until %s (quiet hours)", n.ID, at.Format(time.RFC3339))
			r.schedule(ctx, n, at)
			return nil
		}
		for _, ch := range channels {
			r.record(ctx, n, model.DeliveryResult{Channel: ch, Error: quietHoursSuppressed, At: now})
		}
		channels = nil
	}

	var results []model.DeliveryResult
	if len(channels) > 0 {
		results = r.DeliverToChannels(ctx, n, rc.identity, channels)
	}
	return r.settle(ctx, n, results)
}

// settle переводит уведомление в sent, если доставил хотя бы один канал или внешних каналов нет.
// Если не сработал ни один, уведомление становится failed и попадёт в повторную доставку.
func (r *Router) settle(ctx context.Context, n *model.Notification, results []model.DeliveryResult) error {
	now := r.now()
	from := n.Status
	var failures []string
	ok := len(results) == 0
	for _, res := range results {
		if res.Success {
			ok = true
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", res.Channel, res.Error))
		}
	}
	var err error
	if ok {
		err = n.TransitionTo(model.StatusSent, now)
		if len(failures) > 0 {
			n.ErrorMessage = strings.Join(failures, "; ")
		}
	} else {
		err = n.MarkFailed(strings.Join(failures, "; "), now)
	}
	if err == nil {
		err = r.store.Update(ctx, n, from)
	}
	if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, repository.ErrStaleStatus) {
		// Уведомление успели прочитать или отменить, пока шла доставка.
		logger.Debugf("notify: settle id=%s: %v", n.ID, err)
		return nil
	}
	return err
}

// DeliverToChannels отправляет уведомление во все каналы параллельно. Каждый канал работает со
// своим таймаутом, ошибка одного не влияет на остальные. Результаты сохраняются и возвращаются
// в порядке channels.
func (r *Router) DeliverToChannels(ctx context.Context, n *model.Notification, to model.Identity, channels []model.Channel) []model.DeliveryResult {
	defer logger.DeferLogDuration("notify.DeliverToChannels", time.Now())()
	results := make([]model.DeliveryResult, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = r.sendOne(ctx, n, to, ch)
			return nil
		})
	}
	_ = g.Wait()
	for _, res := range results {
		r.record(ctx, n, res)
	}
	return results
}

func (r *Router) sendOne(ctx context.Context, n *model.Notification, to model.Identity, ch model.Channel) (res model.DeliveryResult) {
	res.Channel = ch
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.At = r.now()
	}()
	sender, ok := r.senders[ch]
	if !ok {
		res.Error = "channel not configured"
		return res
	}
	cctx, cancel := context.WithTimeout(ctx, r.cfg.DeliveryTimeout)
	defer cancel()
	id, err := sender.Send(cctx, to, n)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.DeliveryID = id
	return res
}

func (r *Router) record(ctx context.Context, n *model.Notification, res model.DeliveryResult) {
	if !res.Success {
		logger.Errorf("notify: channel=%s user=%s notification=%s failed: %s", res.Channel, n.UserID, n.ID, res.Error)
	}
	if err := r.store.RecordDelivery(ctx, n.ID, res); err != nil {
		logger.Errorf("notify: record delivery channel=%s notification=%s: %v", res.Channel, n.ID, err)
	}
}

package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/storage"
)

type Options struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	TTL        int
}

// sendFunc — точка подмены webpush в тестах.
type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Sender — канал push: отправляет уведомление на все подписки пользователя через Web Push.
// Подписки, на которые сервис ответил 404/410, удаляются.
type Sender struct {
	subs  storage.SubscriptionStore
	vapid *webpush.Options
	send  sendFunc
}

func NewSender(subs storage.SubscriptionStore, opts Options) *Sender {
	s := &Sender{subs: subs, send: webpush.SendNotificationWithContext}
	if opts.PublicKey != "" && opts.PrivateKey != "" {
		if opts.TTL <= 0 {
			opts.TTL = 30
		}
		if opts.Subscriber == "" {
			opts.Subscriber = "petchat-push"
		}
		s.vapid = &webpush.Options{
			Subscriber:      opts.Subscriber,
			VAPIDPublicKey:  opts.PublicKey,
			VAPIDPrivateKey: opts.PrivateKey,
			TTL:             opts.TTL,
		}
	}
	return s
}

// Enabled сообщает, заданы ли VAPID-ключи. Без них подписки сохраняются, но отправка не выполняется.
func (s *Sender) Enabled() bool { return s.vapid != nil }

func (s *Sender) Channel() model.Channel { return model.ChannelPush }

type payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

func buildPayload(n *model.Notification) ([]byte, error) {
	data := map[string]any{"notification_id": n.ID, "type": string(n.Type)}
	if len(n.Data) > 0 {
		var extra map[string]any
		if json.Unmarshal(n.Data, &extra) == nil {
			for k, v := range extra {
				data[k] = v
			}
		}
	}
	return json.Marshal(payload{Title: n.Title, Body: n.Message, Data: data})
}

// Send возвращает число принятых отправок как идентификатор доставки. Ошибка, если не принята ни одна.
func (s *Sender) Send(ctx context.Context, to model.Identity, n *model.Notification) (string, error) {
	if s.vapid == nil {
		return "", errors.New("push: VAPID keys not configured")
	}
	subs, err := s.subs.List(ctx, to.ID)
	if err != nil {
		return "", fmt.Errorf("push: load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return "", errors.New("push: no active subscriptions")
	}
	body, err := buildPayload(n)
	if err != nil {
		return "", err
	}
	accepted := 0
	var errs []string
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := s.send(ctx, body, wpSub, s.vapid)
		if err != nil {
			errs = append(errs, err.Error())
			logger.Errorf("push send %s: %v", shortEndpoint(sub.Endpoint), err)
			continue
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			s.invalidate(ctx, to.ID, sub.Endpoint)
			errs = append(errs, fmt.Sprintf("subscription gone (%d)", resp.StatusCode))
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			accepted++
		default:
			errs = append(errs, fmt.Sprintf("push service status %d", resp.StatusCode))
		}
	}
	if accepted == 0 {
		return "", fmt.Errorf("push: %s", strings.Join(errs, "; "))
	}
	return fmt.Sprintf("push:%s:%d/%d", n.ID, accepted, len(subs)), nil
}

func (s *Sender) invalidate(ctx context.Context, userID, endpoint string) {
	if err := s.subs.Remove(ctx, userID, endpoint); err != nil {
		logger.Errorf("push: remove stale subscription user=%s: %v", userID, err)
		return
	}
	logger.Infof("push: removed stale subscription user=%s endpoint=%s", userID, shortEndpoint(endpoint))
}

func shortEndpoint(e string) string {
	return e[:min(50, len(e))]
}

package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
)

// memNotifications — хранилище уведомлений в памяти. Отдаёт копии, как и Postgres.
type memNotifications struct {
	mu         sync.Mutex
	items      map[string]*model.Notification
	order      []string
	deliveries map[string][]model.DeliveryResult
}

func newMemNotifications() *memNotifications {
	return &memNotifications{
		items:      make(map[string]*model.Notification),
		deliveries: make(map[string][]model.DeliveryResult),
	}
}

func (s *memNotifications) Create(_ context.Context, n *model.Notification) (*model.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupeKey != "" {
		for _, id := range s.order {
			if ex := s.items[id]; ex.UserID == n.UserID && ex.DedupeKey == n.DedupeKey {
				cp := *ex
				return &cp, false, nil
			}
		}
	}
	cp := *n
	s.items[n.ID] = &cp
	s.order = append(s.order, n.ID)
	out := cp
	return &out, true, nil
}

func (s *memNotifications) GetByID(_ context.Context, id string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memNotifications) get(id string) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

func (s *memNotifications) all() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

func (s *memNotifications) Update(_ context.Context, n *model.Notification, from model.NotificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[n.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != from {
		return repository.ErrStaleStatus
	}
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *memNotifications) ListForUser(_ context.Context, userID string, f model.NotificationFilter) ([]model.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Notification
	for i := len(s.order) - 1; i >= 0; i-- {
		n := s.items[s.order[i]]
		if n.UserID != userID || (f.Status != "" && n.Status != f.Status) || (f.Type != "" && n.Type != f.Type) {
			continue
		}
		all = append(all, *n)
	}
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (s *memNotifications) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.items {
		if x.UserID == userID && x.ReadAt == nil && x.Status != model.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (s *memNotifications) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, x := range s.items {
		if x.UserID == userID && x.ReadAt == nil && x.Status != model.StatusCancelled {
			if err := x.MarkRead(at); err == nil {
				n++
			}
		}
	}
	return n, nil
}

func (s *memNotifications) ListRetryable(_ context.Context, now time.Time, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, id := range s.order {
		if n := s.items[id]; n.CanRetry(now) && len(out) < limit {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *memNotifications) ListDue(_ context.Context, now time.Time, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, id := range s.order {
		n := s.items[id]
		if n.Status == model.StatusPending && n.ScheduledFor != nil && !n.ScheduledFor.After(now) && !n.IsExpired(now) && len(out) < limit {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *memNotifications) CancelExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, x := range s.items {
		if (x.Status == model.StatusPending || x.Status == model.StatusFailed) && x.IsExpired(now) {
			x.Status = model.StatusCancelled
			x.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *memNotifications) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.order[:0]
	for _, id := range s.order {
		if s.items[id].CreatedAt.Before(cutoff) {
			delete(s.items, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

func (s *memNotifications) RecordDelivery(_ context.Context, id string, res model.DeliveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[id] = append(s.deliveries[id], res)
	return nil
}

func (s *memNotifications) deliveriesFor(id string) []model.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.DeliveryResult(nil), s.deliveries[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// users — справочник и настройки в одном.
type users struct {
	mu    sync.Mutex
	ids   map[string]model.Identity
	prefs map[string]model.Preferences
}

func newUsers(ids ...model.Identity) *users {
	u := &users{ids: make(map[string]model.Identity), prefs: make(map[string]model.Preferences)}
	for _, id := range ids {
		u.ids[id.ID] = id
	}
	return u
}

func (u *users) GetIdentity(_ context.Context, id string) (*model.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ident, ok := u.ids[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ident, nil
}

func (u *users) GetPreferences(_ context.Context, id string) (model.Preferences, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok := u.prefs[id]; ok {
		return p, nil
	}
	return model.DefaultPreferences(), repository.ErrNotFound
}

func (u *users) UpdatePreferences(_ context.Context, id string, p model.Preferences) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.ids[id]; !ok {
		return repository.ErrNotFound
	}
	u.prefs[id] = p
	return nil
}

func (u *users) set(id string, fn func(p *model.Preferences)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.prefs[id]
	if !ok {
		p = model.DefaultPreferences()
	}
	fn(&p)
	u.prefs[id] = p
}

type tokens map[string]bool

func (t tokens) HasActive(_ context.Context, userID string) (bool, error) {
	return t[userID], nil
}

// mockSender — канал доставки на testify/mock.
type mockSender struct {
	mock.Mock
	channel model.Channel
}

func (m *mockSender) Channel() model.Channel { return m.channel }

func (m *mockSender) Send(ctx context.Context, to model.Identity, n *model.Notification) (string, error) {
	args := m.Called(ctx, to, n)
	return args.String(0), args.Error(1)
}

type scheduled struct {
	id string
	at time.Time
}

type schedulerRec struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *schedulerRec) ScheduleDelivery(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{id: id, at: at})
	return nil
}

func (s *schedulerRec) list() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.calls...)
}

type inAppRec struct {
	mu  sync.Mutex
	ids []string
}

func (r *inAppRec) PublishInApp(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, n.ID)
	return nil
}

func (r *inAppRec) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

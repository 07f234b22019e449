package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

// NotificationRepository хранит уведомления независимо от переписки: чат и сообщение
// упоминаются только по id в related_entity_*.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationCols = `id, user_id, type, channel, priority, status, title, message, data,
	COALESCE(related_entity_type, ''), COALESCE(related_entity_id, ''), COALESCE(dedupe_key, ''),
	scheduled_for, sent_at, delivered_at, read_at, clicked_at, expires_at,
	retry_count, max_retries, COALESCE(error_message, ''), created_at, updated_at`

func scanNotification(s scanner, n *model.Notification) error {
	var data []byte
	err := s.Scan(&n.ID, &n.UserID, &n.Type, &n.Channel, &n.Priority, &n.Status, &n.Title, &n.Message, &data,
		&n.RelatedEntityType, &n.RelatedEntityID, &n.DedupeKey,
		&n.ScheduledFor, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.ClickedAt, &n.ExpiresAt,
		&n.RetryCount, &n.MaxRetries, &n.ErrorMessage, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		n.Data = data
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Create сохраняет уведомление. При совпадении dedupe_key строка не вставляется,
// возвращается уже существующее уведомление и created=false.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, bool, error) {
	defer logger.DeferLogDuration("notification.Create", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, channel, priority, status, title, message, data,
		     related_entity_type, related_entity_id, dedupe_key, scheduled_for, expires_at,
		     retry_count, max_retries, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Channel, n.Priority, n.Status, n.Title, n.Message, jsonOrNil(n.Data),
		nullIfEmpty(n.RelatedEntityType), nullIfEmpty(n.RelatedEntityID), nullIfEmpty(n.DedupeKey),
		n.ScheduledFor, n.ExpiresAt, n.RetryCount, n.MaxRetries, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("notificationRepo.Create: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return n, true, nil
	}
	existing := &model.Notification{}
	err = scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE dedupe_key = $1`, n.DedupeKey), existing)
	if err != nil {
		return nil, false, fmt.Errorf("notificationRepo.Create existing: %w", err)
	}
	return existing, false, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notification.GetByID", time.Now())()
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	n := &model.Notification{}
	err := scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id), n)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.GetByID: %w", err)
	}
	return n, nil
}

// Update сохраняет изменяемые поля после смены состояния. Запись применяется, только если в базе
// всё ещё статус from; иначе ErrStaleStatus, и вызывающий решает, перечитать или пропустить.
func (r *NotificationRepository) Update(ctx context.Context, n *model.Notification, from model.NotificationStatus) error {
	defer logger.DeferLogDuration("notification.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $2, scheduled_for = $3, sent_at = $4, delivered_at = $5,
		     read_at = $6, clicked_at = $7, retry_count = $8, error_message = $9, updated_at = $10
		 WHERE id = $1 AND status = $11`,
		n.ID, n.Status, n.ScheduledFor, n.SentAt, n.DeliveredAt, n.ReadAt, n.ClickedAt,
		n.RetryCount, nullIfEmpty(n.ErrorMessage), n.UpdatedAt, from,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.Update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, n.ID).Scan(&exists); err != nil {
		return fmt.Errorf("notificationRepo.Update exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func (r *NotificationRepository) query(ctx context.Context, fn, sql string, args ...any) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("notificationRepo.%s query: %w", fn, err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0, 16)
	for rows.Next() {
		var n model.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("notificationRepo.%s scan: %w", fn, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notificationRepo.%s rows: %w", fn, err)
	}
	return out, nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, f model.NotificationFilter) ([]model.Notification, int, error) {
	defer logger.DeferLogDuration("notification.ListForUser", time.Now())()
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE user_id = $1 AND ($2 = '' OR status = $2) AND ($3 = '' OR type = $3)`,
		userID, string(f.Status), string(f.Type),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("notificationRepo.ListForUser count: %w", err)
	}
	list, err := r.query(ctx, "ListForUser",
		`SELECT `+notificationCols+` FROM notifications
		 WHERE user_id = $1 AND ($2 = '' OR status = $2) AND ($3 = '' OR type = $3)
		 ORDER BY created_at DESC
		 LIMIT $4 OFFSET $5`,
		userID, string(f.Status), string(f.Type), f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	defer logger.DeferLogDuration("notification.CountUnread", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE user_id = $1 AND read_at IS NULL AND status NOT IN ('read', 'cancelled')`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.CountUnread: %w", err)
	}
	return n, nil
}

// MarkAllRead переводит все непрочитанные уведомления пользователя в read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	defer logger.DeferLogDuration("notification.MarkAllRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = 'read', read_at = $2, updated_at = $2
		 WHERE user_id = $1 AND status NOT IN ('read', 'cancelled')`, userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.MarkAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListRetryable — failed-уведомления, которым ещё разрешён повтор и чья пауза истекла.
func (r *NotificationRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notification.ListRetryable", time.Now())()
	return r.query(ctx, "ListRetryable",
		`SELECT `+notificationCols+` FROM notifications
		 WHERE status = 'failed' AND retry_count < max_retries
		   AND (expires_at IS NULL OR expires_at > $1)
		 ORDER BY updated_at
		 LIMIT $2`, now, limit,
	)
}

// ListDue — pending-уведомления, чьё время отправки наступило (страховка на случай потерянной задачи).
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notification.ListDue", time.Now())()
	return r.query(ctx, "ListDue",
		`SELECT `+notificationCols+` FROM notifications
		 WHERE status = 'pending' AND scheduled_for IS NOT NULL AND scheduled_for <= $1
		   AND (expires_at IS NULL OR expires_at > $1)
		 ORDER BY scheduled_for
		 LIMIT $2`, now, limit,
	)
}

// CancelExpired переводит просроченные pending/failed уведомления в cancelled.
func (r *NotificationRepository) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	defer logger.DeferLogDuration("notification.CancelExpired", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = 'cancelled', updated_at = $1
		 WHERE status IN ('pending', 'failed') AND expires_at IS NOT NULL AND expires_at <= $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.CancelExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan физически удаляет уведомления, созданные раньше cutoff.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	defer logger.DeferLogDuration("notification.DeleteOlderThan", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("notificationRepo.DeleteOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) RecordDelivery(ctx context.Context, notificationID string, res model.DeliveryResult) error {
	defer logger.DeferLogDuration("notification.RecordDelivery", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_deliveries (id, notification_id, channel, success, delivery_id, error, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), notificationID, res.Channel, res.Success,
		nullIfEmpty(res.DeliveryID), nullIfEmpty(res.Error), res.At,
	)
	if err != nil {
		return fmt.Errorf("notificationRepo.RecordDelivery: %w", err)
	}
	return nil
}

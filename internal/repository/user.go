package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
)

// UserRepository — локальная копия справочника пользователей: контакты и настройки уведомлений.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert сохраняет контактные данные пользователя, не трогая его настройки.
func (r *UserRepository) Upsert(ctx context.Context, u *model.Identity) error {
	defer logger.DeferLogDuration("user.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, email, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email,
		     phone = EXCLUDED.phone, updated_at = NOW()`,
		u.ID, u.DisplayName, u.Email, u.Phone,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Upsert: %w", err)
	}
	return nil
}

func (r *UserRepository) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	defer logger.DeferLogDuration("user.GetIdentity", time.Now())()
	u := &model.Identity{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, email, phone FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Email, &u.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetIdentity: %w", err)
	}
	return u, nil
}

// GetPreferences накладывает сохранённый JSON на значения по умолчанию.
func (r *UserRepository) GetPreferences(ctx context.Context, id string) (model.Preferences, error) {
	defer logger.DeferLogDuration("user.GetPreferences", time.Now())()
	prefs := model.DefaultPreferences()
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT notification_preferences FROM users WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return prefs, ErrNotFound
	}
	if err != nil {
		return prefs, fmt.Errorf("userRepo.GetPreferences: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return model.DefaultPreferences(), fmt.Errorf("userRepo.GetPreferences decode: %w", err)
		}
	}
	return prefs, nil
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) error {
	defer logger.DeferLogDuration("user.UpdatePreferences", time.Now())()
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePreferences encode: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET notification_preferences = $2, updated_at = NOW() WHERE id = $1`, id, raw,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePreferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

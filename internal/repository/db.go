package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// ErrStaleStatus — запись успели перевести в другой статус после чтения.
var ErrStaleStatus = errors.New("status changed concurrently")

// DBTX — общий интерфейс pgxpool.Pool и pgx.Tx, чтобы репозитории работали и внутри транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store объединяет репозитории переписки (чаты, участники, сообщения, реакции, отметки прочтения).
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Chats() *ChatRepository         { return &ChatRepository{db: s.db} }
func (s *Store) Messages() *MessageRepository   { return &MessageRepository{db: s.db} }
func (s *Store) Reactions() *ReactionRepository { return &ReactionRepository{db: s.db} }
func (s *Store) Reads() *ReadStatusRepository   { return &ReadStatusRepository{db: s.db} }

// InTx выполняет fn в одной транзакции: коммит при nil, откат при ошибке.
// Вложенный вызов переиспользует текущую транзакцию.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
	if err != nil {
		return fmt.Errorf("store.InTx: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

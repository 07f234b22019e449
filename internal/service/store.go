package service

import (
	"context"
	"time"

	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
)

type ChatStore interface {
	Create(ctx context.Context, c *model.Chat) error
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	GetForParticipant(ctx context.Context, chatID, userID string) (*model.Chat, error)
	ListForUser(ctx context.Context, userID string, status model.ChatStatus, limit, offset int) ([]model.Chat, int, error)
	UpdateStatus(ctx context.Context, id string, status model.ChatStatus, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, p *model.Participant) (bool, error)
	GetParticipant(ctx context.Context, chatID, userID string) (*model.Participant, error)
	ListParticipants(ctx context.Context, chatID string) ([]model.Participant, error)
	RemoveParticipant(ctx context.Context, chatID, userID string) (bool, error)
	UpdateLastReadAt(ctx context.Context, chatID, userID string, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error)
	Latest(ctx context.Context, chatID string) (*model.Message, error)
	CountSince(ctx context.Context, chatID, senderID string, since time.Time) (int, error)
	OverwriteContent(ctx context.Context, id, content string, at time.Time) error
	Search(ctx context.Context, userID, query, chatID string, limit int) ([]model.Message, error)
}

type ReactionStore interface {
	Add(ctx context.Context, r *model.Reaction) error
	Remove(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ListByMessages(ctx context.Context, messageIDs []string) (map[string][]model.Reaction, error)
}

type ReadStore interface {
	Upsert(ctx context.Context, messageID, userID string, at time.Time) error
	MarkChat(ctx context.Context, chatID, userID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, chatID, userID string) (int, error)
	UnreadByChat(ctx context.Context, userID string) ([]model.UnreadChat, error)
	IsRead(ctx context.Context, messageID, userID string) (bool, error)
	ListByMessage(ctx context.Context, messageID string) ([]model.ReadMarker, error)
	ChatCounts(ctx context.Context, chatID string) (int, []model.ParticipantReadStats, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx — набор хранилищ переписки, работающих в одной транзакции (или вне её).
type Tx interface {
	Chats() ChatStore
	Messages() MessageStore
	Reactions() ReactionStore
	Reads() ReadStore
}

// Store — хранилище переписки с транзакциями.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type pgStore struct {
	s *repository.Store
}

// NewPgStore оборачивает repository.Store в интерфейс Store.
func NewPgStore(s *repository.Store) Store {
	return pgStore{s: s}
}

func (p pgStore) Chats() ChatStore         { return p.s.Chats() }
func (p pgStore) Messages() MessageStore   { return p.s.Messages() }
func (p pgStore) Reactions() ReactionStore { return p.s.Reactions() }
func (p pgStore) Reads() ReadStore         { return p.s.Reads() }

func (p pgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return p.s.InTx(ctx, func(tx *repository.Store) error {
		return fn(pgStore{s: tx})
	})
}

package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
)

// memStore — хранилище переписки в памяти с семантикой репозиториев Postgres.
type memStore struct {
	mu           sync.Mutex
	chats        map[string]*model.Chat
	participants map[string][]model.Participant
	messages     []*model.Message
	reactions    []model.Reaction
	reads        map[string]map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		chats:        make(map[string]*model.Chat),
		participants: make(map[string][]model.Participant),
		reads:        make(map[string]map[string]time.Time),
	}
}

func (s *memStore) Chats() ChatStore         { return memChats{s} }
func (s *memStore) Messages() MessageStore   { return memMessages{s} }
func (s *memStore) Reactions() ReactionStore { return memReactions{s} }
func (s *memStore) Reads() ReadStore         { return memReads{s} }

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	return fn(s)
}

func (s *memStore) isParticipant(chatID, userID string) bool {
	for _, p := range s.participants[chatID] {
		if p.ParticipantID == userID {
			return true
		}
	}
	return false
}

type memChats struct{ s *memStore }

func (c memChats) Create(_ context.Context, ch *model.Chat) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cp := *ch
	cp.Participants = nil
	c.s.chats[ch.ID] = &cp
	return nil
}

func (c memChats) GetByID(_ context.Context, id string) (*model.Chat, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	ch, ok := c.s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (c memChats) GetForParticipant(_ context.Context, chatID, userID string) (*model.Chat, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	ch, ok := c.s.chats[chatID]
	if !ok || !c.s.isParticipant(chatID, userID) {
		return nil, repository.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (c memChats) ListForUser(_ context.Context, userID string, status model.ChatStatus, limit, offset int) ([]model.Chat, int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var all []model.Chat
	for id, ch := range c.s.chats {
		if !c.s.isParticipant(id, userID) || (status != "" && ch.Status != status) {
			continue
		}
		all = append(all, *ch)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	total := len(all)
	if offset >= total {
		return []model.Chat{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (c memChats) UpdateStatus(_ context.Context, id string, status model.ChatStatus, at time.Time) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	ch, ok := c.s.chats[id]
	if !ok {
		return repository.ErrNotFound
	}
	ch.Status = status
	ch.UpdatedAt = at
	return nil
}

func (c memChats) Touch(_ context.Context, id string, at time.Time) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if ch, ok := c.s.chats[id]; ok {
		ch.UpdatedAt = at
	}
	return nil
}

func (c memChats) Delete(_ context.Context, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.chats[id]; !ok {
		return repository.ErrNotFound
	}
	delete(c.s.chats, id)
	delete(c.s.participants, id)
	kept := c.s.messages[:0]
	for _, m := range c.s.messages {
		if m.ChatID != id {
			kept = append(kept, m)
		}
	}
	c.s.messages = kept
	return nil
}

func (c memChats) AddParticipant(_ context.Context, p *model.Participant) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.isParticipant(p.ChatID, p.ParticipantID) {
		return false, nil
	}
	c.s.participants[p.ChatID] = append(c.s.participants[p.ChatID], *p)
	return true, nil
}

func (c memChats) GetParticipant(_ context.Context, chatID, userID string) (*model.Participant, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, p := range c.s.participants[chatID] {
		if p.ParticipantID == userID {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (c memChats) ListParticipants(_ context.Context, chatID string) ([]model.Participant, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return append([]model.Participant(nil), c.s.participants[chatID]...), nil
}

func (c memChats) RemoveParticipant(_ context.Context, chatID, userID string) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	list := c.s.participants[chatID]
	for i, p := range list {
		if p.ParticipantID == userID {
			c.s.participants[chatID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c memChats) UpdateLastReadAt(_ context.Context, chatID, userID string, at time.Time) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i, p := range c.s.participants[chatID] {
		if p.ParticipantID == userID {
			t := at
			c.s.participants[chatID][i].LastReadAt = &t
			return nil
		}
	}
	return repository.ErrNotFound
}

type memMessages struct{ s *memStore }

func (m memMessages) Create(_ context.Context, msg *model.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *msg
	m.s.messages = append(m.s.messages, &cp)
	return nil
}

func (m memMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, msg := range m.s.messages {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// byChat — сообщения чата, новые первыми.
func (s *memStore) byChat(chatID string) []model.Message {
	var out []model.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ChatID == chatID {
			out = append(out, *s.messages[i])
		}
	}
	return out
}

func (m memMessages) ListByChat(_ context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := m.s.byChat(chatID)
	total := len(all)
	if offset >= total {
		return []model.Message{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m memMessages) Latest(_ context.Context, chatID string) (*model.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := m.s.byChat(chatID)
	if len(all) == 0 {
		return nil, repository.ErrNotFound
	}
	return &all[0], nil
}

func (m memMessages) CountSince(_ context.Context, chatID, senderID string, since time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, msg := range m.s.messages {
		if msg.ChatID == chatID && msg.SenderID == senderID && msg.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m memMessages) OverwriteContent(_ context.Context, id, content string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, msg := range m.s.messages {
		if msg.ID == id {
			msg.Content = content
			msg.ContentFormat = model.ContentFormatPlain
			msg.UpdatedAt = at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m memMessages) Search(_ context.Context, userID, query, chatID string, limit int) ([]model.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Message
	for _, msg := range m.s.messages {
		if chatID != "" && msg.ChatID != chatID {
			continue
		}
		if !m.s.isParticipant(msg.ChatID, userID) || msg.IsOverwritten() {
			continue
		}
		if strings.Contains(strings.ToLower(msg.Content), strings.ToLower(query)) {
			out = append(out, *msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memReactions struct{ s *memStore }

func (r memReactions) Add(_ context.Context, re *model.Reaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.reactions {
		if x.MessageID == re.MessageID && x.UserID == re.UserID && x.Emoji == re.Emoji {
			return nil
		}
	}
	r.s.reactions = append(r.s.reactions, *re)
	return nil
}

func (r memReactions) Remove(_ context.Context, messageID, userID, emoji string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.reactions[:0]
	for _, x := range r.s.reactions {
		if !(x.MessageID == messageID && x.UserID == userID && x.Emoji == emoji) {
			kept = append(kept, x)
		}
	}
	removed := len(kept) < len(r.s.reactions)
	r.s.reactions = kept
	return removed, nil
}

func (r memReactions) ListByMessages(_ context.Context, ids []string) (map[string][]model.Reaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string][]model.Reaction)
	for _, x := range r.s.reactions {
		if _, ok := want[x.MessageID]; ok {
			out[x.MessageID] = append(out[x.MessageID], x)
		}
	}
	return out, nil
}

type memReads struct{ s *memStore }

func (r memReads) upsert(messageID, userID string, at time.Time) bool {
	byUser, ok := r.s.reads[messageID]
	if !ok {
		byUser = make(map[string]time.Time)
		r.s.reads[messageID] = byUser
	}
	prev, exists := byUser[userID]
	if !exists || at.After(prev) {
		byUser[userID] = at
	}
	return !exists
}

func (r memReads) Upsert(_ context.Context, messageID, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.upsert(messageID, userID, at)
	return nil
}

func (r memReads) MarkChat(_ context.Context, chatID, userID string, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, msg := range r.s.messages {
		if msg.ChatID != chatID || msg.SenderID == userID {
			continue
		}
		if r.upsert(msg.ID, userID, at) {
			n++
		}
	}
	return n, nil
}

func (r memReads) isRead(messageID, userID string) bool {
	_, ok := r.s.reads[messageID][userID]
	return ok
}

func (r memReads) countUnread(chatID, userID string) int {
	n := 0
	for _, msg := range r.s.messages {
		if msg.ChatID == chatID && msg.SenderID != userID && !r.isRead(msg.ID, userID) {
			n++
		}
	}
	return n
}

func (r memReads) CountUnread(_ context.Context, chatID, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.countUnread(chatID, userID), nil
}

func (r memReads) UnreadByChat(_ context.Context, userID string) ([]model.UnreadChat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.UnreadChat
	for chatID := range r.s.chats {
		if !r.s.isParticipant(chatID, userID) {
			continue
		}
		n := r.countUnread(chatID, userID)
		if n == 0 {
			continue
		}
		last := r.s.byChat(chatID)[0]
		out = append(out, model.UnreadChat{ChatID: chatID, UnreadCount: n, LastMessageID: last.ID, LastMessageTime: last.CreatedAt})
	}
	return out, nil
}

func (r memReads) IsRead(_ context.Context, messageID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.isRead(messageID, userID), nil
}

func (r memReads) ListByMessage(_ context.Context, messageID string) ([]model.ReadMarker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ReadMarker
	for userID, at := range r.s.reads[messageID] {
		out = append(out, model.ReadMarker{MessageID: messageID, UserID: userID, ReadAt: at})
	}
	return out, nil
}

func (r memReads) ChatCounts(_ context.Context, chatID string) (int, []model.ParticipantReadStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msgs := r.s.byChat(chatID)
	var per []model.ParticipantReadStats
	for _, p := range r.s.participants[chatID] {
		st := model.ParticipantReadStats{UserID: p.ParticipantID}
		for _, msg := range msgs {
			if msg.SenderID == p.ParticipantID {
				continue
			}
			if r.isRead(msg.ID, p.ParticipantID) {
				st.ReadCount++
			} else {
				st.UnreadCount++
			}
		}
		per = append(per, st)
	}
	return len(msgs), per, nil
}

func (r memReads) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for msgID, byUser := range r.s.reads {
		for userID, at := range byUser {
			if at.Before(cutoff) {
				delete(byUser, userID)
				n++
			}
		}
		if len(byUser) == 0 {
			delete(r.s.reads, msgID)
		}
	}
	return n, nil
}

// auditRecorder запоминает записи аудита.
type auditRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *auditRecorder) Log(r audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

func (a *auditRecorder) actions() []audit.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Action, len(a.records))
	for i, r := range a.records {
		out[i] = r.Action
	}
	return out
}

func (a *auditRecorder) last(action audit.Action) (audit.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].Action == action {
			return a.records[i], true
		}
	}
	return audit.Record{}, false
}

// eventRecorder запоминает опубликованные события.
type eventRecorder struct {
	mu     sync.Mutex
	events []MessageSentEvent
}

func (e *eventRecorder) MessageSent(_ context.Context, ev MessageSentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petchat/internal/audit"
)

func countActions(rec *auditRecorder, action audit.Action) int {
	n := 0
	for _, a := range rec.actions() {
		if a == action {
			n++
		}
	}
	return n
}

func TestMarkAllAsRead_Idempotent(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	f.send(t, c.ID, staff, "hello")
	f.send(t, c.ID, staff, "are you around?")
	f.send(t, c.ID, adopter, "yes")
	ctx := context.Background()

	n, err := f.reads.MarkAllAsRead(ctx, c.ID, adopter)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "own message is not marked")

	n, err = f.reads.MarkAllAsRead(ctx, c.ID, adopter)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, countActions(f.audit, audit.ActionMessagesBulkRead))

	p, err := f.store.Chats().GetParticipant(ctx, c.ID, adopter)
	require.NoError(t, err)
	assert.NotNil(t, p.LastReadAt)

	unread, err := f.reads.UnreadCount(ctx, c.ID, adopter)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = f.reads.UnreadCount(ctx, c.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkAllAsRead_NonParticipant(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)

	_, err := f.reads.MarkAllAsRead(context.Background(), c.ID, "stranger")
	assert.Equal(t, ErrChatNotFoundOrNotParticipant, err)
	_, err = f.reads.MarkAllAsRead(context.Background(), "nope", adopter)
	assert.Equal(t, ErrChatNotFoundOrNotParticipant, err)
}

func TestMarkMessageAsRead(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	theirs := f.send(t, c.ID, staff, "photos attached")
	mine := f.send(t, c.ID, adopter, "lovely")
	ctx := context.Background()

	require.NoError(t, f.reads.MarkMessageAsRead(ctx, mine.ID, adopter))
	read, err := f.reads.IsMessageRead(ctx, mine.ID, adopter)
	require.NoError(t, err)
	assert.False(t, read, "marking own message is a no-op")

	require.NoError(t, f.reads.MarkMessageAsRead(ctx, theirs.ID, adopter))
	read, err = f.reads.IsMessageRead(ctx, theirs.ID, adopter)
	require.NoError(t, err)
	assert.True(t, read)

	assert.Equal(t, ErrNotParticipant, f.reads.MarkMessageAsRead(ctx, theirs.ID, "stranger"))
	assert.Equal(t, ErrMessageNotFound, f.reads.MarkMessageAsRead(ctx, uuid.NewString(), adopter))
}

func TestMarkMessageAsRead_ReadAtNeverMovesEarlier(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	m := f.send(t, c.ID, staff, "hi")
	ctx := context.Background()

	first := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	f.reads.now = func() time.Time { return first }
	require.NoError(t, f.reads.MarkMessageAsRead(ctx, m.ID, adopter))
	f.reads.now = func() time.Time { return first.Add(-time.Hour) }
	require.NoError(t, f.reads.MarkMessageAsRead(ctx, m.ID, adopter))

	info, err := f.reads.MessageReadInfo(ctx, m.ID, staff)
	require.NoError(t, err)
	require.Len(t, info.ReadBy, 1)
	assert.Equal(t, first, info.ReadBy[0].ReadAt)
}

func TestMessageReadInfo(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	ctx := context.Background()
	_, err := f.svc.AddParticipant(ctx, c.ID, staff, "foster-1", "")
	require.NoError(t, err)
	m := f.send(t, c.ID, staff, "meet & greet on Sunday")

	require.NoError(t, f.reads.MarkMessageAsRead(ctx, m.ID, adopter))

	info, err := f.reads.MessageReadInfo(ctx, m.ID, adopter)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalParticipants, "sender is excluded")
	assert.Equal(t, 1, info.ReadCount)
	assert.Equal(t, 50, info.ReadPercentage)
	assert.Equal(t, []string{"foster-1"}, info.UnreadBy)
	assert.Equal(t, adopter, info.ReadBy[0].UserID)

	_, err = f.reads.MessageReadInfo(ctx, m.ID, "stranger")
	assert.Equal(t, ErrNotParticipant, err)
}

func TestChatReadStatistics(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	f.send(t, c.ID, staff, "one")
	f.send(t, c.ID, staff, "two")
	f.send(t, c.ID, staff, "three")
	f.send(t, c.ID, adopter, "reply")
	ctx := context.Background()

	_, err := f.reads.MarkAllAsRead(ctx, c.ID, adopter)
	require.NoError(t, err)

	st, err := f.reads.ChatReadStatistics(ctx, c.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalMessages)
	// adopter прочитал 3 из 3, staff 0 из 1.
	assert.Equal(t, 75, st.ReadPercentage)
	require.Len(t, st.Participants, 2)
	for _, p := range st.Participants {
		switch p.UserID {
		case adopter:
			assert.Equal(t, 3, p.ReadCount)
			assert.Zero(t, p.UnreadCount)
		case staff:
			assert.Zero(t, p.ReadCount)
			assert.Equal(t, 1, p.UnreadCount)
		}
	}

	_, err = f.reads.ChatReadStatistics(ctx, c.ID, "stranger")
	assert.Equal(t, ErrChatNotFoundOrNotParticipant, err)
}

func TestUnreadForUser(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	ctx := context.Background()

	got, err := f.reads.UnreadForUser(ctx, adopter)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	f.send(t, c.ID, staff, "first")
	last := f.send(t, c.ID, staff, "second")

	got, err = f.reads.UnreadForUser(ctx, adopter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ChatID)
	assert.Equal(t, 2, got[0].UnreadCount)
	assert.Equal(t, last.ID, got[0].LastMessageID)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, MessagingConfig{})
	c := f.chat(t)
	old := f.send(t, c.ID, staff, "old")
	fresh := f.send(t, c.ID, staff, "fresh")
	ctx := context.Background()

	now := time.Now().UTC()
	f.reads.now = func() time.Time { return now.AddDate(0, 0, -100) }
	require.NoError(t, f.reads.MarkMessageAsRead(ctx, old.ID, adopter))
	f.reads.now = func() time.Time { return now }
	require.NoError(t, f.reads.MarkMessageAsRead(ctx, fresh.ID, adopter))

	n, err := f.reads.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	read, err := f.reads.IsMessageRead(ctx, fresh.ID, adopter)
	require.NoError(t, err)
	assert.True(t, read)
	read, err = f.reads.IsMessageRead(ctx, old.ID, adopter)
	require.NoError(t, err)
	assert.False(t, read)
}

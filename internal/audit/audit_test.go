package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	got  []Record
	fail bool
}

func (w *memWriter) Write(_ context.Context, r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("stream unavailable")
	}
	w.got = append(w.got, r)
	return nil
}

func TestAsync_FlushesOnClose(t *testing.T) {
	w := &memWriter{}
	a := NewAsync(w)
	a.Log(Record{Action: ActionCreate, Entity: "Chat", EntityID: "c1", UserID: "alice"})
	a.Log(Record{Action: ActionMessageSent, Entity: "Message", EntityID: "m1", UserID: "alice"})
	a.Close()

	require.Len(t, w.got, 2)
	assert.Equal(t, ActionCreate, w.got[0].Action)
	assert.False(t, w.got[0].Timestamp.IsZero(), "timestamp is filled in")

	assert.NotPanics(t, func() { a.Log(Record{Action: ActionCreate}) }, "log after close is dropped")
	assert.NotPanics(t, a.Close)
}

func TestAsync_WriterErrorsAreSwallowed(t *testing.T) {
	a := NewAsync(&memWriter{fail: true})
	a.Log(Record{Action: ActionChatDeleted})
	a.Close()
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.Log(Record{Action: ActionCreate})
}

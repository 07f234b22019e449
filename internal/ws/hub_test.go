package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petchat/internal/model"
	"github.com/petchat/internal/service"
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []OutgoingMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	f.mu.Lock()
	f.out = append(f.out, v.(OutgoingMessage))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(int64)                        {}
func (f *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)         {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) messages() []OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutgoingMessage(nil), f.out...)
}

func (f *fakeConn) waitFor(t *testing.T, n int) []OutgoingMessage {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.messages()) >= n }, time.Second, 5*time.Millisecond)
	return f.messages()
}

type fakeActions struct {
	marked  int
	readErr error
}

func (a fakeActions) MarkChatRead(context.Context, string, string) (int, error) {
	return a.marked, nil
}

func (a fakeActions) MarkNotificationRead(context.Context, string, string) error {
	return a.readErr
}

func startHub(t *testing.T, actions Actions, maxConns int) *Hub {
	h := NewHub(actions, maxConns)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func connect(h *Hub, userID string) (*Client, *fakeConn) {
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(h, conn, userID)
	c.Start(ctx, cancel)
	h.Register(c)
	return c, conn
}

func online(t *testing.T, h *Hub, userID string, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return h.IsOnline(userID) == want }, time.Second, 5*time.Millisecond)
}

func TestHub_DeliversToEverySocketOfUser(t *testing.T) {
	h := startHub(t, nil, 0)
	_, tab1 := connect(h, "alice")
	_, tab2 := connect(h, "alice")
	_, other := connect(h, "bob")
	require.Eventually(t, func() bool { return h.Connections() == 3 }, time.Second, 5*time.Millisecond)

	h.DeliverNotification(&model.Notification{ID: "n1", UserID: "alice"})
	h.DeliverNotification(&model.Notification{ID: "n2", UserID: "alice"})

	for _, conn := range []*fakeConn{tab1, tab2} {
		got := conn.waitFor(t, 2)
		assert.Equal(t, EventNotification, got[0].Type)
		assert.Equal(t, []uint64{1, 2}, []uint64{got[0].Seq, got[1].Seq})
		assert.Equal(t, "n2", got[1].Payload.(*model.Notification).ID)
	}
	assert.Empty(t, other.messages())
}

func TestHub_ClientActions(t *testing.T) {
	h := startHub(t, fakeActions{marked: 3, readErr: service.ErrChatNotFoundOrNotParticipant}, 0)
	_, conn := connect(h, "alice")
	online(t, h, "alice", true)

	conn.in <- []byte(`{"type":"mark_chat_read","chat_id":"c1"}`)
	got := conn.waitFor(t, 1)
	assert.Equal(t, EventChatRead, got[0].Type)
	assert.Equal(t, ChatReadPayload{ChatID: "c1", Marked: 3}, got[0].Payload)

	conn.in <- []byte(`{"type":"mark_chat_read"}`)
	got = conn.waitFor(t, 2)
	assert.Equal(t, OutgoingMessage{Seq: 2, Type: EventError, Payload: "chat_id required"}, got[1])

	conn.in <- []byte(`{"type":"mark_notification_read","notification_id":"n1"}`)
	got = conn.waitFor(t, 3)
	assert.Equal(t, "Chat not found or user is not a participant", got[2].Payload, "service errors keep their message")

	conn.in <- []byte(`not json`)
	conn.in <- []byte(`{"type":"ping"}`)
	conn.in <- []byte(`{"type":"subscribe"}`)
	got = conn.waitFor(t, 6)
	assert.Equal(t, "invalid json", got[3].Payload)
	assert.Equal(t, EventPong, got[4].Type)
	assert.Equal(t, "unknown event type", got[5].Payload)
}

func TestHub_InternalErrorsAreHidden(t *testing.T) {
	h := startHub(t, fakeActions{readErr: errors.New("pq: deadlock detected")}, 0)
	_, conn := connect(h, "alice")
	online(t, h, "alice", true)

	conn.in <- []byte(`{"type":"mark_notification_read","notification_id":"n1"}`)
	got := conn.waitFor(t, 1)
	assert.Equal(t, "internal error", got[0].Payload)
}

func TestHub_ConnectionLimit(t *testing.T) {
	h := startHub(t, nil, 1)
	connect(h, "alice")
	online(t, h, "alice", true)

	_, rejected := connect(h, "bob")
	require.Eventually(t, rejected.isClosed, time.Second, 5*time.Millisecond)
	assert.False(t, h.IsOnline("bob"))
	assert.Equal(t, 1, h.Connections())
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := startHub(t, nil, 0)
	c, conn := connect(h, "alice")
	online(t, h, "alice", true)

	_ = conn.Close()
	online(t, h, "alice", false)
	c.Wait()
	assert.Equal(t, 0, h.Connections())
}

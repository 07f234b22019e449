package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/service"
)

// Actions — действия, которые клиент может выполнить через сокет.
type Actions interface {
	MarkChatRead(ctx context.Context, chatID, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string) error
}

// Hub держит сокеты пользователей и доставляет им in-app уведомления.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	actions    Actions
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(actions Actions, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		actions:    actions,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	// Соединения закрываются вне мьютекса.
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	c.Close()
}

// Connections — число открытых сокетов.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// IsOnline — есть ли у пользователя хотя бы один сокет.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// DeliverNotification отправляет уведомление во все сокеты получателя.
func (h *Hub) DeliverNotification(n *model.Notification) {
	h.SendToUser(n.UserID, OutgoingMessage{Type: EventNotification, Payload: n})
}

func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Буфер полон: медленный клиент закрывается.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// HandleMessage обрабатывает сообщение клиента.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventPing:
		h.sendToClient(c, OutgoingMessage{Type: EventPong})
	case EventMarkChatRead:
		h.handleMarkChatRead(ctx, c, msg)
	case EventMarkNotificationRead:
		h.handleMarkNotificationRead(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleMarkChatRead(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleMarkChatRead", time.Now())()
	if msg.ChatID == "" || h.actions == nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "chat_id required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := h.actions.MarkChatRead(ctx, msg.ChatID, c.userID)
	if err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: clientError(err)})
		return
	}
	// Остальные вкладки пользователя тоже обновляют счётчик.
	h.SendToUser(c.userID, OutgoingMessage{Type: EventChatRead, Payload: ChatReadPayload{ChatID: msg.ChatID, Marked: n}})
}

func (h *Hub) handleMarkNotificationRead(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.NotificationID == "" || h.actions == nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "notification_id required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.actions.MarkNotificationRead(ctx, msg.NotificationID, c.userID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: clientError(err)})
	}
}

// clientError скрывает внутренние ошибки: клиенту уходит только текст ошибок сервиса.
func clientError(err error) string {
	var se *service.Error
	if errors.As(err, &se) {
		return se.Msg
	}
	logger.Errorf("ws action: %v", err)
	return "internal error"
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

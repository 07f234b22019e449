package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/petchat/internal/middleware"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/service"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// ChatHandler — REST чатов и сообщений внутри чата.
type ChatHandler struct {
	messaging *service.Messaging
	reads     *service.ReadTracker
}

func NewChatHandler(messaging *service.Messaging, reads *service.ReadTracker) *ChatHandler {
	return &ChatHandler{messaging: messaging, reads: reads}
}

type CreateChatRequest struct {
	RescueID       string                  `json:"rescue_id"`
	PetID          *string                 `json:"pet_id"`
	ApplicationID  *string                 `json:"application_id"`
	ParticipantIDs []string                `json:"participant_ids"`
	Participants   []model.ParticipantSpec `json:"participants"`
	InitialMessage string                  `json:"initial_message"`
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	chat, err := h.messaging.CreateChat(r.Context(), service.CreateChatInput{
		RescueID:       req.RescueID,
		CreatorID:      middleware.GetUserID(r.Context()),
		PetID:          req.PetID,
		ApplicationID:  req.ApplicationID,
		ParticipantIDs: req.ParticipantIDs,
		Participants:   req.Participants,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		writeServiceError(w, "chat.CreateChat", err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	status := model.ChatStatus(r.URL.Query().Get("status"))
	page, err := h.messaging.ListUserChats(r.Context(), middleware.GetUserID(r.Context()), status,
		queryInt(r, "page", defaultPage), queryInt(r, "limit", defaultLimit))
	if err != nil {
		writeServiceError(w, "chat.ListChats", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.messaging.GetChat(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.GetChat", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) ArchiveChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.messaging.ArchiveChat(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.ArchiveChat", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.messaging.DeleteChat(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, "chat.DeleteChat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddParticipantRequest struct {
	UserID string                `json:"user_id"`
	Role   model.ParticipantRole `json:"role"`
}

func (h *ChatHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	p, err := h.messaging.AddParticipant(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()),
		strings.TrimSpace(req.UserID), req.Role)
	if err != nil {
		writeServiceError(w, "chat.AddParticipant", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	err := h.messaging.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "participantId"))
	if err != nil {
		writeServiceError(w, "chat.RemoveParticipant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	page, err := h.messaging.GetMessages(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()),
		queryInt(r, "page", defaultPage), queryInt(r, "limit", defaultLimit))
	if err != nil {
		writeServiceError(w, "chat.GetMessages", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type SendMessageRequest struct {
	Content       string              `json:"content"`
	ContentFormat model.ContentFormat `json:"content_format"`
	Attachments   []model.Attachment  `json:"attachments"`
	Type          model.MessageType   `json:"type"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := h.messaging.SendMessage(r.Context(), service.SendMessageInput{
		ChatID:        chi.URLParam(r, "id"),
		SenderID:      middleware.GetUserID(r.Context()),
		Content:       req.Content,
		ContentFormat: req.ContentFormat,
		Attachments:   req.Attachments,
		RequestedType: req.Type,
	})
	if err != nil {
		writeServiceError(w, "chat.SendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkChatRead отмечает прочитанными все чужие сообщения чата.
func (h *ChatHandler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	n, err := h.reads.MarkAllAsRead(r.Context(), chatID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.MarkChatRead", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "marked": n})
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	n, err := h.messaging.GetUnreadMessageCount(r.Context(), chatID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.UnreadCount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "unread_count": n})
}

func (h *ChatHandler) ReadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reads.ChatReadStatistics(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.ReadStats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UnreadChats — чаты пользователя с непрочитанными сообщениями.
func (h *ChatHandler) UnreadChats(w http.ResponseWriter, r *http.Request) {
	list, err := h.reads.UnreadForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.UnreadChats", err)
		return
	}
	if list == nil {
		list = []model.UnreadChat{}
	}
	writeJSON(w, http.StatusOK, list)
}

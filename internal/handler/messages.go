package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/petchat/internal/middleware"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/service"
)

// MessageHandler — действия над отдельным сообщением.
type MessageHandler struct {
	messaging *service.Messaging
	reads     *service.ReadTracker
}

func NewMessageHandler(messaging *service.Messaging, reads *service.ReadTracker) *MessageHandler {
	return &MessageHandler{messaging: messaging, reads: reads}
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.messaging.SearchMessages(r.Context(), middleware.GetUserID(r.Context()),
		q.Get("q"), q.Get("chat_id"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, "message.Search", err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.reads.MarkMessageAsRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, "message.MarkRead", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) ReadInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.reads.MessageReadInfo(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "message.ReadInfo", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.messaging.AddReaction(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Emoji); err != nil {
		writeServiceError(w, "message.AddReaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	emoji, err := url.PathUnescape(chi.URLParam(r, "emoji"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid emoji")
		return
	}
	err = h.messaging.RemoveReaction(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), emoji)
	if err != nil {
		writeServiceError(w, "message.RemoveReaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

// reason читает необязательное тело {"reason": "..."}.
func reason(r *http.Request) string {
	if r.ContentLength == 0 {
		return ""
	}
	var req ReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		return ""
	}
	return req.Reason
}

func (h *MessageHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messaging.ModerateMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), reason(r))
	if err != nil {
		writeServiceError(w, "message.Moderate", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.messaging.DeleteMessage(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), reason(r)); err != nil {
		writeServiceError(w, "message.Delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Report(w http.ResponseWriter, r *http.Request) {
	if err := h.messaging.ReportMessage(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), reason(r)); err != nil {
		writeServiceError(w, "message.Report", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

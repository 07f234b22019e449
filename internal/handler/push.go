package handler

import (
	"errors"
	"net/http"

	"github.com/petchat/internal/middleware"
	"github.com/petchat/internal/storage"
)

// PushHandler сохраняет и удаляет подписки Web Push текущего пользователя.
type PushHandler struct {
	subs storage.SubscriptionStore
}

func NewPushHandler(subs storage.SubscriptionStore) *PushHandler {
	return &PushHandler{subs: subs}
}

// SubscribeRequest — тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription storage.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.subs.Add(r.Context(), userID, req.Subscription); err != nil {
		if errors.Is(err, storage.ErrInvalidSubscription) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, "push.Subscribe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest — тело для отписки по endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req UnsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.subs.Remove(r.Context(), userID, req.Endpoint); err != nil {
		writeServiceError(w, "push.Unsubscribe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

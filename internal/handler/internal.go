package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/petchat/internal/model"
	"github.com/petchat/internal/notify"
)

// UserDirectory — справочник пользователей, который шлюз синхронизирует при входе и смене профиля.
type UserDirectory interface {
	Upsert(ctx context.Context, u *model.Identity) error
}

// InternalHandler — вызовы других сервисов площадки (заявки, приюты, шлюз).
// Доступен только за InternalOnly, без X-User-Id.
type InternalHandler struct {
	users  UserDirectory
	router *notify.Router
}

func NewInternalHandler(users UserDirectory, router *notify.Router) *InternalHandler {
	return &InternalHandler{users: users, router: router}
}

func (h *InternalHandler) Mount(r chi.Router) {
	r.Put("/users/{id}", h.UpsertUser)
	r.Post("/notifications", h.Notify)
	r.Post("/notifications/bulk", h.NotifyBulk)
	r.Post("/notifications/{id}/delivered", h.MarkDelivered)
	r.Post("/notifications/{id}/cancel", h.Cancel)
	r.Post("/notifications/{id}/retry", h.Retry)
}

func (h *InternalHandler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var u model.Identity
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u.ID = strings.TrimSpace(chi.URLParam(r, "id"))
	if u.ID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	if err := h.users.Upsert(r.Context(), &u); err != nil {
		writeServiceError(w, "internal.UpsertUser", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// NotifyRequest — тело POST /internal/notifications. dedupe_key делает повторный вызов безопасным.
type NotifyRequest struct {
	notify.Request
	DedupeKey string `json:"dedupe_key"`
}

func (h *InternalHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Request.DedupeKey = req.DedupeKey
	n, err := h.router.Notify(r.Context(), req.Request)
	if err != nil {
		writeServiceError(w, "internal.Notify", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

type BulkNotifyRequest struct {
	UserIDs      []string       `json:"user_ids"`
	Notification notify.Request `json:"notification"`
}

func (h *InternalHandler) NotifyBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkNotifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "user_ids required")
		return
	}
	list, err := h.router.CreateBulk(r.Context(), req.UserIDs, req.Notification)
	if err != nil {
		writeServiceError(w, "internal.NotifyBulk", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"count": len(list), "notifications": list})
}

func (h *InternalHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "internal.MarkDelivered", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *InternalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "internal.Cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *InternalHandler) Retry(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "internal.Retry", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

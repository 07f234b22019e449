package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petchat/internal/middleware"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/notify"
)

// NotificationHandler — лента уведомлений пользователя и его настройки.
type NotificationHandler struct {
	router *notify.Router
}

func NewNotificationHandler(router *notify.Router) *NotificationHandler {
	return &NotificationHandler{router: router}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.router.List(r.Context(), middleware.GetUserID(r.Context()),
		model.NotificationStatus(q.Get("status")), model.NotificationType(q.Get("type")),
		queryInt(r, "page", defaultPage), queryInt(r, "limit", defaultLimit))
	if err != nil {
		writeServiceError(w, "notification.List", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "notification.UnreadCount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.MarkAsRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "notification.MarkRead", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkClicked(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.MarkAsClicked(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "notification.MarkClicked", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.router.MarkAllAsRead(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "notification.MarkAllRead", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.router.Preferences(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "notification.GetPreferences", err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences накладывает тело запроса на текущие настройки: незаданные поля не меняются.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	prefs, err := h.router.Preferences(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "notification.UpdatePreferences", err)
		return
	}
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	saved, err := h.router.UpdatePreferences(r.Context(), userID, prefs)
	if err != nil {
		writeServiceError(w, "notification.UpdatePreferences", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

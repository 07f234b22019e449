package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers — все обработчики API.
type Handlers struct {
	Chats         *ChatHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Push          *PushHandler
	Config        *ConfigHandler
	WS            *WSHandler
}

// Mount подключает маршруты API к r. Аутентификация и лимиты — на стороне вызывающего.
func (h Handlers) Mount(r chi.Router) {
	r.Route("/chats", func(r chi.Router) {
		r.Post("/", h.Chats.CreateChat)
		r.Get("/", h.Chats.ListChats)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Chats.GetChat)
			r.Delete("/", h.Chats.DeleteChat)
			r.Post("/archive", h.Chats.ArchiveChat)
			r.Post("/participants", h.Chats.AddParticipant)
			r.Delete("/participants/{participantId}", h.Chats.RemoveParticipant)
			r.Get("/messages", h.Chats.GetMessages)
			r.Post("/messages", h.Chats.SendMessage)
			r.Post("/read", h.Chats.MarkChatRead)
			r.Get("/unread", h.Chats.UnreadCount)
			r.Get("/read-stats", h.Chats.ReadStats)
		})
	})
	r.Get("/unread", h.Chats.UnreadChats)

	r.Get("/messages/search", h.Messages.Search)
	r.Route("/messages/{id}", func(r chi.Router) {
		r.Delete("/", h.Messages.Delete)
		r.Post("/read", h.Messages.MarkRead)
		r.Get("/read-info", h.Messages.ReadInfo)
		r.Post("/reactions", h.Messages.AddReaction)
		r.Delete("/reactions/{emoji}", h.Messages.RemoveReaction)
		r.Post("/moderate", h.Messages.Moderate)
		r.Post("/report", h.Messages.Report)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.Notifications.List)
		r.Get("/unread-count", h.Notifications.UnreadCount)
		r.Post("/read-all", h.Notifications.MarkAllRead)
		r.Get("/preferences", h.Notifications.GetPreferences)
		r.Put("/preferences", h.Notifications.UpdatePreferences)
		r.Post("/{id}/read", h.Notifications.MarkRead)
		r.Post("/{id}/click", h.Notifications.MarkClicked)
	})

	r.Post("/push/subscribe", h.Push.Subscribe)
	r.Delete("/push/subscribe", h.Push.Unsubscribe)
	r.Get("/config/push", h.Config.GetPushConfig)
	r.Get("/ws", h.WS.ServeWS)
}

// Health — проверка живости без авторизации.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

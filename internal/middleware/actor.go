package middleware

import (
	"net/http"
	"strings"
)

// UserIDHeader — заголовок с id пользователя. Ставится шлюзом после аутентификации,
// поэтому Actor подключается только за InternalOnly.
const UserIDHeader = "X-User-Id"

// Actor берёт id пользователя из заголовка X-User-Id. Без заголовка — 401.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

package middleware

import (
	"net/http"
	"time"

	"github.com/petchat/internal/logger"
)

// RequestLog пишет длительность каждого запроса, а ответы 5xx — отдельной ошибкой.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := wrapWriter(w)
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(wrap, r)
		if wrap.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s -> %d user=%s", r.Method, r.URL.Path, wrap.status, GetUserID(r.Context()))
		}
	})
}

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter — скользящее окно в памяти процесса.
type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
	calls  int
}

// pruneEvery — как часто удалять ключи без запросов в окне.
const pruneEvery = 1024

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-r.window)
	if r.calls++; r.calls%pruneEvery == 0 {
		r.prune(cutoff)
	}
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

func (r *rateLimiter) prune(cutoff time.Time) {
	for key, times := range r.times {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(r.times, key)
		}
	}
}

// RateLimit ограничивает запросы к API по IP и по пользователю. Подключается после Actor.
// Лимит отправки сообщений в чат проверяется отдельно, в сервисе.
func RateLimit(maxPerIP, maxPerUser int, window time.Duration) func(http.Handler) http.Handler {
	byIP := newRateLimiter(maxPerIP, window)
	byUser := newRateLimiter(maxPerUser, window)
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited := !byIP.allow(clientIP(r))
			if userID := GetUserID(r.Context()); !limited && userID != "" {
				limited = !byUser.allow(userID)
			}
			if limited {
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

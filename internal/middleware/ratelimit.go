package middleware

import (
	"net/http"
	"sync"
	"time"
)

type window struct {
	count   int
	started time.Time
}

// RateLimiter caps requests per remote address inside a fixed window. It
// guards the auth endpoints, where a burst is almost always a credential
// stuffer rather than a student.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
	}

	// Expired windows are swept once per period so the map cannot grow
	// unbounded under address churn.
	go func() {
		for {
			time.Sleep(period)
			rl.mu.Lock()
			for addr, w := range rl.windows {
				if time.Since(w.started) > period {
					delete(rl.windows, addr)
				}
			}
			rl.mu.Unlock()
		}
	}()

	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr

		rl.mu.Lock()
		win, ok := rl.windows[addr]
		if !ok || time.Since(win.started) > rl.period {
			rl.windows[addr] = &window{count: 1, started: time.Now()}
			rl.mu.Unlock()
			next.ServeHTTP(w, r)
			return
		}

		win.count++
		count := win.count
		rl.mu.Unlock()

		if count > rl.limit {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

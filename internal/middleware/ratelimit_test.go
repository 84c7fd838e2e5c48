package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterCapsPerAddress(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("First request: got %d", code)
	}
	if code := do("10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("Second request: got %d", code)
	}
	if code := do("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("Third request must be limited, got %d", code)
	}

	// Another address has its own window.
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("Fresh address must pass, got %d", code)
	}
}

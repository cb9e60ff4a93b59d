package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func limitedHandler(perMinute, burst int) http.Handler {
	mw := RateLimitMiddleware(NewIPRateLimiter(perMinute, burst))
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	handler := limitedHandler(60, 5)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/movies/550", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}

func TestRateLimitBlocksExcessRequests(t *testing.T) {
	handler := limitedHandler(60, 2)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/movies/550", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/movies/550", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "too many requests" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestRateLimitPerIPIsolation(t *testing.T) {
	handler := limitedHandler(60, 1)

	reqA := httptest.NewRequest(http.MethodGet, "/api/movies/550", nil)
	reqA.RemoteAddr = "1.1.1.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, reqA)
	if rec.Code != http.StatusOK {
		t.Fatalf("IP A first request: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqA)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("IP A second request: got %d, want 429", rec.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/api/movies/550", nil)
	reqB.RemoteAddr = "2.2.2.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqB)
	if rec.Code != http.StatusOK {
		t.Fatalf("IP B first request: got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	if ip := clientIP(forwarded); ip != "203.0.113.50" {
		t.Fatalf("X-Forwarded-For ip = %q", ip)
	}

	realIP := httptest.NewRequest(http.MethodGet, "/", nil)
	realIP.Header.Set("X-Real-IP", "198.51.100.10")
	if ip := clientIP(realIP); ip != "198.51.100.10" {
		t.Fatalf("X-Real-IP ip = %q", ip)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "192.0.2.1:54321"
	if ip := clientIP(direct); ip != "192.0.2.1" {
		t.Fatalf("RemoteAddr ip = %q", ip)
	}
}

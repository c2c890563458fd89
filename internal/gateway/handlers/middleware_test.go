package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/coursepilot/gateway/internal/gateway/ratelimit"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, subject string, secret string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	m := NewMiddleware(testSecret, nil)

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", testSecret, time.Hour))
	rec := httptest.NewRecorder()

	m.AuthMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "user-42" {
		t.Fatalf("expected user id from subject claim, got %q", gotUserID)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	m := NewMiddleware(testSecret, nil)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Token abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, "user-1", "other-secret", time.Hour)},
		{"expired token", "Bearer " + signToken(t, "user-1", testSecret, -time.Hour)},
		{"empty subject", "Bearer " + signToken(t, "", testSecret, time.Hour)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next, called := okHandler()
			req := httptest.NewRequest("POST", "/v1/chat", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()

			m.AuthMiddleware(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if *called {
				t.Fatal("handler must not run on auth failure")
			}
		})
	}
}

func TestRateLimitMiddlewareBlocksWithRetryAfter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 2, 1000)
	m := NewMiddleware(testSecret, limiter)

	next, _ := okHandler()
	wrapped := m.RateLimitMiddleware(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/v1/chat", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Rate limit exceeded. Please try again later." {
		t.Fatalf("unexpected error body %q", body["error"])
	}
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 1, 1000)
	m := NewMiddleware(testSecret, limiter)

	next, _ := okHandler()
	wrapped := m.RateLimitMiddleware(next)

	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for first client, got %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/chat", nil)
	req.RemoteAddr = "10.0.0.2:1000"
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for distinct client, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareUsesForwardedFor(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 1, 1000)
	m := NewMiddleware(testSecret, limiter)

	next, _ := okHandler()
	wrapped := m.RateLimitMiddleware(next)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest("POST", "/v1/chat", nil)
		req.RemoteAddr = "127.0.0.1:9999"
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestRateLimitMiddlewareSetsRemainingHeaders(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 10, 100)
	m := NewMiddleware(testSecret, limiter)

	next, _ := okHandler()
	req := httptest.NewRequest("POST", "/v1/chat", nil)
	req.RemoteAddr = "10.0.0.3:1000"
	rec := httptest.NewRecorder()
	m.RateLimitMiddleware(next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-RateLimit-Remaining-Minute"); got != "9" {
		t.Fatalf("expected 9 remaining in minute window, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining-Hour"); got != "99" {
		t.Fatalf("expected 99 remaining in hour window, got %q", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:443"
	if got := clientIP(req); got != "192.0.2.10" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

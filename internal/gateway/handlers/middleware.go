package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/coursepilot/gateway/internal/gateway/ratelimit"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

type Middleware struct {
	jwtSecret []byte
	limiter   *ratelimit.Limiter
}

func NewMiddleware(jwtSecret string, limiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		jwtSecret: []byte(jwtSecret),
		limiter:   limiter,
	}
}

// AuthMiddleware verifies bearer tokens issued by the hosted auth service
// and puts the subject claim on the request context.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware gates requests by client IP across the minute and
// hour windows. Counters are incremented before the handler runs, so a
// failed downstream request still consumes quota.
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := clientIP(r)

		limited, err := m.limiter.IsLimited(r.Context(), identifier)
		if err != nil {
			// Limiter store failures never take the API down.
			next.ServeHTTP(w, r)
			return
		}

		if limited {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		if err := m.limiter.Increment(r.Context(), identifier); err == nil {
			if rem, err := m.limiter.GetRemaining(r.Context(), identifier); err == nil {
				w.Header().Set("X-RateLimit-Remaining-Minute", fmt.Sprintf("%d", rem.Minute))
				w.Header().Set("X-RateLimit-Remaining-Hour", fmt.Sprintf("%d", rem.Hour))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP picks the rate-limit identifier: first X-Forwarded-For hop when
// present, otherwise the connection's remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package middleware provides HTTP middleware for pixelmuse.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Key type for context values
type contextKey string

// Context keys
const (
	UserIDKey contextKey = "user_id"
)

// Authenticator validates credentials and returns the owning user ID.
type Authenticator interface {
	Authenticate(username, password string) (string, error)
	ValidateToken(token string) (string, error)
}

// AuthMiddleware provides authentication middleware for HTTP handlers
type AuthMiddleware struct {
	accounts Authenticator
	failures *failureTracker
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(accounts Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		accounts: accounts,
		failures: newFailureTracker(100, time.Minute),
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.failures.locked(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var userID string
		var err error

		if strings.HasPrefix(authHeader, "Bearer ") {
			// Bearer token authentication (JWT or API token)
			token := strings.TrimPrefix(authHeader, "Bearer ")
			userID, err = m.accounts.ValidateToken(token)
		} else if strings.HasPrefix(authHeader, "Basic ") {
			username, password, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			userID, err = m.accounts.Authenticate(username, password)
		} else {
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		if err != nil {
			m.failures.strike(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the authenticated user ID from the request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(UserIDKey).(string)
	return userID, ok
}

// RequireUser is middleware that ensures a user ID is present in the context
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserID(r); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// failureTracker locks out clients that keep failing authentication.
// Strikes older than the window are pruned on every touch, so a quiet
// client's entry disappears the next time it is looked at.
type failureTracker struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	strikes map[string][]time.Time
}

func newFailureTracker(limit int, window time.Duration) *failureTracker {
	return &failureTracker{
		limit:   limit,
		window:  window,
		strikes: make(map[string][]time.Time),
	}
}

// locked reports whether a client has accumulated too many recent failures.
func (t *failureTracker) locked(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prune(clientID)) >= t.limit
}

// strike records one failed authentication attempt.
func (t *failureTracker) strike(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strikes[clientID] = append(t.prune(clientID), time.Now())
}

// prune drops strikes outside the window. Callers hold the lock.
func (t *failureTracker) prune(clientID string) []time.Time {
	cutoff := time.Now().Add(-t.window)
	recent := t.strikes[clientID][:0]
	for _, at := range t.strikes[clientID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) == 0 {
		delete(t.strikes, clientID)
		return nil
	}
	t.strikes[clientID] = recent
	return recent
}

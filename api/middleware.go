package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	log "github.com/sirupsen/logrus"
)

type RateLimiter struct {
	requests map[string]*ClientRequests
	mu       sync.Mutex
	max      int
	window   time.Duration
	now      func() time.Time
}

type ClientRequests struct {
	count    int
	lastSeen time.Time
}

// NewRateLimiter allows max requests per client address within window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*ClientRequests),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Allow counts one request for key and reports whether it fits in the current window.
func (l *RateLimiter) Allow(key string) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Clean up old entries
	now := l.now()
	for ip, req := range l.requests {
		if now.Sub(req.lastSeen) > l.window {
			delete(l.requests, ip)
		}
	}

	client, exists := l.requests[key]
	if !exists {
		client = &ClientRequests{lastSeen: now}
		l.requests[key] = client
	}

	reset = client.lastSeen.Add(l.window)
	if client.count >= l.max {
		return 0, reset, false
	}

	client.count++
	client.lastSeen = now
	return l.max - client.count, now.Add(l.window), true
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A valid API key bypasses rate limiting
		if hasAPIKey(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		remaining, reset, ok := l.Allow(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", time.Unix(reset.Unix(), 0).UTC().Format(time.RFC3339))
		if !ok {
			log.WithFields(log.Fields{"client": clientIP(r), "path": r.URL.Path}).Warn("Rate limit exceeded")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type contextKey int

const (
	sessionKey contextKey = iota
	apiKeyKey
	requestInfoKey
)

// requestInfo lets inner middleware report back to the request logger.
type requestInfo struct {
	role string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		entry := log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Microsecond),
			"client":   clientIP(r),
		})
		if info.role != "" {
			entry = entry.WithField("role", info.role)
		}
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// loadSession resolves the cookie session, holds its lock for the whole request and stores it
// in the request context.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, release, err := s.Sessions.Acquire(w, r)
		if err != nil {
			log.WithError(err).Error("Error loading session")
			http.Error(w, "Session unavailable", http.StatusInternalServerError)
			return
		}
		defer release()
		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			info.role = sess.Role().String()
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	return sess
}

// apiKeyFromRequest accepts the key as the raw Authorization value or as a bearer token.
func apiKeyFromRequest(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return h
}

// identifyAPIKey validates the key once and records the result for later middleware.
func (s *Server) identifyAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		valid := false
		if key := apiKeyFromRequest(r); key != "" {
			valid = s.Repo.ValidateAPIKey(r.Context(), key)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyKey, valid)))
	})
}

func hasAPIKey(ctx context.Context) bool {
	valid, _ := ctx.Value(apiKeyKey).(bool)
	return valid
}

func requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasAPIKey(r.Context()) {
			writeJSONError(w, http.StatusUnauthorized, "a valid API key is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

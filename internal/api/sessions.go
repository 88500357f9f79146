package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/session"
	"github.com/bher20/movein/internal/upstream"
)

type contextKey string

const controllerContextKey contextKey = "controller"

// DefaultSessionTTL is how long an idle wizard session is kept.
const DefaultSessionTTL = 30 * time.Minute

// ControllerFactory builds the wizard of a new session bound to identity.
type ControllerFactory func(identity *session.Identity) *checkout.Controller

type sessionEntry struct {
	c        *checkout.Controller
	lastSeen time.Time
}

// Sessions maps session tokens to wizard controllers. Each browser session
// owns exactly one controller; idle sessions expire.
type Sessions struct {
	factory ControllerFactory
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func NewSessions(factory ControllerFactory, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{factory: factory, ttl: ttl, now: time.Now, entries: make(map[string]*sessionEntry)}
}

// Get returns the controller of token. Unknown, expired or empty tokens get
// a fresh session; its token is the controller's Token.
func (s *Sessions) Get(token string) *checkout.Controller {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	if e, ok := s.entries[token]; ok && token != "" {
		e.lastSeen = now
		return e.c
	}
	c := s.factory(session.NewIdentity())
	s.entries[c.Token()] = &sessionEntry{c: c, lastSeen: now}
	return c
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep drops idle sessions. Must hold s.mu.
func (s *Sessions) sweep(now time.Time) {
	for token, e := range s.entries {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.entries, token)
			// Stops pending debounced searches.
			go func(c *checkout.Controller) { _ = c.Reset() }(e.c)
		}
	}
}

// Middleware attaches the session controller to the request and echoes the
// session token header.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := s.Get(strings.TrimSpace(r.Header.Get(upstream.SessionHeader)))
		w.Header().Set(upstream.SessionHeader, c.Token())
		ctx := context.WithValue(r.Context(), controllerContextKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func controllerFrom(r *http.Request) *checkout.Controller {
	c, _ := r.Context().Value(controllerContextKey).(*checkout.Controller)
	return c
}

// Package auth implements the shared-key check and the process-lifetime
// session store behind the HTTP auth gate.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lanbox/lanbox/internal/metrics"
)

// CookieName is the session cookie issued on successful login.
const CookieName = "session"

// ErrKeyMismatch is returned by Login when the submitted key is wrong.
var ErrKeyMismatch = errors.New("access key mismatch")

// Store holds every session token minted by this process. Insert-only;
// entries disappear at process exit, or lazily on lookup once the optional
// TTL has passed.
type Store struct {
	mu     sync.RWMutex
	ttl    time.Duration
	tokens map[string]time.Time
}

// NewStore creates a session store. ttl of zero means sessions never expire.
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, tokens: make(map[string]time.Time)}
}

// Mint creates, records, and returns a new session token: 16 bytes from
// crypto/rand, hex encoded.
func (s *Store) Mint() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint session token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	s.mu.Lock()
	s.tokens[tok] = time.Now()
	n := len(s.tokens)
	s.mu.Unlock()
	metrics.SetActiveSessions(n)
	return tok, nil
}

// Valid reports whether tok was minted here and has not expired.
func (s *Store) Valid(tok string) bool {
	if tok == "" {
		return false
	}
	s.mu.RLock()
	created, ok := s.tokens[tok]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if s.ttl > 0 && time.Since(created) > s.ttl {
		s.mu.Lock()
		delete(s.tokens, tok)
		n := len(s.tokens)
		s.mu.Unlock()
		metrics.SetActiveSessions(n)
		return false
	}
	return true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Gate fronts every route except the login pair with the session check.
type Gate struct {
	key      string
	sessions *Store
}

// NewGate wires the configured access key to a session store. An empty key
// disables authentication entirely.
func NewGate(key string, sessions *Store) *Gate {
	return &Gate{key: key, sessions: sessions}
}

// Enabled reports whether an access key is configured.
func (g *Gate) Enabled() bool { return g.key != "" }

// Authenticated reports whether the request carries a valid session cookie.
// Always true when authentication is disabled.
func (g *Gate) Authenticated(r *http.Request) bool {
	if g.key == "" {
		return true
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return g.sessions.Valid(c.Value)
}

// Login checks the submitted key and mints a session on success.
func (g *Gate) Login(submitted string) (string, error) {
	if !VerifyKey(g.key, submitted) {
		metrics.RecordAuthAttempt(false)
		return "", ErrKeyMismatch
	}
	tok, err := g.sessions.Mint()
	if err != nil {
		return "", err
	}
	metrics.RecordAuthAttempt(true)
	return tok, nil
}

// VerifyBasic accepts HTTP Basic credentials carrying the access key as the
// password; the username is ignored. Used by the WebDAV mount where cookie
// flows are impractical.
func (g *Gate) VerifyBasic(r *http.Request) bool {
	if g.key == "" {
		return true
	}
	if g.Authenticated(r) {
		return true
	}
	_, password, ok := r.BasicAuth()
	return ok && VerifyKey(g.key, password)
}

// Middleware redirects requests without a valid session to the login page.
// Paths listed in exempt stay public.
func (g *Gate) Middleware(exempt ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || g.Authenticated(r) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		})
	}
}

// SetSessionCookie attaches tok as the site-wide session cookie.
func SetSessionCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// VerifyKey compares a submitted key against the configured one. A
// configured value with a bcrypt prefix is treated as a hash; anything else
// is compared in constant time.
func VerifyKey(configured, submitted string) bool {
	if strings.HasPrefix(configured, "$2a$") ||
		strings.HasPrefix(configured, "$2b$") ||
		strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(submitted)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(submitted)) == 1
}

// HashKey returns a bcrypt hash of key suitable for the access_key setting.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash access key: %w", err)
	}
	return string(b), nil
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-run/agentgw/pkg/crypto"
)

// Kind distinguishes short-lived access tokens from longer-lived refresh
// tokens; a refresh token can only be used at POST /auth/refresh.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrSessionNotFound = errors.New("auth: session not found")
	ErrSessionExpired  = errors.New("auth: session expired")
	ErrSessionRevoked  = errors.New("auth: session revoked")
	ErrWrongKind       = errors.New("auth: wrong token kind")
)

// Session is one minted bearer token. Sessions are held only in memory: the
// spec requires revocation on process restart, so there is nothing to
// persist.
type Session struct {
	Token     string    `json:"-"`
	User      string    `json:"user"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// SessionStore mints and validates opaque bearer tokens. Revocation is
// tracked two ways, per spec.md §4.5: the session's own Revoked flag (for
// sessions the store still holds), and a set of hashed token fingerprints
// with expiry (so a revoked token can never be re-validated even if the
// in-memory session entry were ever reconstructed from a separate path).
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session // keyed by raw token
	revoked    map[string]time.Time // fingerprint -> expiry, pruned lazily
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionStore(accessTTL, refreshTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions:   make(map[string]*Session),
		revoked:    make(map[string]time.Time),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func fingerprint(token string) string {
	fp, err := crypto.Fingerprint(token)
	if err != nil {
		// crypto.Fingerprint only fails to marshal JSON; a string always
		// marshals, so this path is unreachable in practice.
		return token
	}
	return fp
}

// Mint creates a new session for user of the given kind.
func (s *SessionStore) Mint(user string, kind Kind) (*Session, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	ttl := s.accessTTL
	if kind == KindRefresh {
		ttl = s.refreshTTL
	}

	now := s.now().UTC()
	sess := &Session{
		Token:     token,
		User:      user,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	out := *sess
	return &out, nil
}

// Validate resolves token, requiring it to be of kind and not expired or
// revoked.
func (s *SessionStore) Validate(token string, kind Kind) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	_, revokedFP := s.revoked[fingerprint(token)]
	s.mu.RUnlock()

	if revokedFP {
		return nil, ErrSessionRevoked
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}
	if sess.Kind != kind {
		return nil, ErrWrongKind
	}
	if s.now().UTC().After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	out := *sess
	return &out, nil
}

// Revoke invalidates one token immediately (logout).
func (s *SessionStore) Revoke(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	expiry := s.now().UTC().Add(s.refreshTTL)
	if ok {
		sess.Revoked = true
		expiry = sess.ExpiresAt
	}
	s.revoked[fingerprint(token)] = expiry
	s.pruneRevokedLocked()
	return nil
}

// RevokeAllForUser invalidates every session belonging to user (password
// change, admin-forced logout).
func (s *SessionStore) RevokeAllForUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.User == user {
			sess.Revoked = true
			s.revoked[fingerprint(sess.Token)] = sess.ExpiresAt
		}
	}
}

// RevokeAll invalidates every session currently held, used on process
// restart's logical "start clean" semantics when sessions are reloaded from
// a prior run (not applicable to the in-memory-only store, but kept for
// symmetry with a future persisted implementation).
func (s *SessionStore) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}

func (s *SessionStore) pruneRevokedLocked() {
	now := s.now().UTC()
	for fp, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, fp)
		}
	}
	for tok, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, tok)
		}
	}
}

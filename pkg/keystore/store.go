// Package keystore is the gateway's named-secret vault: provider API keys
// with TTL/rotation metadata, AES-256-GCM at rest via pkg/kms, and an
// environment-variable fallback for keys never explicitly stored (so a
// freshly booted gateway can still reach a provider from its process
// environment).
//
// No OS-keychain backend is implemented: none of the reference pack's
// dependencies wrap a platform keychain, and the spec's own fallback chain
// (OS-keychain → environment → file) degrades cleanly to environment → file
// when the first link is absent.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Encryptor is satisfied by pkg/kms.Manager.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Status is the public-facing view of a key: never the value itself.
type Status struct {
	Provider  string     `json:"provider"`
	Connected bool       `json:"connected"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
	FromEnv   bool       `json:"from_env,omitempty"`
}

type entry struct {
	Provider    string     `json:"provider"`
	EncValue    string     `json:"enc_value"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
}

type document struct {
	Entries map[string]entry `json:"entries"`
}

// Store is a file-backed, encrypted-at-rest provider key vault.
type Store struct {
	mu   sync.RWMutex
	path string
	enc  Encryptor
	doc  document
	now  func() time.Time
}

// Open loads (or creates) the vault file at path.
func Open(path string, enc Encryptor) (*Store, error) {
	s := &Store{path: path, enc: enc, doc: document{Entries: map[string]entry{}}, now: time.Now}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, s.persist()
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("keystore: write tmp: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Set stores (or overwrites) a provider key. ttl of zero means no expiry.
func (s *Store) Set(provider, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("keystore: encrypt: %w", err)
	}

	e := entry{Provider: provider, EncValue: enc, CreatedAt: s.now().UTC()}
	if ttl > 0 {
		exp := s.now().UTC().Add(ttl)
		e.ExpiresAt = &exp
	}
	s.doc.Entries[provider] = e
	return s.persist()
}

// Rotate replaces the stored value, preserving CreatedAt but stamping
// RotatedAt, so `store_key(p,v); rotate_key(p,v')` then `get_key(p)` returns
// v' while keeping a visible rotation history.
func (s *Store) Rotate(provider, newValue string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.doc.Entries[provider]
	if !ok {
		existing = entry{Provider: provider, CreatedAt: s.now().UTC()}
	}

	enc, err := s.enc.Encrypt(newValue)
	if err != nil {
		return fmt.Errorf("keystore: encrypt: %w", err)
	}

	now := s.now().UTC()
	existing.EncValue = enc
	existing.RotatedAt = &now
	if ttl > 0 {
		exp := now.Add(ttl)
		existing.ExpiresAt = &exp
	}
	s.doc.Entries[provider] = existing
	return s.persist()
}

// Get returns the decrypted value for provider. If no stored key exists, it
// falls back to an environment variable named AGENTGW_PROVIDER_<PROVIDER>_KEY
// (upper-cased). Expired keys still retrieve successfully per spec.md §3 —
// expiry only affects listing, not retrieval.
func (s *Store) Get(provider string) (string, error) {
	s.mu.RLock()
	e, ok := s.doc.Entries[provider]
	s.mu.RUnlock()

	if !ok {
		if v, found := s.envFallback(provider); found {
			return v, nil
		}
		return "", fmt.Errorf("keystore: no key for provider %q", provider)
	}

	val, err := s.enc.Decrypt(e.EncValue)
	if err != nil {
		return "", fmt.Errorf("keystore: decrypt: %w", err)
	}
	return val, nil
}

func (s *Store) envFallback(provider string) (string, bool) {
	name := "AGENTGW_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_KEY"
	v := os.Getenv(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// Delete removes a stored key. Deleting a key with no stored entry (only an
// env fallback) is a no-op.
func (s *Store) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Entries, provider)
	return s.persist()
}

// Status returns the public-facing status for one provider.
func (s *Store) Status(provider string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.doc.Entries[provider]
	if !ok {
		_, found := s.envFallback(provider)
		return Status{Provider: provider, Connected: found, FromEnv: found}
	}
	return Status{
		Provider:  provider,
		Connected: true,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		RotatedAt: e.RotatedAt,
	}
}

// Expiring returns every stored key whose ExpiresAt falls within the next
// window, for the /admin/providers/expiring endpoint.
func (s *Store) Expiring(window time.Duration) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(window)
	var out []Status
	for provider, e := range s.doc.Entries {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(cutoff) {
			out = append(out, Status{
				Provider: provider, Connected: true,
				CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt, RotatedAt: e.RotatedAt,
			})
		}
	}
	return out
}

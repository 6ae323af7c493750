// Package audit is the gateway's append-only audit sink: every mutating
// admin action, every accepted/denied tool call, and every approval
// transition produces one JSONL line. Details never carry secret values or
// raw tool arguments — only fingerprints, sizes, and names.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Encryptor is satisfied by pkg/kms.Manager; kept as a narrow interface here
// so audit does not need to import the kms package's file-format concerns.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Record is one audit line. EntryHash/PreviousHash form an optional
// integrity chain, verified on export.
type Record struct {
	EntryID      string         `json:"entry_id"`
	Sequence     uint64         `json:"sequence"`
	Timestamp    time.Time      `json:"ts"`
	Actor        string         `json:"actor"`
	Event        string         `json:"event"`
	Details      map[string]any `json:"details,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	EntryHash    string         `json:"entry_hash"`
}

// Sink is a single-writer, append-only JSONL file. Every write is
// line-atomic: a full line or nothing reaches disk.
type Sink struct {
	mu        sync.Mutex
	path      string
	sequence  uint64
	chainHead string
	enc       Encryptor // optional, nil means plaintext at rest
	now       func() time.Time
}

// Open opens (or creates) the audit file at path and resumes the hash chain
// from its last line, if any. enc may be nil to store plaintext.
func Open(path string, enc Encryptor) (*Sink, error) {
	s := &Sink{path: path, chainHead: "genesis", enc: enc, now: time.Now}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	_ = f.Close()

	last, err := s.lastRecord()
	if err != nil {
		return nil, err
	}
	if last != nil {
		s.sequence = last.Sequence
		s.chainHead = last.EntryHash
	}
	return s, nil
}

func (s *Sink) lastRecord() (*Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("audit: open for scan: %w", err)
	}
	defer f.Close()

	var last *Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		rec, err := s.decodeLine(scanner.Text())
		if err != nil {
			continue
		}
		last = rec
	}
	return last, scanner.Err()
}

func (s *Sink) decodeLine(line string) (*Record, error) {
	raw := line
	if s.enc != nil {
		plain, err := s.enc.Decrypt(line)
		if err != nil {
			return nil, err
		}
		raw = plain
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Record appends one entry. actor should already be resolved to a username
// or "anonymous" by the caller (pkg/auth).
func (s *Sink) Record(actor, event string, details map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	rec := Record{
		EntryID:      uuid.New().String(),
		Sequence:     s.sequence,
		Timestamp:    s.now().UTC(),
		Actor:        actor,
		Event:        event,
		Details:      details,
		PreviousHash: s.chainHead,
	}
	rec.EntryHash = entryHash(rec)
	s.chainHead = rec.EntryHash

	body, err := json.Marshal(rec)
	if err != nil {
		s.sequence--
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	line := string(body)
	if s.enc != nil {
		line, err = s.enc.Encrypt(line)
		if err != nil {
			s.sequence--
			return fmt.Errorf("audit: encrypt record: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		s.sequence--
		return fmt.Errorf("audit: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		s.sequence--
		return fmt.Errorf("audit: write record: %w", err)
	}
	return nil
}

func entryHash(r Record) string {
	type hashable struct {
		Sequence     uint64
		Timestamp    time.Time
		Actor        string
		Event        string
		PreviousHash string
	}
	data, _ := json.Marshal(hashable{r.Sequence, r.Timestamp, r.Actor, r.Event, r.PreviousHash})
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Query reads the full file applying filter; suitable for admin listing and
// CSV export. Not indexed — fine for a localhost gateway's audit volume.
func (s *Sink) Query(filter QueryFilter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("audit: open for query: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		rec, err := s.decodeLine(scanner.Text())
		if err != nil {
			continue
		}
		if filter.matches(*rec) {
			out = append(out, *rec)
		}
	}
	return out, scanner.Err()
}

// QueryFilter narrows Query/export results.
type QueryFilter struct {
	Actor string
	Event string
	Since *time.Time
	Until *time.Time
}

func (f QueryFilter) matches(r Record) bool {
	if f.Actor != "" && r.Actor != f.Actor {
		return false
	}
	if f.Event != "" && r.Event != f.Event {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// VerifyChain recomputes every entry hash and confirms the previous_hash
// linkage is unbroken, used before shipping a CSV export out of process.
func (s *Sink) VerifyChain() error {
	recs, err := s.Query(QueryFilter{})
	if err != nil {
		return err
	}
	expectedPrev := "genesis"
	for i, r := range recs {
		if r.PreviousHash != expectedPrev {
			return fmt.Errorf("audit: chain broken at entry %d", i)
		}
		check := Record{Sequence: r.Sequence, Timestamp: r.Timestamp, Actor: r.Actor, Event: r.Event, PreviousHash: r.PreviousHash}
		if entryHash(check) != r.EntryHash {
			return fmt.Errorf("audit: hash mismatch at entry %d", i)
		}
		expectedPrev = r.EntryHash
	}
	return nil
}

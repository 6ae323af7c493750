// Package webhook fans out approval-bus events to registered HTTP hooks,
// signing each delivery with HMAC-SHA256 and retrying failed deliveries with
// exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Hook is one registered webhook subscription.
type Hook struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventKinds []string `json:"event_kinds,omitempty"` // empty means all kinds
	MaxRetries int      `json:"max_retries,omitempty"`
}

func (h Hook) wants(kind string) bool {
	if len(h.EventKinds) == 0 {
		return true
	}
	for _, k := range h.EventKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DeliveryRecord is one logged delivery attempt.
type DeliveryRecord struct {
	Timestamp  time.Time `json:"ts"`
	Event      string    `json:"event"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Error      string    `json:"error,omitempty"`
}

const maxLogEntriesPerHook = 100
const defaultMaxRetries = 3

// Dispatcher owns registered hooks and their bounded delivery logs.
type Dispatcher struct {
	mu    sync.RWMutex
	hooks map[string]Hook
	log   map[string][]DeliveryRecord

	client *http.Client
	now    func() time.Time
}

func New() *Dispatcher {
	return &Dispatcher{
		hooks:  make(map[string]Hook),
		log:    make(map[string][]DeliveryRecord),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Register adds or replaces a hook.
func (d *Dispatcher) Register(h Hook) {
	if h.MaxRetries <= 0 {
		h.MaxRetries = defaultMaxRetries
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[h.ID] = h
}

// Remove deletes a hook and its delivery log.
func (d *Dispatcher) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.hooks, id)
	delete(d.log, id)
}

// List returns all registered hooks.
func (d *Dispatcher) List() []Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Hook, 0, len(d.hooks))
	for _, h := range d.hooks {
		out = append(out, h)
	}
	return out
}

// DeliveryLog returns the bounded delivery history for one hook.
func (d *Dispatcher) DeliveryLog(hookID string) []DeliveryRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DeliveryRecord(nil), d.log[hookID]...)
}

// Dispatch fans eventKind/body out to every hook subscribed to it,
// asynchronously (fire-and-forget from the caller's perspective).
func (d *Dispatcher) Dispatch(eventKind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	d.mu.RLock()
	var targets []Hook
	for _, h := range d.hooks {
		if h.wants(eventKind) {
			targets = append(targets, h)
		}
	}
	d.mu.RUnlock()

	for _, h := range targets {
		go d.deliver(h, eventKind, body)
	}
}

func (d *Dispatcher) deliver(h Hook, eventKind string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
	), uint64(h.MaxRetries-1))

	_ = backoff.Retry(func() error {
		status, attemptErr := d.attempt(ctx, h, body)

		record := DeliveryRecord{Timestamp: d.now(), Event: eventKind, HTTPStatus: status}
		if attemptErr != nil {
			record.Error = attemptErr.Error()
		} else if status >= 500 {
			record.Error = fmt.Sprintf("webhook: server error %d", status)
		}
		d.appendLog(h.ID, record)

		if attemptErr != nil {
			return attemptErr
		}
		if status >= 500 {
			return fmt.Errorf("webhook: server error %d", status)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

func (d *Dispatcher) attempt(ctx context.Context, h Hook, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Secret != "" {
		req.Header.Set("X-Agentgw-Signature-256", "sha256="+sign(h.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: delivery failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) appendLog(hookID string, rec DeliveryRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := append(d.log[hookID], rec)
	if len(entries) > maxLogEntriesPerHook {
		entries = entries[len(entries)-maxLogEntriesPerHook:]
	}
	d.log[hookID] = entries
}

// Package idempotency replays the first response recorded for an Idempotency-Key so a retried
// checkout never places a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a recorded response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused is returned when a key arrives with a different request than the one that
// claimed it.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// Outcome is what Acquire found for a key.
type Outcome int

const (
	// Acquired means the caller now owns the key and must Complete or Release it.
	Acquired Outcome = iota
	// Replay means Entry holds the finished response.
	Replay
	// InFlight means another request owns the key and has not finished.
	InFlight
)

// Entry is the stored state of one key. Done is false while the owning request runs.
type Entry struct {
	Fingerprint string      `json:"fp"`
	Done        bool        `json:"done"`
	Status      int         `json:"status,omitempty"`
	Header      http.Header `json:"header,omitempty"`
	Body        []byte      `json:"body,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// against reports how a request with fingerprint should treat an existing entry.
func (e Entry) against(fingerprint string) (Outcome, error) {
	switch {
	case e.Fingerprint != fingerprint:
		return 0, ErrKeyReused
	case e.Done:
		return Replay, nil
	default:
		return InFlight, nil
	}
}

// Store persists claimed keys and their responses.
type Store interface {
	Acquire(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error)
	// Complete records the response for a key previously acquired with entry.Fingerprint.
	Complete(ctx context.Context, key string, entry Entry, now time.Time, ttl time.Duration) error
	// Release forgets a key so it can be retried. Keys owned by another fingerprint are kept.
	Release(ctx context.Context, key, fingerprint string) error
	// Sweep deletes up to limit expired entries and reports how many went.
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

func claim(fingerprint string, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry{Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// finished turns a claim into a replayable entry. Hop-by-hop and per-response headers are
// not stored.
func finished(entry Entry, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry.Done = true
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)
	header := make(http.Header, len(entry.Header))
	for name, values := range entry.Header {
		if _, skip := unstoredHeaders[http.CanonicalHeaderKey(name)]; !skip {
			header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	entry.Header = header
	entry.Body = append([]byte(nil), entry.Body...)
	return entry
}

var unstoredHeaders = map[string]struct{}{
	"Content-Length": {}, "Date": {}, "Connection": {}, "Keep-Alive": {}, "Set-Cookie": {},
	"Te": {}, "Trailer": {}, "Transfer-Encoding": {}, "Upgrade": {},
}

// hashKey keeps client supplied keys out of storage identifiers.
func hashKey(key string) string {
	return digest([]byte(strings.TrimSpace(key)))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

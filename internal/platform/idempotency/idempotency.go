// Package idempotency deduplicates mutating API requests. A client retrying
// an order submission with the same key receives the stored response instead
// of creating a second order and debiting stock twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long a stored response can be replayed.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for different request")

// State reports the outcome of reserving a key.
type State int

const (
	// StateNew means the key was unclaimed and the request may proceed.
	StateNew State = iota
	// StateInFlight means another request holds the key and has not finished.
	StateInFlight
	// StateReplay means a stored response exists and should be returned as-is.
	StateReplay
)

// Record is the persisted outcome of a keyed request.
type Record struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists reservations and their responses.
type Store interface {
	// Reserve claims the key for the given request fingerprint.
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	// Complete stores the response so later retries replay it.
	Complete(ctx context.Context, key string, record Record) error
	// Release frees a reservation whose request never produced a response.
	Release(ctx context.Context, key string) error
}

// ScopedKey hashes the tenant together with the client-supplied key so two
// stores reusing the same key value never collide.
func ScopedKey(storeID, key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(storeID) + "\x00" + strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the request shape so key reuse across different
// payloads is rejected rather than silently replayed.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryStore keeps records in process memory. Suitable for tests and
// single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && now.Before(record.ExpiresAt) {
		if record.Fingerprint != fingerprint {
			return StateNew, Record{}, ErrFingerprintMismatch
		}
		if record.Completed {
			return StateReplay, record, nil
		}
		return StateInFlight, record, nil
	}

	s.records[key] = Record{
		Key:         key,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	return StateNew, Record{}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[key]
	if !ok {
		return errors.New("idempotency: no reservation for key")
	}
	record.Key = key
	record.Fingerprint = stored.Fingerprint
	record.CreatedAt = stored.CreatedAt
	record.ExpiresAt = stored.ExpiresAt
	record.Completed = true
	s.records[key] = record
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok && !record.Completed {
		delete(s.records, key)
	}
	return nil
}

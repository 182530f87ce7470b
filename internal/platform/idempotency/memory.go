package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is meant for tests and single instance
// local runs; expired entries are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || !now.Before(record.ExpiresAt) {
		record = Record{Fingerprint: fingerprint, Status: StatusPending, ExpiresAt: now.Add(ttl)}
		s.records[key] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	return reservationFor(record, fingerprint)
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[key] = completedRecord(fingerprint, resp, now.Add(ttl))
	return nil
}

// Release implements Store. Only a pending reservation with a matching fingerprint is removed.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && record.Fingerprint == fingerprint && record.Status == StatusPending {
		delete(s.records, key)
	}
	return nil
}

package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process memory. It backs local runs without Firestore and the tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]Record
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if !key.valid() {
		return Reservation{}, ErrInvalidKey
	}
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || record.expired(now) {
		record = pendingRecord(key, fingerprint, now, effectiveTTL(ttl))
		s.records[key] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	return reservationFor(record, fingerprint)
}

func (s *MemoryStore) Complete(_ context.Context, key Key, fingerprint string, done Completion, now time.Time, ttl time.Duration) error {
	if !key.valid() {
		return ErrInvalidKey
	}
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = pendingRecord(key, fingerprint, now, effectiveTTL(ttl))
	}
	record.Status = StatusCompleted
	record.Response = Response{
		Status:  done.Response.Status,
		Headers: replayableHeaders(done.Response.Headers),
		Body:    append([]byte(nil), done.Response.Body...),
	}
	record.ResourceID = done.ResourceID
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(effectiveTTL(ttl))
	s.records[key] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key Key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && record.Fingerprint == fingerprint {
		delete(s.records, key)
	}
	return nil
}

// CleanupExpired removes up to limit expired reservations, oldest expiry first.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Record
	for _, record := range s.records {
		if record.expired(now) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(s.records, record.Key)
	}
	return len(expired), nil
}

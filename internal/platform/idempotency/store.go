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

// DefaultTTL is how long a completed quote mutation can be replayed.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means the stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holding the key is still running.
	ReservationStatePending
)

var (
	// ErrFingerprintMismatch is returned when a key is reused for a different request.
	ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")
	// ErrInvalidKey is returned for keys with no caller or value.
	ErrInvalidKey = errors.New("idempotency: key requires caller and value")
)

// Key identifies a reservation. The client-supplied value is only unique per caller, so two
// users sending the same header value never share a reservation.
type Key struct {
	Caller string
	Value  string
}

func (k Key) valid() bool {
	return strings.TrimSpace(k.Caller) != "" && strings.TrimSpace(k.Value) != ""
}

// id hashes the key so arbitrary header values are safe Firestore document ids.
func (k Key) id() string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(k.Caller) + "\x00" + strings.TrimSpace(k.Value)))
	return hex.EncodeToString(sum[:])
}

// Response is the handler output kept for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Record is a stored reservation.
type Record struct {
	Key         Key
	Fingerprint string
	Status      Status
	Response    Response
	// ResourceID is the quote affected by the original request, empty until it completes.
	ResourceID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Reservation is the result of Store.Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Completion is what Store.Complete persists once the handler has answered.
type Completion struct {
	Response   Response
	ResourceID string
}

// Store persists reservations. An expired reservation behaves as if it never existed.
type Store interface {
	Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key Key, fingerprint string, done Completion, now time.Time, ttl time.Duration) error
	// Release drops a reservation so a retry reaches the handler again. Reservations held for a
	// different fingerprint are left alone.
	Release(ctx context.Context, key Key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func pendingRecord(key Key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func reservationFor(record Record, fingerprint string) (Reservation, error) {
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeaders drops hop-by-hop and per-response headers before storage.
func replayableHeaders(header http.Header) http.Header {
	filtered := make(http.Header, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Proxy-Authenticate",
			"Proxy-Authorization", "Te", "Trailers", "Transfer-Encoding", "Upgrade", "Retry-After":
			continue
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	return filtered
}

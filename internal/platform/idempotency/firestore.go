package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/homequote/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store idempotency keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore keeps reservations in a Firestore collection, one document per hashed caller key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Reserve records a pending reservation or reports the state of an existing one.
func (s *FirestoreStore) Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if !key.valid() {
		return Reservation{}, ErrInvalidKey
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		pending := pendingRecord(key, fingerprint, now, effectiveTTL(ttl))

		stored, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if !found || stored.expired(now) {
			result = Reservation{State: ReservationStateNew, Record: pending}
			return tx.Set(ref, encodeRecord(pending))
		}
		result, err = reservationFor(stored, fingerprint)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// Complete marks the reservation completed and stores the response for replay.
func (s *FirestoreStore) Complete(ctx context.Context, key Key, fingerprint string, done Completion, now time.Time, ttl time.Duration) error {
	if !key.valid() {
		return ErrInvalidKey
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}

	return s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		record, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
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
		return tx.Set(ref, encodeRecord(record))
	})
}

// CleanupExpired deletes up to limit expired reservations.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	writer := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	writer.End()
	return len(docs), nil
}

// Release removes the reservation so a retry can run the handler again.
func (s *FirestoreStore) Release(ctx context.Context, key Key, fingerprint string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		record, found, err := readRecord(tx, ref)
		if err != nil || !found || record.Fingerprint != fingerprint {
			return err
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("idempotency.release", err)
}

func (s *FirestoreStore) doc(ctx context.Context, key Key) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(key.id()), nil
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var doc idempotencyDocument
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, err
	}
	return doc.toRecord(), true, nil
}

type idempotencyDocument struct {
	Caller          string              `firestore:"caller"`
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResourceID      string              `firestore:"resourceId,omitempty"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func encodeRecord(r Record) idempotencyDocument {
	return idempotencyDocument{
		Caller:          r.Key.Caller,
		Key:             r.Key.Value,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResourceID:      r.ResourceID,
		ResponseStatus:  r.Response.Status,
		ResponseHeaders: r.Response.Headers,
		ResponseBody:    r.Response.Body,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d idempotencyDocument) toRecord() Record {
	return Record{
		Key:         Key{Caller: d.Caller, Value: d.Key},
		Fingerprint: d.Fingerprint,
		Status:      Status(d.Status),
		Response: Response{
			Status:  d.ResponseStatus,
			Headers: d.ResponseHeaders,
			Body:    d.ResponseBody,
		},
		ResourceID: d.ResourceID,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		ExpiresAt:  d.ExpiresAt,
	}
}

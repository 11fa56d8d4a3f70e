package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore persists reservations in a Firestore collection so retries
// landing on a different instance still replay the stored response.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency records.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore constructs a Firestore-backed Store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type firestoreRecord struct {
	Fingerprint string    `firestore:"fingerprint"`
	Completed   bool      `firestore:"completed"`
	Status      int       `firestore:"status,omitempty"`
	ContentType string    `firestore:"contentType,omitempty"`
	Body        []byte    `firestore:"body,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	ExpiresAt   time.Time `firestore:"expiresAt"`
}

// Reserve implements Store using a transaction so two concurrent retries
// cannot both claim the key.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if s == nil || s.client == nil {
		return StateNew, Record{}, errors.New("idempotency: firestore store not initialised")
	}

	doc := s.client.Collection(s.collection).Doc(key)
	var state State
	var record Record

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		switch {
		case err == nil:
			var stored firestoreRecord
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if now.Before(stored.ExpiresAt) {
				if stored.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				record = stored.toRecord(key)
				if stored.Completed {
					state = StateReplay
				} else {
					state = StateInFlight
				}
				return nil
			}
			// Expired record: fall through and reclaim the key.
		case status.Code(err) != codes.NotFound:
			return err
		}

		state = StateNew
		return tx.Set(doc, firestoreRecord{
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		})
	})
	if err != nil {
		return StateNew, Record{}, err
	}
	return state, record, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key string, record Record) error {
	if s == nil || s.client == nil {
		return errors.New("idempotency: firestore store not initialised")
	}
	doc := s.client.Collection(s.collection).Doc(key)
	_, err := doc.Update(ctx, []firestore.Update{
		{Path: "completed", Value: true},
		{Path: "status", Value: record.Status},
		{Path: "contentType", Value: record.ContentType},
		{Path: "body", Value: record.Body},
	})
	return err
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.client.Collection(s.collection).Doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (r firestoreRecord) toRecord(key string) Record {
	return Record{
		Key:         key,
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		ContentType: r.ContentType,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

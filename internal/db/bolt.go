package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"receipt-drop/internal/receipts"
)

// Bucket names.
const (
	bucketReceipts = "receipts"
	bucketObjects  = "receipt_objects"
)

// BoltStore keeps records as JSON in an embedded bbolt file. A secondary
// bucket maps object keys to record ids.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (or creates) the database file at path and initialises
// its buckets.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketReceipts, bucketObjects} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

func (s *BoltStore) Backend() string { return "bolt" }

func (s *BoltStore) Insert(_ context.Context, r *receipts.Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReceipts))
		if b.Get([]byte(r.ID)) != nil {
			return fmt.Errorf("duplicate receipt id %s", r.ID)
		}
		if err := b.Put([]byte(r.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketObjects)).Put([]byte(r.ObjectKey), []byte(r.ID))
	})
}

func (s *BoltStore) Get(_ context.Context, id string) (*receipts.Receipt, error) {
	var r receipts.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketReceipts)).Get([]byte(id))
		if data == nil {
			return receipts.ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) List(_ context.Context, q receipts.ListQuery) ([]receipts.Receipt, error) {
	terms := searchTerms(q.Text)
	out := make([]receipts.Receipt, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketReceipts)).ForEach(func(_, v []byte) error {
			var r receipts.Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal receipt: %w", err)
			}
			if matchesQuery(&r, q, terms) {
				out = append(out, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(out)
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BoltStore) HasObject(_ context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(bucketObjects)).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

// Ping checks the database file is still open.
func (s *BoltStore) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketReceipts)) == nil {
			return fmt.Errorf("bucket %s not found", bucketReceipts)
		}
		return nil
	})
}

func (s *BoltStore) Close(context.Context) error { return s.db.Close() }

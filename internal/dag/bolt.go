package dag

import (
	"context"
	"fmt"
	"time"

	gocid "github.com/ipfs/go-cid"
	bolt "go.etcd.io/bbolt"
)

var objectsBucket = []byte("objects")

// BoltBackend keeps every object in a single bbolt file. Readers run in
// parallel; bbolt serializes writers.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens (or creates) the database at path.
func OpenBoltBackend(path string, timeout time.Duration) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create objects bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// DB exposes the handle so other stores (op heads) can share the file.
func (b *BoltBackend) DB() *bolt.DB {
	return b.db
}

// Put stores the object unless the key is already present.
func (b *BoltBackend) Put(_ context.Context, c gocid.Cid, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectsBucket)
		if bucket.Get(c.Bytes()) != nil {
			return nil
		}
		return bucket.Put(c.Bytes(), data)
	})
}

// Get copies the value out of the read transaction.
func (b *BoltBackend) Get(_ context.Context, c gocid.Cid) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(objectsBucket).Get(c.Bytes())
		if value == nil {
			return ErrNotFound
		}
		data = make([]byte, len(value))
		copy(data, value)
		return nil
	})
	return data, err
}

// Has reports whether the key exists.
func (b *BoltBackend) Has(_ context.Context, c gocid.Cid) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(objectsBucket).Get(c.Bytes()) != nil
		return nil
	})
	return found, err
}

// Close closes the database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

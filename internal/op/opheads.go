package op

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/systemshift/mxvc/internal/dag"
)

// UpdateResult reports the outcome of a head swap.
type UpdateResult struct {
	// Swapped is true when every expected old head was still present and
	// no other head remains besides the new one.
	Swapped bool
	// Heads are the heads after the update.
	Heads []OperationID
}

// HeadsStore tracks the current operation heads. Normally there is one;
// concurrent writers leave several until they are merged.
type HeadsStore interface {
	Heads(ctx context.Context) ([]OperationID, error)
	// Update atomically adds next and removes every id in old that is
	// still a head.
	Update(ctx context.Context, old []OperationID, next OperationID) (UpdateResult, error)
}

func result(before []OperationID, old []OperationID, next OperationID) UpdateResult {
	swapped := true
	for _, id := range old {
		if !slices.Contains(before, id) {
			swapped = false
		}
	}
	var after []OperationID
	for _, id := range before {
		if !slices.Contains(old, id) && id != next {
			after = append(after, id)
		}
	}
	if len(after) > 0 {
		swapped = false
	}
	after = append(after, next)
	slices.Sort(after)
	return UpdateResult{Swapped: swapped, Heads: after}
}

// FileHeadsStore keeps one empty file per head under dir/heads. Updates
// are serialized with a lock file held only for the swap.
type FileHeadsStore struct {
	dir         string
	lockTimeout time.Duration
}

// NewFileHeadsStore creates the heads directory if needed.
func NewFileHeadsStore(dir string, lockTimeout time.Duration) (*FileHeadsStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "heads"), 0755); err != nil {
		return nil, fmt.Errorf("create op heads dir: %w", err)
	}
	return &FileHeadsStore{dir: dir, lockTimeout: lockTimeout}, nil
}

// Heads lists the head files. New heads are written before old ones are
// removed, so a reader never sees an empty set.
func (s *FileHeadsStore) Heads(_ context.Context) ([]OperationID, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "heads"))
	if err != nil {
		return nil, fmt.Errorf("list op heads: %w", err)
	}
	var heads []OperationID
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		heads = append(heads, OperationID(e.Name()))
	}
	slices.Sort(heads)
	return heads, nil
}

// Update performs the swap under the lock.
func (s *FileHeadsStore) Update(ctx context.Context, old []OperationID, next OperationID) (UpdateResult, error) {
	lock, err := dag.AcquireLock(ctx, filepath.Join(s.dir, "lock"), s.lockTimeout)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("lock op heads: %w", err)
	}
	defer lock.Release()

	before, err := s.Heads(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := dag.SafeWrite(filepath.Join(s.dir, "heads", string(next)), nil, 0644); err != nil {
		return UpdateResult{}, fmt.Errorf("add op head: %w", err)
	}
	for _, id := range old {
		if id == next || !slices.Contains(before, id) {
			continue
		}
		if err := dag.SafeRemove(filepath.Join(s.dir, "heads", string(id))); err != nil {
			return UpdateResult{}, fmt.Errorf("remove op head: %w", err)
		}
	}
	return result(before, old, next), nil
}

var opHeadsBucket = []byte("op_heads")

// BoltHeadsStore keeps heads as keys of a bucket in the repository's bolt
// file. A read-write transaction makes each swap atomic.
type BoltHeadsStore struct {
	db *bolt.DB
}

// NewBoltHeadsStore creates the bucket if needed.
func NewBoltHeadsStore(db *bolt.DB) (*BoltHeadsStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(opHeadsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create op heads bucket: %w", err)
	}
	return &BoltHeadsStore{db: db}, nil
}

// Heads lists the head keys.
func (s *BoltHeadsStore) Heads(_ context.Context) ([]OperationID, error) {
	var heads []OperationID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(opHeadsBucket).ForEach(func(k, _ []byte) error {
			heads = append(heads, OperationID(k))
			return nil
		})
	})
	return heads, err
}

// Update performs the swap in one transaction.
func (s *BoltHeadsStore) Update(_ context.Context, old []OperationID, next OperationID) (UpdateResult, error) {
	var res UpdateResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(opHeadsBucket)
		var before []OperationID
		if err := bucket.ForEach(func(k, _ []byte) error {
			before = append(before, OperationID(k))
			return nil
		}); err != nil {
			return err
		}
		if err := bucket.Put([]byte(next), []byte{}); err != nil {
			return err
		}
		for _, id := range old {
			if id == next {
				continue
			}
			if err := bucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		res = result(before, old, next)
		return nil
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update op heads: %w", err)
	}
	return res, nil
}

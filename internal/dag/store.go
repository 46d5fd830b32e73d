package dag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// CidUndef is the undefined/zero CID value, exported for use by other packages.
var CidUndef = gocid.Undef

// ErrNotFound is returned when an object is not present in a backend.
var ErrNotFound = errors.New("object not found")

// Codec selects the multicodec recorded in an object's CID.
type Codec uint64

const (
	// Raw is used for file contents.
	Raw = Codec(gocid.Raw)
	// DagJSON is used for canonical-JSON encoded records (trees, commits,
	// views, operations).
	DagJSON = Codec(gocid.DagJSON)
)

// Backend persists immutable objects keyed by CID. Implementations must be
// safe for concurrent readers and writers; a Put of an existing key is a no-op.
type Backend interface {
	Put(ctx context.Context, c gocid.Cid, data []byte) error
	Get(ctx context.Context, c gocid.Cid) ([]byte, error)
	Has(ctx context.Context, c gocid.Cid) (bool, error)
	Close() error
}

// ObjectStore manages CID-addressed immutable objects.
type ObjectStore struct {
	backend Backend
}

// NewObjectStore wraps a backend.
func NewObjectStore(backend Backend) *ObjectStore {
	return &ObjectStore{backend: backend}
}

// ComputeCID computes a CIDv1 (SHA2-256) for the given data under codec.
func ComputeCID(codec Codec, data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV1(uint64(codec), mh), nil
}

// CIDToFilename returns the base32lower encoding of a CID for use as a filename.
func CIDToFilename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// ParseCID decodes the multibase text produced by CIDToFilename.
func ParseCID(s string) (gocid.Cid, error) {
	_, cidBytes, err := multibase.Decode(s)
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode CID %q: %w", s, err)
	}
	return gocid.Cast(cidBytes)
}

// Put writes data to the object store, returning the CID.
// If the object already exists, this is a no-op.
func (s *ObjectStore) Put(ctx context.Context, codec Codec, data []byte) (gocid.Cid, error) {
	c, err := ComputeCID(codec, data)
	if err != nil {
		return gocid.Undef, err
	}
	if err := s.backend.Put(ctx, c, data); err != nil {
		return gocid.Undef, fmt.Errorf("write object: %w", err)
	}
	return c, nil
}

// PutJSON canonically encodes v and stores it with the dag-json codec.
func (s *ObjectStore) PutJSON(ctx context.Context, v interface{}) (gocid.Cid, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return gocid.Undef, fmt.Errorf("serialize object: %w", err)
	}
	return s.Put(ctx, DagJSON, data)
}

// Get reads an object by CID.
func (s *ObjectStore) Get(ctx context.Context, c gocid.Cid) ([]byte, error) {
	data, err := s.backend.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", CIDToFilename(c), err)
	}
	return data, nil
}

// Has checks if an object exists.
func (s *ObjectStore) Has(ctx context.Context, c gocid.Cid) (bool, error) {
	return s.backend.Has(ctx, c)
}

// Close releases the backend.
func (s *ObjectStore) Close() error {
	return s.backend.Close()
}

// FileBackend stores one file per object, named by the CID's base32 text.
type FileBackend struct {
	dir string // path to objects/ directory
}

// NewFileBackend creates a FileBackend at the given directory.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(c gocid.Cid) string {
	return filepath.Join(b.dir, CIDToFilename(c))
}

// Put writes the object atomically unless it already exists.
func (b *FileBackend) Put(_ context.Context, c gocid.Cid, data []byte) error {
	path := b.path(c)
	if _, err := os.Stat(path); err == nil {
		return nil // already exists
	}
	return SafeWrite(path, data, 0644)
}

// Get reads an object, mapping a missing file to ErrNotFound.
func (b *FileBackend) Get(_ context.Context, c gocid.Cid) ([]byte, error) {
	data, err := os.ReadFile(b.path(c))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Has checks if an object file exists.
func (b *FileBackend) Has(_ context.Context, c gocid.Cid) (bool, error) {
	_, err := os.Stat(b.path(c))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error { return nil }

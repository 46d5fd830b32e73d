// Package store persists commits, trees and file contents in the CID
// object store and provides three-way tree merging.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systemshift/mxvc/internal/dag"
)

// ErrNoParents is returned when writing a commit without parents. Only the
// root commit has none; use it as the parent of a parentless change.
var ErrNoParents = errors.New("commit must have at least one parent")

// Store reads and writes VCS objects. Commits and trees are cached after
// the first read; returned values are shared and must not be modified.
type Store struct {
	objects *dag.ObjectStore
	signer  *dag.Identity
	verify  bool

	commits sync.Map // CommitID -> *Commit
	trees   sync.Map // TreeID -> *Tree

	rootCommit CommitID
	emptyTree  TreeID
}

// Option configures a Store.
type Option func(*Store)

// WithSigner signs every commit written through the store.
func WithSigner(id *dag.Identity) Option {
	return func(s *Store) { s.signer = id }
}

// WithVerify checks signatures of signed commits when they are read.
func WithVerify() Option {
	return func(s *Store) { s.verify = true }
}

// Open wraps an object store, writing the empty tree and root commit if
// they are not there yet.
func Open(ctx context.Context, objects *dag.ObjectStore, opts ...Option) (*Store, error) {
	s := &Store{objects: objects}
	for _, opt := range opts {
		opt(s)
	}

	emptyTree, err := s.WriteTree(ctx, &Tree{})
	if err != nil {
		return nil, fmt.Errorf("write empty tree: %w", err)
	}
	s.emptyTree = emptyTree

	root := &Commit{
		Tree:     emptyTree,
		ChangeID: RootChangeID,
		Author:   Signature{Timestamp: time.Unix(0, 0).UTC()},
	}
	root.Committer = root.Author
	rootID, err := s.put(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("write root commit: %w", err)
	}
	s.rootCommit = rootID
	return s, nil
}

// RootCommitID is the id of the parentless root commit.
func (s *Store) RootCommitID() CommitID { return s.rootCommit }

// EmptyTreeID is the id of the tree with no entries.
func (s *Store) EmptyTreeID() TreeID { return s.emptyTree }

// Signer returns the configured signing identity, if any.
func (s *Store) Signer() *dag.Identity { return s.signer }

// Close closes the underlying object store.
func (s *Store) Close() error { return s.objects.Close() }

// WriteBlob stores file contents.
func (s *Store) WriteBlob(ctx context.Context, data []byte) (BlobID, error) {
	c, err := s.objects.Put(ctx, dag.Raw, data)
	if err != nil {
		return "", err
	}
	return BlobID(dag.CIDToFilename(c)), nil
}

// ReadBlob reads file contents.
func (s *Store) ReadBlob(ctx context.Context, id BlobID) ([]byte, error) {
	c, err := dag.ParseCID(string(id))
	if err != nil {
		return nil, err
	}
	return s.objects.Get(ctx, c)
}

// WriteTree stores a tree. Entries are sorted by path; duplicates are
// rejected.
func (s *Store) WriteTree(ctx context.Context, t *Tree) (TreeID, error) {
	out := &Tree{Entries: append([]TreeEntry{}, t.Entries...)}
	if err := out.normalize(); err != nil {
		return "", err
	}
	c, err := s.objects.PutJSON(ctx, out)
	if err != nil {
		return "", err
	}
	id := TreeID(dag.CIDToFilename(c))
	s.trees.Store(id, out)
	return id, nil
}

// ReadTree reads a tree by id.
func (s *Store) ReadTree(ctx context.Context, id TreeID) (*Tree, error) {
	if v, ok := s.trees.Load(id); ok {
		return v.(*Tree), nil
	}
	c, err := dag.ParseCID(string(id))
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	var t Tree
	if err := dag.DecodeJSON(data, &t); err != nil {
		return nil, fmt.Errorf("decode tree %s: %w", id, err)
	}
	s.trees.Store(id, &t)
	return &t, nil
}

// TreeFromFiles writes each file as a blob and returns the resulting tree.
func (s *Store) TreeFromFiles(ctx context.Context, files map[string][]byte) (TreeID, error) {
	t := &Tree{}
	for path, data := range files {
		blob, err := s.WriteBlob(ctx, data)
		if err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		t.Entries = append(t.Entries, TreeEntry{Path: path, Blob: blob})
	}
	return s.WriteTree(ctx, t)
}

// ReadFile returns the contents of path in tree. ok is false when the path
// is absent.
func (s *Store) ReadFile(ctx context.Context, tree TreeID, path string) (data []byte, ok bool, err error) {
	t, err := s.ReadTree(ctx, tree)
	if err != nil {
		return nil, false, err
	}
	e, found := t.Lookup(path)
	if !found {
		return nil, false, nil
	}
	data, err = s.ReadBlob(ctx, e.Blob)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// TreeHasConflict reports whether the tree holds conflicted entries.
func (s *Store) TreeHasConflict(ctx context.Context, id TreeID) (bool, error) {
	t, err := s.ReadTree(ctx, id)
	if err != nil {
		return false, err
	}
	return t.HasConflict(), nil
}

// WriteCommit stores a commit, signing it when a signer is configured.
func (s *Store) WriteCommit(ctx context.Context, c *Commit) (CommitID, error) {
	if len(c.Parents) == 0 {
		return "", ErrNoParents
	}
	out := c.Clone()
	if s.signer != nil {
		out.Signer = s.signer.DID
		out.Sig = ""
		data, err := dag.CanonicalJSON(out)
		if err != nil {
			return "", fmt.Errorf("encode commit for signing: %w", err)
		}
		sig, err := s.signer.Sign(data)
		if err != nil {
			return "", fmt.Errorf("sign commit: %w", err)
		}
		out.Sig = sig
	}
	return s.put(ctx, out)
}

func (s *Store) put(ctx context.Context, c *Commit) (CommitID, error) {
	c.normalize()
	cid, err := s.objects.PutJSON(ctx, c)
	if err != nil {
		return "", err
	}
	id := CommitID(dag.CIDToFilename(cid))
	s.commits.Store(id, c)
	return id, nil
}

// ReadCommit reads a commit by id.
func (s *Store) ReadCommit(ctx context.Context, id CommitID) (*Commit, error) {
	if v, ok := s.commits.Load(id); ok {
		return v.(*Commit), nil
	}
	cid, err := dag.ParseCID(string(id))
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("read commit: %w", err)
	}
	var c Commit
	if err := dag.DecodeJSON(data, &c); err != nil {
		return nil, fmt.Errorf("decode commit %s: %w", id, err)
	}
	c.normalize()
	if s.verify && c.Sig != "" {
		if err := VerifyCommit(&c); err != nil {
			return nil, fmt.Errorf("commit %s: %w", id, err)
		}
	}
	s.commits.Store(id, &c)
	return &c, nil
}

// VerifyCommit checks the commit's signature against its signer.
func VerifyCommit(c *Commit) error {
	if c.Sig == "" || c.Signer == "" {
		return fmt.Errorf("commit is not signed")
	}
	data, err := dag.CanonicalJSON(c.unsigned())
	if err != nil {
		return err
	}
	return dag.VerifySignature(c.Signer, data, c.Sig)
}

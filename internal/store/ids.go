package store

import (
	"encoding/hex"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// CommitID is the textual CID of a commit object.
type CommitID string

// TreeID is the textual CID of a tree object.
type TreeID string

// BlobID is the textual CID of file contents.
type BlobID string

// ChangeID identifies a change across rewrites. It is assigned when a commit
// is first created and carried over by every rewrite of it.
type ChangeID string

// RootChangeID is the change id of the root commit.
const RootChangeID = ChangeID("00000000000000000000000000000000")

// recordPrefix is the base32 text shared by every dag-json SHA2-256 CIDv1.
const recordPrefix = "baguqeera"

// NewChangeID returns a random change id.
func NewChangeID() ChangeID {
	u := uuid.New()
	return ChangeID(hex.EncodeToString(u[:]))
}

// Short returns the distinguishing part of the id for display. Commit ids
// all start with the same multibase and codec prefix, so it is dropped.
func (id CommitID) Short() string {
	s := strings.TrimPrefix(string(id), recordPrefix)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// HasShortPrefix reports whether p is a prefix of the full or short form.
func (id CommitID) HasShortPrefix(p string) bool {
	return strings.HasPrefix(string(id), p) ||
		strings.HasPrefix(strings.TrimPrefix(string(id), recordPrefix), p)
}

// Short returns a display prefix of the change id.
func (id ChangeID) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

// SortCommitIDs sorts ids in place.
func SortCommitIDs(ids []CommitID) {
	slices.Sort(ids)
}

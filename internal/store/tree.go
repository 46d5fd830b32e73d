package store

import (
	"fmt"
	"sort"
)

// TreeEntry is one file in a tree. Conflict marks contents that hold
// materialized conflict markers.
type TreeEntry struct {
	Path     string `json:"path"`
	Blob     BlobID `json:"blob"`
	Conflict bool   `json:"conflict,omitempty"`
}

// Tree is a flat, path-sorted list of entries.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// Lookup finds the entry for path.
func (t *Tree) Lookup(path string) (TreeEntry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool {
		return t.Entries[i].Path >= path
	})
	if i < len(t.Entries) && t.Entries[i].Path == path {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

// HasConflict reports whether any entry is conflicted.
func (t *Tree) HasConflict() bool {
	for _, e := range t.Entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

// Paths lists entry paths in order.
func (t *Tree) Paths() []string {
	paths := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		paths[i] = e.Path
	}
	return paths
}

func (t *Tree) normalize() error {
	if t.Entries == nil {
		t.Entries = []TreeEntry{}
	}
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].Path < t.Entries[j].Path
	})
	for i := range t.Entries {
		if t.Entries[i].Path == "" {
			return fmt.Errorf("tree entry with empty path")
		}
		if i > 0 && t.Entries[i].Path == t.Entries[i-1].Path {
			return fmt.Errorf("duplicate tree entry %q", t.Entries[i].Path)
		}
	}
	return nil
}

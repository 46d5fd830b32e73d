package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/systemshift/mxvc/internal/merge"
)

// MergeTrees merges left and right, both derived from base, path by path.
// A path changed on one side takes that side and identical changes
// collapse. Content changed on both sides is merged line by line; regions
// that cannot be reconciled, and modify/delete clashes, are materialized with
// conflict markers and the entry is flagged conflicted.
func (s *Store) MergeTrees(ctx context.Context, base, left, right TreeID, labels merge.Labels) (TreeID, error) {
	switch {
	case left == right:
		return left, nil
	case base == left:
		return right, nil
	case base == right:
		return left, nil
	}

	bt, err := s.ReadTree(ctx, base)
	if err != nil {
		return "", err
	}
	lt, err := s.ReadTree(ctx, left)
	if err != nil {
		return "", err
	}
	rt, err := s.ReadTree(ctx, right)
	if err != nil {
		return "", err
	}

	out := &Tree{}
	for _, path := range unionPaths(bt, lt, rt) {
		b, inBase := bt.Lookup(path)
		l, inLeft := lt.Lookup(path)
		r, inRight := rt.Lookup(path)

		var (
			entry   TreeEntry
			present bool
		)
		switch {
		case inLeft == inRight && l == r:
			entry, present = l, inLeft
		case inBase == inLeft && b == l:
			entry, present = r, inRight
		case inBase == inRight && b == r:
			entry, present = l, inLeft
		default:
			entry, err = s.mergeEntry(ctx, path, b, l, r, inBase, inLeft, inRight, labels)
			if err != nil {
				return "", err
			}
			present = true
		}
		if present {
			out.Entries = append(out.Entries, entry)
		}
	}
	return s.WriteTree(ctx, out)
}

func (s *Store) mergeEntry(ctx context.Context, path string, b, l, r TreeEntry, inBase, inLeft, inRight bool, labels merge.Labels) (TreeEntry, error) {
	read := func(e TreeEntry, ok bool) ([]byte, error) {
		if !ok {
			return nil, nil
		}
		return s.ReadBlob(ctx, e.Blob)
	}
	baseData, err := read(b, inBase)
	if err != nil {
		return TreeEntry{}, fmt.Errorf("merge %s: %w", path, err)
	}
	leftData, err := read(l, inLeft)
	if err != nil {
		return TreeEntry{}, fmt.Errorf("merge %s: %w", path, err)
	}
	rightData, err := read(r, inRight)
	if err != nil {
		return TreeEntry{}, fmt.Errorf("merge %s: %w", path, err)
	}

	res := merge.Lines(baseData, leftData, rightData, labels)
	// One side deleted what the other modified.
	conflict := res.Conflict || !inLeft || !inRight
	if conflict && !res.Conflict {
		res = merge.Whole(baseData, leftData, rightData, labels)
	}
	blob, err := s.WriteBlob(ctx, res.Content)
	if err != nil {
		return TreeEntry{}, fmt.Errorf("merge %s: %w", path, err)
	}
	return TreeEntry{
		Path:     path,
		Blob:     blob,
		Conflict: conflict || (inLeft && l.Conflict) || (inRight && r.Conflict),
	}, nil
}

func unionPaths(trees ...*Tree) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, t := range trees {
		for _, e := range t.Entries {
			if _, ok := seen[e.Path]; !ok {
				seen[e.Path] = struct{}{}
				paths = append(paths, e.Path)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

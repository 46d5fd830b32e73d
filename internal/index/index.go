// Package index answers ancestry queries over the commit graph reachable
// from a set of heads.
package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/systemshift/mxvc/internal/store"
)

// CommitSet is a set of commit ids.
type CommitSet = mapset.Set[store.CommitID]

// NewSet returns a set holding ids.
func NewSet(ids ...store.CommitID) CommitSet {
	return mapset.NewThreadUnsafeSet(ids...)
}

// Sorted returns the members of s in id order.
func Sorted(s CommitSet) []store.CommitID {
	ids := s.ToSlice()
	slices.Sort(ids)
	return ids
}

// CommitReader loads commits by id.
type CommitReader interface {
	ReadCommit(ctx context.Context, id store.CommitID) (*store.Commit, error)
}

// Entry is the indexed part of a commit.
type Entry struct {
	ID           store.CommitID
	Parents      []store.CommitID
	Predecessors []store.CommitID
	ChangeID     store.ChangeID
	// Generation is one more than the largest parent generation; the root
	// commit has generation 0.
	Generation int
}

// Index is an in-memory view of the commit graph. It is not safe for
// concurrent mutation; readers may share an index that is no longer being
// added to.
type Index struct {
	entries  map[store.CommitID]*Entry
	children map[store.CommitID][]store.CommitID
	byChange map[store.ChangeID]CommitSet
}

func newIndex() *Index {
	return &Index{
		entries:  make(map[store.CommitID]*Entry),
		children: make(map[store.CommitID][]store.CommitID),
		byChange: make(map[store.ChangeID]CommitSet),
	}
}

// Build indexes every commit reachable from heads.
func Build(ctx context.Context, r CommitReader, heads []store.CommitID) (*Index, error) {
	ix := newIndex()
	commits := make(map[store.CommitID]*store.Commit)
	stack := append([]store.CommitID{}, heads...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := commits[id]; ok {
			continue
		}
		c, err := r.ReadCommit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("index commit %s: %w", id.Short(), err)
		}
		commits[id] = c
		for _, p := range c.Parents {
			if _, ok := commits[p]; !ok {
				stack = append(stack, p)
			}
		}
	}

	// Add in parent-first order so generations can be computed directly.
	var visit func(id store.CommitID)
	visit = func(id store.CommitID) {
		if ix.Has(id) {
			return
		}
		c := commits[id]
		for _, p := range c.Parents {
			visit(p)
		}
		ix.insert(id, c)
	}
	ids := make([]store.CommitID, 0, len(commits))
	for id := range commits {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		visit(id)
	}
	return ix, nil
}

// Add indexes a commit whose parents are already indexed.
func (ix *Index) Add(id store.CommitID, c *store.Commit) error {
	if ix.Has(id) {
		return nil
	}
	for _, p := range c.Parents {
		if !ix.Has(p) {
			return fmt.Errorf("parent %s of %s is not indexed", p.Short(), id.Short())
		}
	}
	ix.insert(id, c)
	return nil
}

func (ix *Index) insert(id store.CommitID, c *store.Commit) {
	gen := 0
	for _, p := range c.Parents {
		if g := ix.entries[p].Generation + 1; g > gen {
			gen = g
		}
	}
	ix.entries[id] = &Entry{
		ID:           id,
		Parents:      append([]store.CommitID{}, c.Parents...),
		Predecessors: append([]store.CommitID{}, c.Predecessors...),
		ChangeID:     c.ChangeID,
		Generation:   gen,
	}
	for _, p := range c.Parents {
		ix.children[p] = append(ix.children[p], id)
	}
	set, ok := ix.byChange[c.ChangeID]
	if !ok {
		set = NewSet()
		ix.byChange[c.ChangeID] = set
	}
	set.Add(id)
}

// Clone returns an index that can be added to without affecting ix.
func (ix *Index) Clone() *Index {
	out := newIndex()
	for id, e := range ix.entries {
		out.entries[id] = e
	}
	for id, kids := range ix.children {
		out.children[id] = append([]store.CommitID{}, kids...)
	}
	for change, set := range ix.byChange {
		out.byChange[change] = set.Clone()
	}
	return out
}

// Len is the number of indexed commits.
func (ix *Index) Len() int { return len(ix.entries) }

// Has reports whether id is indexed.
func (ix *Index) Has(id store.CommitID) bool {
	_, ok := ix.entries[id]
	return ok
}

// Entry returns the index entry for id.
func (ix *Index) Entry(id store.CommitID) (*Entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Parents returns the ordered parents of id.
func (ix *Index) Parents(id store.CommitID) []store.CommitID {
	if e, ok := ix.entries[id]; ok {
		return e.Parents
	}
	return nil
}

// Children returns the indexed children of id in id order.
func (ix *Index) Children(id store.CommitID) []store.CommitID {
	kids := slices.Clone(ix.children[id])
	slices.Sort(kids)
	return kids
}

// CommitsByChangeID returns every indexed commit carrying change.
func (ix *Index) CommitsByChangeID(change store.ChangeID) []store.CommitID {
	set, ok := ix.byChange[change]
	if !ok {
		return nil
	}
	return Sorted(set)
}

// IsAncestor reports whether a is an ancestor of b. A commit is its own
// ancestor.
func (ix *Index) IsAncestor(a, b store.CommitID) bool {
	ea, ok := ix.entries[a]
	if !ok {
		return false
	}
	if a == b {
		return true
	}
	seen := NewSet(b)
	stack := []store.CommitID{b}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range ix.Parents(id) {
			if p == a {
				return true
			}
			pe, ok := ix.entries[p]
			if !ok || pe.Generation <= ea.Generation || seen.Contains(p) {
				continue
			}
			seen.Add(p)
			stack = append(stack, p)
		}
	}
	return false
}

// Ancestors returns ids and everything reachable from them.
func (ix *Index) Ancestors(ids ...store.CommitID) CommitSet {
	out := NewSet()
	stack := append([]store.CommitID{}, ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !ix.Has(id) || out.Contains(id) {
			continue
		}
		out.Add(id)
		stack = append(stack, ix.Parents(id)...)
	}
	return out
}

// Descendants returns ids and every indexed commit reachable from them
// through child links.
func (ix *Index) Descendants(ids ...store.CommitID) CommitSet {
	out := NewSet()
	stack := append([]store.CommitID{}, ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !ix.Has(id) || out.Contains(id) {
			continue
		}
		out.Add(id)
		stack = append(stack, ix.children[id]...)
	}
	return out
}

// HeadsAmong returns the members of ids that are not ancestors of another
// member, in id order.
func (ix *Index) HeadsAmong(ids []store.CommitID) []store.CommitID {
	candidates := NewSet()
	minGen := -1
	for _, id := range ids {
		e, ok := ix.entries[id]
		if !ok {
			continue
		}
		candidates.Add(id)
		if minGen < 0 || e.Generation < minGen {
			minGen = e.Generation
		}
	}

	// Walk strictly below every candidate; anything reached is not a head.
	covered := NewSet()
	var stack []store.CommitID
	candidates.Each(func(id store.CommitID) bool {
		stack = append(stack, ix.Parents(id)...)
		return false
	})
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := ix.entries[id]
		if !ok || e.Generation < minGen || covered.Contains(id) {
			continue
		}
		covered.Add(id)
		stack = append(stack, e.Parents...)
	}
	return Sorted(candidates.Difference(covered))
}

// CommonAncestors returns the heads of the commits that are ancestors of
// both a and b.
func (ix *Index) CommonAncestors(a, b []store.CommitID) []store.CommitID {
	common := ix.Ancestors(a...).Intersect(ix.Ancestors(b...))
	return ix.HeadsAmong(common.ToSlice())
}

// TopoOrder sorts ids so parents come before children; ties are broken by
// id to keep the order deterministic.
func (ix *Index) TopoOrder(ids []store.CommitID) []store.CommitID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b store.CommitID) int {
		ga, gb := ix.generation(a), ix.generation(b)
		if ga != gb {
			return ga - gb
		}
		return cmp.Compare(a, b)
	})
	return out
}

func (ix *Index) generation(id store.CommitID) int {
	if e, ok := ix.entries[id]; ok {
		return e.Generation
	}
	return -1
}

package op

import (
	"context"
	"errors"
	"slices"
)

// ErrNoCommonAncestor is returned when two operations share no history,
// which only happens for operations from different repositories.
var ErrNoCommonAncestor = errors.New("operations have no common ancestor")

// Walker traverses the operation DAG.
type Walker struct {
	store *Store
}

// NewWalker returns a walker reading from s.
func NewWalker(s *Store) *Walker {
	return &Walker{store: s}
}

// Entry pairs an operation with its id.
type Entry struct {
	ID OperationID
	*Operation
}

// Log returns operations reachable from heads, newest end time first, ties
// broken by id. limit <= 0 means no limit.
func (w *Walker) Log(ctx context.Context, heads []OperationID, limit int) ([]Entry, error) {
	seen := map[OperationID]bool{}
	var frontier []Entry
	push := func(id OperationID) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		o, err := w.store.ReadOperation(ctx, id)
		if err != nil {
			return err
		}
		frontier = append(frontier, Entry{ID: id, Operation: o})
		return nil
	}
	for _, h := range heads {
		if err := push(h); err != nil {
			return nil, err
		}
	}

	var out []Entry
	for len(frontier) > 0 && (limit <= 0 || len(out) < limit) {
		// Small frontiers: a linear scan for the newest is enough.
		best := 0
		for i := range frontier {
			if newer(frontier[i], frontier[best]) {
				best = i
			}
		}
		e := frontier[best]
		frontier = slices.Delete(frontier, best, best+1)
		out = append(out, e)
		for _, p := range e.Parents {
			if err := push(p); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func newer(a, b Entry) bool {
	if !a.Metadata.EndTime.Equal(b.Metadata.EndTime) {
		return a.Metadata.EndTime.After(b.Metadata.EndTime)
	}
	return a.ID > b.ID
}

// Ancestors returns every operation reachable from ids, including them.
func (w *Walker) Ancestors(ctx context.Context, ids ...OperationID) (map[OperationID]bool, error) {
	out := map[OperationID]bool{}
	stack := slices.Clone(ids)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[id] {
			continue
		}
		out[id] = true
		o, err := w.store.ReadOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		stack = append(stack, o.Parents...)
	}
	return out, nil
}

// IsAncestor reports whether a is b or one of its ancestors.
func (w *Walker) IsAncestor(ctx context.Context, a, b OperationID) (bool, error) {
	if a == b {
		return true, nil
	}
	anc, err := w.Ancestors(ctx, b)
	if err != nil {
		return false, err
	}
	return anc[a], nil
}

// ClosestCommonAncestor returns the newest ancestor of right that is also
// an ancestor of an operation in left.
func (w *Walker) ClosestCommonAncestor(ctx context.Context, left []OperationID, right OperationID) (OperationID, error) {
	anc, err := w.Ancestors(ctx, left...)
	if err != nil {
		return "", err
	}
	log, err := w.Log(ctx, []OperationID{right}, 0)
	if err != nil {
		return "", err
	}
	for _, e := range log {
		if anc[e.ID] {
			return e.ID, nil
		}
	}
	return "", ErrNoCommonAncestor
}

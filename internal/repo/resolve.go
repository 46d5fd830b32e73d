package repo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

var errNoHeads = errors.New("repository has no operation heads")

// loadHead loads the single current operation. Several heads mean
// transactions committed concurrently; they are merged into one new
// operation whose parents are all of them.
func (s *storage) loadHead(ctx context.Context) (*ReadonlyRepo, error) {
	heads, err := s.heads.Heads(ctx)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, errNoHeads
	}
	heads, err = s.dropAncestorHeads(ctx, heads)
	if err != nil {
		return nil, err
	}
	if len(heads) == 1 {
		return s.loadAt(ctx, heads[0])
	}

	ordered, err := s.orderHeads(ctx, heads)
	if err != nil {
		return nil, err
	}
	s.log.WithField("heads", len(ordered)).Warn("concurrent modification detected, resolving automatically")
	s.metrics.OpHeadMerges.Inc()

	first, err := s.loadAt(ctx, ordered[0])
	if err != nil {
		return nil, err
	}
	tx := first.StartTransaction("resolve concurrent operations")
	merged := []op.OperationID{ordered[0]}
	for _, h := range ordered[1:] {
		if err := tx.mergeOperation(ctx, merged, h); err != nil {
			return nil, fmt.Errorf("merge operation %s: %w", h.Short(), err)
		}
		merged = append(merged, h)
	}
	r, err := tx.commit(ctx, ordered)
	var cm *ConcurrentModificationError
	if errors.As(err, &cm) {
		// Yet another head appeared; the next load folds it in.
		s.log.WithField("op", cm.Operation.Short()).Debug("operation heads changed while resolving")
		return r, nil
	}
	return r, err
}

// dropAncestorHeads removes heads that are ancestors of another head, which
// a writer interrupted between writing and swapping can leave behind.
func (s *storage) dropAncestorHeads(ctx context.Context, heads []op.OperationID) ([]op.OperationID, error) {
	if len(heads) < 2 {
		return heads, nil
	}
	// One walk per head; each set includes the head itself.
	ancestors := make(map[op.OperationID]map[op.OperationID]bool, len(heads))
	for _, h := range heads {
		anc, err := s.walker.Ancestors(ctx, h)
		if err != nil {
			return nil, err
		}
		ancestors[h] = anc
	}
	var keep, stale []op.OperationID
	for _, h := range heads {
		covered := false
		for _, other := range heads {
			if other != h && ancestors[other][h] {
				covered = true
				break
			}
		}
		if covered {
			stale = append(stale, h)
		} else {
			keep = append(keep, h)
		}
	}
	if len(stale) > 0 && len(keep) == 1 {
		if _, err := s.heads.Update(ctx, stale, keep[0]); err != nil {
			return nil, err
		}
	}
	return keep, nil
}

// orderHeads sorts heads by end time, then id.
func (s *storage) orderHeads(ctx context.Context, heads []op.OperationID) ([]op.OperationID, error) {
	ends := make(map[op.OperationID]int64, len(heads))
	for _, h := range heads {
		o, err := s.ops.ReadOperation(ctx, h)
		if err != nil {
			return nil, err
		}
		ends[h] = o.Metadata.EndTime.UnixNano()
	}
	out := slices.Clone(heads)
	slices.SortFunc(out, func(a, b op.OperationID) int {
		if c := cmp.Compare(ends[a], ends[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return out, nil
}

// mergeOperation merges the view of other into the staged view, using the
// closest common ancestor of merged and other as the base, then rebases
// whatever the two sides left inconsistent.
func (tx *Transaction) mergeOperation(ctx context.Context, merged []op.OperationID, other op.OperationID) error {
	s := tx.repo.s
	baseID, err := s.walker.ClosestCommonAncestor(ctx, merged, other)
	if err != nil {
		return err
	}
	baseView, err := s.viewAt(ctx, baseID)
	if err != nil {
		return err
	}
	otherView, err := s.viewAt(ctx, other)
	if err != nil {
		return err
	}

	ix, err := index.Build(ctx, s.store, s.indexRoots(baseView, tx.view, otherView))
	if err != nil {
		return err
	}
	tx.index = ix
	left := tx.view
	tx.view = op.MergeViews(baseView, left, otherView, ix.HeadsAmong)

	tx.inferRewrites(baseView, left)
	tx.inferRewrites(baseView, otherView)
	report := newReport()
	if err := tx.rebaseDescendants(ctx, RebaseOptions{}, report); err != nil {
		return err
	}
	tx.log.WithFields(logrus.Fields{
		"base":    baseID.Short(),
		"other":   other.Short(),
		"rebased": report.RebasedDescendants,
	}).Debug("merged concurrent operation")
	return nil
}

func (s *storage) viewAt(ctx context.Context, id op.OperationID) (*op.View, error) {
	o, err := s.ops.ReadOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ops.ReadView(ctx, o.View)
}

// inferRewrites records what side did relative to base: a commit it hid is
// rewritten into every new commit naming it as a predecessor, or abandoned
// when there is none.
func (tx *Transaction) inferRewrites(base, side *op.View) {
	ix := tx.index
	before := ix.Ancestors(base.Heads...)
	after := ix.Ancestors(side.Heads...)
	hidden := before.Difference(after)
	if hidden.Cardinality() == 0 {
		return
	}
	successors := map[store.CommitID][]store.CommitID{}
	for _, id := range index.Sorted(after.Difference(before)) {
		e, ok := ix.Entry(id)
		if !ok {
			continue
		}
		for _, p := range e.Predecessors {
			if hidden.Contains(p) {
				successors[p] = append(successors[p], id)
			}
		}
	}
	for _, id := range index.Sorted(hidden) {
		if id == tx.Store().RootCommitID() {
			continue
		}
		next, ok := successors[id]
		if !ok {
			if _, seen := tx.replaced[id]; !seen {
				tx.recordAbandon(id, ix.Parents(id))
			}
			continue
		}
		for _, n := range next {
			tx.recordDivergentRewrite(id, n)
		}
	}
}

package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/store"
)

// TargetMode selects which commits a move takes along.
type TargetMode int

const (
	// Revisions moves only the named commits. Their other descendants
	// are reparented onto the nearest ancestors left behind.
	Revisions TargetMode = iota
	// Source moves the named commits with all their descendants.
	Source
	// Branch moves every commit on the named branches that is not
	// already an ancestor of the destination, with descendants.
	Branch
)

// Location says where moved commits end up relative to MoveRequest.Commits.
type Location int

const (
	// Destination makes the commits the new parents of the targets' roots.
	Destination Location = iota
	// InsertAfter places the targets on the commits and moves the commits'
	// children on top of the targets.
	InsertAfter
	// InsertBefore places the targets between the commits and their
	// parents.
	InsertBefore
)

// MoveRequest describes a rebase.
type MoveRequest struct {
	Mode     TargetMode
	Targets  []store.CommitID
	Location Location
	Commits  []store.CommitID

	Empty         EmptyBehavior
	KeepDivergent bool
	// SimplifyAncestors drops redundant merge parents. Nil means on for
	// Destination and off for the insertion locations.
	SimplifyAncestors *bool
}

var errNoDestination = errors.New("no destination given")

// move holds a validated request. Parent lists are in old commit ids.
type move struct {
	tx       *Transaction
	req      MoveRequest
	visible  index.CommitSet
	targets  index.CommitSet
	onto     []store.CommitID
	children index.CommitSet
	rewrite  index.CommitSet
	parents  map[store.CommitID][]store.CommitID
	simplify bool
}

// MoveCommits rebases the selected commits inside tx, rewrites everything
// that descends from them and records the replacements in the view.
// Every check runs before the first write, so a refused move leaves the
// transaction untouched.
func MoveCommits(ctx context.Context, tx *Transaction, req MoveRequest) (*RebaseReport, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	if len(req.Commits) == 0 {
		return nil, errNoDestination
	}
	for _, id := range append(slices.Clone(req.Targets), req.Commits...) {
		if !tx.index.Has(id) {
			return nil, fmt.Errorf("rebase %s: %w", id.Short(), errUnknownCommit)
		}
	}

	m := &move{tx: tx, req: req, visible: tx.Visible()}
	m.simplify = req.Location == Destination
	if req.SimplifyAncestors != nil {
		m.simplify = *req.SimplifyAncestors
	}
	m.selectTargets()
	report := newReport()
	if m.targets.Cardinality() == 0 {
		return report, nil
	}
	m.locate()
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.planParents()
	order, err := m.order()
	if err != nil {
		return nil, err
	}

	written := index.NewSet()
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := m.apply(ctx, id, written, report)
		if err != nil {
			return nil, err
		}
		if next != "" {
			written.Add(next)
		}
	}

	if err := tx.rebaseDescendants(ctx, RebaseOptions{SimplifyAncestors: m.simplify}, report); err != nil {
		return nil, err
	}
	report.observe(tx.repo.s.metrics)
	tx.log.WithField("targets", m.targets.Cardinality()).Debug("moved commits")
	return report, nil
}

func (m *move) selectTargets() {
	ix := m.tx.index
	switch m.req.Mode {
	case Revisions:
		m.targets = index.NewSet(m.req.Targets...)
	case Source:
		m.targets = ix.Descendants(m.req.Targets...).Intersect(m.visible)
	case Branch:
		branch := ix.Ancestors(m.req.Targets...).Difference(ix.Ancestors(m.req.Commits...))
		var roots []store.CommitID
		branch.Each(func(id store.CommitID) bool {
			if !slices.ContainsFunc(ix.Parents(id), func(p store.CommitID) bool { return branch.Contains(p) }) {
				roots = append(roots, id)
			}
			return false
		})
		m.targets = ix.Descendants(roots...).Intersect(m.visible)
	}
}

func (m *move) isTarget(id store.CommitID) bool { return m.targets.Contains(id) }

// outerParents replaces parents inside the target set with their own
// parents, recursively.
func (m *move) outerParents(id store.CommitID) []store.CommitID {
	var out []store.CommitID
	for _, p := range m.tx.index.Parents(id) {
		next := []store.CommitID{p}
		if m.targets.Contains(p) {
			next = m.outerParents(p)
		}
		for _, q := range next {
			if !slices.Contains(out, q) {
				out = append(out, q)
			}
		}
	}
	return out
}

// locate computes the new parents of the target roots and the commits
// that move on top of the targets.
func (m *move) locate() {
	ix := m.tx.index
	m.children = index.NewSet()
	switch m.req.Location {
	case Destination:
		m.onto = slices.Clone(m.req.Commits)
	case InsertAfter:
		m.onto = slices.Clone(m.req.Commits)
		for _, x := range m.req.Commits {
			for _, kid := range ix.Children(x) {
				if m.visible.Contains(kid) && !m.targets.Contains(kid) {
					m.children.Add(kid)
				}
			}
		}
	case InsertBefore:
		for _, x := range m.req.Commits {
			m.children.Add(x)
			for _, p := range m.outerParents(x) {
				if !slices.Contains(m.onto, p) {
					m.onto = append(m.onto, p)
				}
			}
		}
	}
}

func (m *move) validate() error {
	tx := m.tx
	ix := tx.index
	targets := index.Sorted(m.targets)
	for _, id := range targets {
		if err := tx.checkMutable(id); err != nil {
			return err
		}
	}
	below := ix.Descendants(targets...).Intersect(m.visible)
	for _, p := range m.onto {
		if m.targets.Contains(p) {
			return &RefusedLoopError{Commit: p, Onto: p, Reason: loopOntoItself}
		}
		if below.Contains(p) {
			for _, t := range targets {
				if ix.IsAncestor(t, p) {
					return &RefusedLoopError{Commit: t, Onto: p, Reason: loopOntoDescendant}
				}
			}
		}
	}
	above := ix.Ancestors(m.onto...)
	for _, c := range index.Sorted(m.children) {
		if m.targets.Contains(c) {
			return &RefusedLoopError{Commit: c, Onto: c, Reason: loopOntoItself}
		}
		if above.Contains(c) {
			return &RefusedLoopError{Commit: c, Reason: loopAncestor}
		}
	}

	m.rewrite = m.targets.Union(below).Union(ix.Descendants(index.Sorted(m.children)...).Intersect(m.visible))
	for _, id := range index.Sorted(m.rewrite) {
		if err := tx.checkMutable(id); err != nil {
			return err
		}
	}
	return nil
}

// planParents decides every rewritten commit's parents in old ids.
func (m *move) planParents() {
	ix := m.tx.index
	m.parents = map[store.CommitID][]store.CommitID{}
	targetHeads := ix.HeadsAmong(index.Sorted(m.targets))
	for _, id := range index.Sorted(m.rewrite) {
		old := ix.Parents(id)
		var next []store.CommitID
		switch {
		case m.targets.Contains(id) && m.req.Mode == Revisions:
			var inside, outside []store.CommitID
			for _, p := range old {
				if m.targets.Contains(p) {
					inside = append(inside, p)
				} else {
					outside = append(outside, p)
				}
			}
			connected := ix.Ancestors(outside...).Intersect(m.targets)
			connected.Remove(id)
			next = appendUnique(inside, ix.HeadsAmong(index.Sorted(connected))...)
			if len(next) == 0 {
				next = slices.Clone(m.onto)
			}
		case m.targets.Contains(id):
			next = slices.Clone(old)
			if !slices.ContainsFunc(old, m.isTarget) {
				next = slices.Clone(m.onto)
			}
		case m.req.Mode == Revisions:
			next = m.outerParents(id)
		default:
			next = slices.Clone(old)
		}
		if m.children.Contains(id) {
			var replaced []store.CommitID
			for _, p := range next {
				if slices.Contains(m.onto, p) {
					replaced = appendUnique(replaced, targetHeads...)
				} else {
					replaced = appendUnique(replaced, p)
				}
			}
			next = replaced
		}
		m.parents[id] = next
	}
}

func appendUnique(ids []store.CommitID, more ...store.CommitID) []store.CommitID {
	for _, id := range more {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// order sorts the rewrite set so every commit follows its new parents,
// breaking ties by the existing topological order. Anything left over
// sits on a cycle.
func (m *move) order() ([]store.CommitID, error) {
	topo := m.tx.index.TopoOrder(index.Sorted(m.rewrite))
	pending := map[store.CommitID]int{}
	for _, id := range topo {
		for _, p := range m.parents[id] {
			if m.rewrite.Contains(p) {
				pending[id]++
			}
		}
	}
	done := index.NewSet()
	out := make([]store.CommitID, 0, len(topo))
	for len(out) < len(topo) {
		progressed := false
		for _, id := range topo {
			if done.Contains(id) || pending[id] > 0 {
				continue
			}
			done.Add(id)
			out = append(out, id)
			for _, other := range topo {
				if !done.Contains(other) && slices.Contains(m.parents[other], id) {
					pending[other]--
				}
			}
			progressed = true
			break
		}
		if !progressed {
			for _, id := range topo {
				if !done.Contains(id) {
					return nil, &RefusedLoopError{Commit: id, Reason: loopAncestor}
				}
			}
		}
	}
	return out, nil
}

// apply rewrites one commit, returning the id written if any.
func (m *move) apply(ctx context.Context, id store.CommitID, written index.CommitSet, report *RebaseReport) (store.CommitID, error) {
	tx := m.tx
	c, err := tx.Store().ReadCommit(ctx, id)
	if err != nil {
		return "", err
	}
	isTarget := m.targets.Contains(id)
	parents := tx.mapParents(m.parents[id])
	if m.simplify {
		parents = tx.simplifyParents(parents)
	}
	if slices.Equal(parents, c.Parents) {
		if isTarget {
			report.Skipped++
		}
		return "", nil
	}

	if isTarget && !m.req.KeepDivergent {
		dup, err := m.duplicate(ctx, id, c, parents, written)
		if err != nil {
			return "", err
		}
		if dup != "" {
			tx.recordAbandon(id, []store.CommitID{dup})
			report.AbandonedDivergent = append(report.AbandonedDivergent, id)
			return "", nil
		}
	}

	tree, err := tx.rebasedTree(ctx, id, c, parents)
	if err != nil {
		return "", err
	}
	if isTarget && m.req.Empty == AbandonNewlyEmpty {
		empty, err := tx.becameEmpty(ctx, c, tree, parents)
		if err != nil {
			return "", err
		}
		if empty {
			tx.recordAbandon(id, parents)
			report.AbandonedEmpty = append(report.AbandonedEmpty, id)
			return "", nil
		}
	}

	next, err := tx.writeRebased(ctx, id, parents, tree, report)
	if err != nil {
		return "", err
	}
	if isTarget {
		report.Rewritten++
	} else {
		report.RebasedDescendants++
	}
	return next, nil
}

// duplicate looks for a commit with the same change id already sitting at
// the destination with the content id would get.
func (m *move) duplicate(ctx context.Context, id store.CommitID, c *store.Commit, parents []store.CommitID, written index.CommitSet) (store.CommitID, error) {
	tx := m.tx
	var below index.CommitSet
	for _, other := range tx.index.CommitsByChangeID(c.ChangeID) {
		if other == id {
			continue
		}
		otherParents := tx.index.Parents(other)
		switch {
		case written.Contains(other):
			if !slices.Equal(otherParents, parents) {
				continue
			}
		case m.visible.Contains(other) && !m.rewrite.Contains(other):
			if below == nil {
				below = tx.index.Ancestors(parents...)
			}
			if !below.Contains(other) {
				continue
			}
		default:
			continue
		}
		oc, err := tx.Store().ReadCommit(ctx, other)
		if err != nil {
			return "", err
		}
		tree, err := tx.rebasedTree(ctx, id, c, otherParents)
		if err != nil {
			return "", err
		}
		if tree == oc.Tree {
			return other, nil
		}
	}
	return "", nil
}

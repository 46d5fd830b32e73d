package op

import (
	"slices"

	"github.com/systemshift/mxvc/internal/store"
)

// RefTarget is where a ref points. It is a merge of optional commit ids:
// one more add than removes, where an empty id stands for "absent". A
// resolved target has a single add; a conflicted one records every side
// that was added and the bases they diverged from.
//
// The zero value is absent.
type RefTarget struct {
	Removes []store.CommitID `json:"removes,omitempty"`
	Adds    []store.CommitID `json:"adds"`
}

// Absent returns the target of a ref that does not exist.
func Absent() RefTarget {
	return RefTarget{Adds: []store.CommitID{""}}
}

// Normal returns a target pointing at id.
func Normal(id store.CommitID) RefTarget {
	return RefTarget{Adds: []store.CommitID{id}}
}

// Conflicted builds a target from explicit terms and simplifies it.
func Conflicted(removes, adds []store.CommitID) RefTarget {
	return RefTarget{Removes: slices.Clone(removes), Adds: slices.Clone(adds)}.Simplify()
}

func (t RefTarget) adds() []store.CommitID {
	if len(t.Adds) == 0 {
		return []store.CommitID{""}
	}
	return t.Adds
}

// IsResolved reports whether the target has a single side.
func (t RefTarget) IsResolved() bool {
	return len(t.Removes) == 0
}

// IsAbsent reports whether the ref does not exist.
func (t RefTarget) IsAbsent() bool {
	return t.IsResolved() && t.adds()[0] == ""
}

// IsPresent is the opposite of IsAbsent; conflicted targets are present.
func (t RefTarget) IsPresent() bool {
	return !t.IsAbsent()
}

// IsConflicted reports whether the target has more than one side.
func (t RefTarget) IsConflicted() bool {
	return !t.IsResolved()
}

// AsNormal returns the single commit the target points at.
func (t RefTarget) AsNormal() (store.CommitID, bool) {
	if !t.IsResolved() || t.adds()[0] == "" {
		return "", false
	}
	return t.adds()[0], true
}

// AddedIDs returns the present commits among the adds.
func (t RefTarget) AddedIDs() []store.CommitID {
	return present(t.adds())
}

// RemovedIDs returns the present commits among the removes.
func (t RefTarget) RemovedIDs() []store.CommitID {
	return present(t.Removes)
}

func present(ids []store.CommitID) []store.CommitID {
	var out []store.CommitID
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Simplify cancels each remove against an equal add.
func (t RefTarget) Simplify() RefTarget {
	adds := slices.Clone(t.adds())
	var removes []store.CommitID
	for _, r := range t.Removes {
		if i := slices.Index(adds, r); i >= 0 {
			adds = slices.Delete(adds, i, i+1)
			continue
		}
		removes = append(removes, r)
	}
	return RefTarget{Removes: removes, Adds: adds}
}

// Equal compares simplified targets term by term.
func (t RefTarget) Equal(o RefTarget) bool {
	a, b := t.Simplify(), o.Simplify()
	return slices.Equal(a.Removes, b.Removes) && slices.Equal(a.Adds, b.Adds)
}

// Map replaces every term by f(term). Absent terms are passed through.
func (t RefTarget) Map(f func(store.CommitID) []store.CommitID) RefTarget {
	out := RefTarget{Removes: slices.Clone(t.Removes)}
	for _, a := range t.adds() {
		if a == "" {
			out.Adds = append(out.Adds, a)
			continue
		}
		repl := f(a)
		switch len(repl) {
		case 0:
			out.Adds = append(out.Adds, "")
		case 1:
			out.Adds = append(out.Adds, repl[0])
		default:
			// Several replacements become a conflict between them, each
			// diverging from the original.
			out.Adds = append(out.Adds, repl[0])
			for _, id := range repl[1:] {
				out.Removes = append(out.Removes, a)
				out.Adds = append(out.Adds, id)
			}
		}
	}
	return out.Simplify()
}

// MergeRefTargets merges the changes from base to left and base to right.
// A ref changed on only one side takes that side; changed on both to the
// same target collapses; otherwise the result is conflicted.
func MergeRefTargets(base, left, right RefTarget) RefTarget {
	switch {
	case left.Equal(right):
		return left.Simplify()
	case base.Equal(left):
		return right.Simplify()
	case base.Equal(right):
		return left.Simplify()
	}
	var out RefTarget
	out.Adds = append(out.Adds, left.adds()...)
	out.Adds = append(out.Adds, base.Removes...)
	out.Adds = append(out.Adds, right.adds()...)
	out.Removes = append(out.Removes, left.Removes...)
	out.Removes = append(out.Removes, base.adds()...)
	out.Removes = append(out.Removes, right.Removes...)
	return out.Simplify()
}

// RemoteRefState records whether a remote bookmark is tracked locally.
type RemoteRefState string

const (
	RemoteRefNew     RemoteRefState = "new"
	RemoteRefTracked RemoteRefState = "tracked"
)

// RemoteRef is a bookmark on a remote.
type RemoteRef struct {
	Target RefTarget      `json:"target"`
	State  RemoteRefState `json:"state"`
}

func mergeRemoteRefs(base, left, right RemoteRef) RemoteRef {
	state := left.State
	if left.State == base.State {
		state = right.State
	}
	return RemoteRef{
		Target: MergeRefTargets(base.Target, left.Target, right.Target),
		State:  state,
	}
}

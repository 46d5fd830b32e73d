package op

import (
	"slices"

	"github.com/systemshift/mxvc/internal/store"
)

// HeadsFunc reduces a set of commits to those that are not ancestors of
// another member.
type HeadsFunc func([]store.CommitID) []store.CommitID

// MergeViews applies the changes from base to right on top of left.
//
// Heads added on the right are added and heads it removed are removed
// before heads reduces the result. Every ref is merged three-way.
// Workspace checkouts changed on one side take that side; changed on both,
// a removal wins, otherwise left is kept.
func MergeViews(base, left, right *View, heads HeadsFunc) *View {
	out := left.Clone()

	headSet := make(map[store.CommitID]bool)
	for _, h := range left.Heads {
		headSet[h] = true
	}
	for _, h := range right.Heads {
		if !slices.Contains(base.Heads, h) {
			headSet[h] = true
		}
	}
	for _, h := range base.Heads {
		if !slices.Contains(right.Heads, h) {
			delete(headSet, h)
		}
	}
	var merged []store.CommitID
	for h := range headSet {
		merged = append(merged, h)
	}
	slices.Sort(merged)
	if heads != nil {
		merged = heads(merged)
	}
	out.Heads = merged

	out.LocalBookmarks = mergeRefMaps(base.LocalBookmarks, left.LocalBookmarks, right.LocalBookmarks)
	out.Tags = mergeRefMaps(base.Tags, left.Tags, right.Tags)
	out.GitRefs = mergeRefMaps(base.GitRefs, left.GitRefs, right.GitRefs)
	out.GitHead = MergeRefTargets(base.GitHead, left.GitHead, right.GitHead)

	out.RemoteBookmarks = map[string]map[string]RemoteRef{}
	for _, remote := range keys(base.RemoteBookmarks, left.RemoteBookmarks, right.RemoteBookmarks) {
		b, l, r := base.RemoteBookmarks[remote], left.RemoteBookmarks[remote], right.RemoteBookmarks[remote]
		for _, name := range keys(b, l, r) {
			out.SetRemoteBookmark(remote, name, mergeRemoteRefs(b[name], l[name], r[name]))
		}
	}

	out.WorkspaceCheckouts = map[string]store.CommitID{}
	for _, ws := range keys(base.WorkspaceCheckouts, left.WorkspaceCheckouts, right.WorkspaceCheckouts) {
		b, l, r := base.WorkspaceCheckouts[ws], left.WorkspaceCheckouts[ws], right.WorkspaceCheckouts[ws]
		var id store.CommitID
		switch {
		case l == r, b == r:
			id = l
		case b == l:
			id = r
		case l == "" || r == "":
			id = ""
		default:
			id = l
		}
		if id != "" {
			out.WorkspaceCheckouts[ws] = id
		}
	}

	out.Normalize()
	return out
}

func mergeRefMaps(base, left, right map[string]RefTarget) map[string]RefTarget {
	out := map[string]RefTarget{}
	for _, name := range keys(base, left, right) {
		t := MergeRefTargets(base[name], left[name], right[name])
		if t.IsPresent() {
			out[name] = t
		}
	}
	return out
}

func keys[V any](ms ...map[string]V) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range ms {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

package op

import (
	"maps"
	"reflect"
	"slices"

	"github.com/systemshift/mxvc/internal/store"
)

// DefaultWorkspace is the workspace created with a repository.
const DefaultWorkspace = "default"

// View is the state of the repository as of one operation: the visible
// heads, every ref, and the commit each workspace has checked out.
//
// Views are values. Callers mutate a Clone and write it as a new view.
type View struct {
	Heads              []store.CommitID                `json:"heads"`
	LocalBookmarks     map[string]RefTarget            `json:"local_bookmarks"`
	RemoteBookmarks    map[string]map[string]RemoteRef `json:"remote_bookmarks"`
	Tags               map[string]RefTarget            `json:"tags"`
	GitRefs            map[string]RefTarget            `json:"git_refs"`
	GitHead            RefTarget                       `json:"git_head"`
	WorkspaceCheckouts map[string]store.CommitID       `json:"wc_commit_ids"`
}

// NewView returns a view whose only head is root.
func NewView(root store.CommitID) *View {
	v := &View{Heads: []store.CommitID{root}}
	v.Normalize()
	return v
}

// Normalize sorts and deduplicates heads, drops absent refs and
// initializes empty maps so equal views encode identically.
func (v *View) Normalize() {
	v.Heads = slices.Compact(sortedCopy(v.Heads))
	if v.Heads == nil {
		v.Heads = []store.CommitID{}
	}
	v.LocalBookmarks = normalizeRefs(v.LocalBookmarks)
	v.Tags = normalizeRefs(v.Tags)
	v.GitRefs = normalizeRefs(v.GitRefs)
	v.GitHead = normalizeTarget(v.GitHead)

	remotes := make(map[string]map[string]RemoteRef, len(v.RemoteBookmarks))
	for remote, refs := range v.RemoteBookmarks {
		out := make(map[string]RemoteRef, len(refs))
		for name, ref := range refs {
			ref.Target = normalizeTarget(ref.Target)
			if ref.Target.IsAbsent() {
				continue
			}
			if ref.State == "" {
				ref.State = RemoteRefNew
			}
			out[name] = ref
		}
		if len(out) > 0 {
			remotes[remote] = out
		}
	}
	v.RemoteBookmarks = remotes

	if v.WorkspaceCheckouts == nil {
		v.WorkspaceCheckouts = map[string]store.CommitID{}
	}
	maps.DeleteFunc(v.WorkspaceCheckouts, func(_ string, id store.CommitID) bool {
		return id == ""
	})
}

func normalizeTarget(t RefTarget) RefTarget {
	t = t.Simplify()
	if len(t.Removes) == 0 {
		t.Removes = nil
	}
	return t
}

func normalizeRefs(refs map[string]RefTarget) map[string]RefTarget {
	out := make(map[string]RefTarget, len(refs))
	for name, t := range refs {
		t = normalizeTarget(t)
		if t.IsPresent() {
			out[name] = t
		}
	}
	return out
}

func sortedCopy(ids []store.CommitID) []store.CommitID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

// Clone returns a deep copy.
func (v *View) Clone() *View {
	out := &View{
		Heads:              slices.Clone(v.Heads),
		LocalBookmarks:     cloneRefs(v.LocalBookmarks),
		Tags:               cloneRefs(v.Tags),
		GitRefs:            cloneRefs(v.GitRefs),
		GitHead:            cloneTarget(v.GitHead),
		WorkspaceCheckouts: maps.Clone(v.WorkspaceCheckouts),
		RemoteBookmarks:    make(map[string]map[string]RemoteRef, len(v.RemoteBookmarks)),
	}
	for remote, refs := range v.RemoteBookmarks {
		m := make(map[string]RemoteRef, len(refs))
		for name, ref := range refs {
			ref.Target = cloneTarget(ref.Target)
			m[name] = ref
		}
		out.RemoteBookmarks[remote] = m
	}
	if out.WorkspaceCheckouts == nil {
		out.WorkspaceCheckouts = map[string]store.CommitID{}
	}
	return out
}

func cloneTarget(t RefTarget) RefTarget {
	return RefTarget{Removes: slices.Clone(t.Removes), Adds: slices.Clone(t.Adds)}
}

func cloneRefs(refs map[string]RefTarget) map[string]RefTarget {
	out := make(map[string]RefTarget, len(refs))
	for name, t := range refs {
		out[name] = cloneTarget(t)
	}
	return out
}

// Equal compares normalized copies of both views.
func (v *View) Equal(o *View) bool {
	a, b := v.Clone(), o.Clone()
	a.Normalize()
	b.Normalize()
	return reflect.DeepEqual(a, b)
}

// HasHead reports whether id is a visible head.
func (v *View) HasHead(id store.CommitID) bool {
	_, found := slices.BinarySearch(v.Heads, id)
	return found
}

// Bookmark returns the local bookmark target; absent if unset.
func (v *View) Bookmark(name string) RefTarget {
	return v.LocalBookmarks[name]
}

// SetBookmark sets or, for an absent target, deletes a local bookmark.
func (v *View) SetBookmark(name string, t RefTarget) {
	setRef(&v.LocalBookmarks, name, t)
}

// SetTag sets or deletes a tag.
func (v *View) SetTag(name string, t RefTarget) {
	setRef(&v.Tags, name, t)
}

// SetGitRef sets or deletes a mirrored git ref.
func (v *View) SetGitRef(name string, t RefTarget) {
	setRef(&v.GitRefs, name, t)
}

// RemoteBookmark returns the named bookmark on remote.
func (v *View) RemoteBookmark(remote, name string) RemoteRef {
	return v.RemoteBookmarks[remote][name]
}

// SetRemoteBookmark sets or, for an absent target, deletes a remote bookmark.
func (v *View) SetRemoteBookmark(remote, name string, ref RemoteRef) {
	if v.RemoteBookmarks == nil {
		v.RemoteBookmarks = map[string]map[string]RemoteRef{}
	}
	refs := v.RemoteBookmarks[remote]
	if ref.Target.IsAbsent() {
		delete(refs, name)
		if len(refs) == 0 {
			delete(v.RemoteBookmarks, remote)
		}
		return
	}
	if refs == nil {
		refs = map[string]RemoteRef{}
		v.RemoteBookmarks[remote] = refs
	}
	refs[name] = ref
}

func setRef(m *map[string]RefTarget, name string, t RefTarget) {
	if t.IsAbsent() {
		delete(*m, name)
		return
	}
	if *m == nil {
		*m = map[string]RefTarget{}
	}
	(*m)[name] = normalizeTarget(t)
}

// SetWorkspaceCheckout records the commit checked out in ws; an empty id
// removes the workspace.
func (v *View) SetWorkspaceCheckout(ws string, id store.CommitID) {
	if id == "" {
		delete(v.WorkspaceCheckouts, ws)
		return
	}
	if v.WorkspaceCheckouts == nil {
		v.WorkspaceCheckouts = map[string]store.CommitID{}
	}
	v.WorkspaceCheckouts[ws] = id
}

// ReferencedCommits returns every commit a ref or workspace points at.
func (v *View) ReferencedCommits() []store.CommitID {
	var ids []store.CommitID
	add := func(t RefTarget) {
		ids = append(ids, t.AddedIDs()...)
		ids = append(ids, t.RemovedIDs()...)
	}
	for _, t := range v.LocalBookmarks {
		add(t)
	}
	for _, refs := range v.RemoteBookmarks {
		for _, ref := range refs {
			add(ref.Target)
		}
	}
	for _, t := range v.Tags {
		add(t)
	}
	for _, t := range v.GitRefs {
		add(t)
	}
	add(v.GitHead)
	for _, id := range v.WorkspaceCheckouts {
		ids = append(ids, id)
	}
	return slices.Compact(sortedCopy(ids))
}

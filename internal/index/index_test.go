package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/mxvc/internal/dag"
	"github.com/systemshift/mxvc/internal/store"
)

// graph writes named commits with named parents ("root" is the root
// commit) and remembers their ids.
type graph struct {
	t     *testing.T
	store *store.Store
	ids   map[string]store.CommitID
}

func newGraph(t *testing.T) *graph {
	t.Helper()
	backend, err := dag.NewFileBackend(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	s, err := store.Open(context.Background(), dag.NewObjectStore(backend))
	require.NoError(t, err)
	return &graph{t: t, store: s, ids: map[string]store.CommitID{"root": s.RootCommitID()}}
}

func (g *graph) commit(name string, parents ...string) store.CommitID {
	g.t.Helper()
	var ps []store.CommitID
	for _, p := range parents {
		id, ok := g.ids[p]
		require.True(g.t, ok, "unknown parent %s", p)
		ps = append(ps, id)
	}
	id, err := g.store.WriteCommit(context.Background(), &store.Commit{
		Parents:     ps,
		Tree:        g.store.EmptyTreeID(),
		ChangeID:    store.NewChangeID(),
		Description: name,
	})
	require.NoError(g.t, err)
	g.ids[name] = id
	return id
}

func (g *graph) set(names ...string) []store.CommitID {
	out := make([]store.CommitID, len(names))
	for i, n := range names {
		out[i] = g.ids[n]
	}
	return out
}

func (g *graph) sorted(names ...string) []store.CommitID {
	return Sorted(NewSet(g.set(names...)...))
}

// Graph used below:
//
//	d   e
//	|\ /
//	b c
//	|/
//	a
//	|
//	root
func buildDiamond(t *testing.T) (*graph, *Index) {
	g := newGraph(t)
	g.commit("a", "root")
	g.commit("b", "a")
	g.commit("c", "a")
	g.commit("d", "b", "c")
	g.commit("e", "c")
	ix, err := Build(context.Background(), g.store, g.set("d", "e"))
	require.NoError(t, err)
	return g, ix
}

func TestBuild(t *testing.T) {
	g, ix := buildDiamond(t)
	assert.Equal(t, 6, ix.Len())
	assert.Equal(t, g.set("b", "c"), ix.Parents(g.ids["d"]))
	assert.Equal(t, g.sorted("b", "c"), ix.Children(g.ids["a"]))

	e, ok := ix.Entry(g.ids["d"])
	require.True(t, ok)
	assert.Equal(t, 3, e.Generation)
	root, _ := ix.Entry(g.ids["root"])
	assert.Equal(t, 0, root.Generation)
}

func TestIsAncestor(t *testing.T) {
	g, ix := buildDiamond(t)
	tests := []struct {
		a, b string
		want bool
	}{
		{"a", "d", true},
		{"root", "e", true},
		{"c", "d", true},
		{"b", "e", false},
		{"d", "a", false},
		{"e", "e", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ix.IsAncestor(g.ids[tt.a], g.ids[tt.b]), "%s -> %s", tt.a, tt.b)
	}
}

func TestAncestorsDescendants(t *testing.T) {
	g, ix := buildDiamond(t)
	assert.Equal(t, g.sorted("root", "a", "b"), Sorted(ix.Ancestors(g.ids["b"])))
	assert.Equal(t, g.sorted("c", "d", "e"), Sorted(ix.Descendants(g.ids["c"])))
	assert.Equal(t, g.sorted("b", "d"), Sorted(ix.Descendants(g.ids["b"])))
}

func TestHeadsAmong(t *testing.T) {
	g, ix := buildDiamond(t)
	assert.Equal(t, g.sorted("d", "e"), ix.HeadsAmong(g.set("a", "b", "c", "d", "e")))
	assert.Equal(t, g.sorted("b", "c"), ix.HeadsAmong(g.set("a", "b", "c")))
	assert.Equal(t, g.sorted("e"), ix.HeadsAmong(g.set("root", "e")))
	assert.Empty(t, ix.HeadsAmong(nil))
}

func TestCommonAncestors(t *testing.T) {
	g, ix := buildDiamond(t)
	assert.Equal(t, g.sorted("c"), ix.CommonAncestors(g.set("d"), g.set("e")))
	assert.Equal(t, g.sorted("a"), ix.CommonAncestors(g.set("b"), g.set("c")))
}

func TestTopoOrder(t *testing.T) {
	g, ix := buildDiamond(t)
	order := ix.TopoOrder(g.set("e", "d", "b", "a", "c"))
	pos := make(map[store.CommitID]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range order {
		for _, p := range ix.Parents(id) {
			if i, ok := pos[p]; ok {
				assert.Less(t, i, pos[id])
			}
		}
	}
	assert.Equal(t, order, ix.TopoOrder(g.set("a", "b", "c", "d", "e")), "order is deterministic")
}

func TestAddAndClone(t *testing.T) {
	g, ix := buildDiamond(t)
	clone := ix.Clone()

	f := g.commit("f", "e")
	c, err := g.store.ReadCommit(context.Background(), f)
	require.NoError(t, err)
	require.NoError(t, clone.Add(f, c))

	assert.True(t, clone.Has(f))
	assert.False(t, ix.Has(f), "original index is unchanged")
	assert.Equal(t, []store.CommitID{f}, clone.Children(g.ids["e"]))
	assert.Empty(t, ix.Children(g.ids["e"]))
	assert.Equal(t, []store.CommitID{f}, clone.CommitsByChangeID(c.ChangeID))

	orphan := &store.Commit{Parents: []store.CommitID{"missing"}}
	assert.Error(t, clone.Add("x", orphan))
}

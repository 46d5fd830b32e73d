package op

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemshift/mxvc/internal/store"
)

func TestRefTarget_States(t *testing.T) {
	var zero RefTarget
	assert.True(t, zero.IsAbsent())
	assert.True(t, Absent().IsAbsent())
	assert.True(t, zero.Equal(Absent()))

	n := Normal("x")
	assert.True(t, n.IsPresent())
	id, ok := n.AsNormal()
	assert.True(t, ok)
	assert.Equal(t, store.CommitID("x"), id)

	c := Conflicted([]store.CommitID{"x"}, []store.CommitID{"y", "z"})
	assert.True(t, c.IsConflicted())
	assert.True(t, c.IsPresent())
	_, ok = c.AsNormal()
	assert.False(t, ok)
	assert.Equal(t, []store.CommitID{"y", "z"}, c.AddedIDs())
	assert.Equal(t, []store.CommitID{"x"}, c.RemovedIDs())
}

func TestRefTarget_Simplify(t *testing.T) {
	c := Conflicted([]store.CommitID{"x"}, []store.CommitID{"y", "x"})
	assert.True(t, c.IsResolved())
	assert.Equal(t, Normal("y"), c)
}

func TestMergeRefTargets(t *testing.T) {
	tests := []struct {
		name              string
		base, left, right RefTarget
		want              RefTarget
	}{
		{"unchanged", Normal("x"), Normal("x"), Normal("x"), Normal("x")},
		{"left moved", Normal("x"), Normal("y"), Normal("x"), Normal("y")},
		{"right moved", Normal("x"), Normal("x"), Normal("z"), Normal("z")},
		{"same move", Normal("x"), Normal("y"), Normal("y"), Normal("y")},
		{"right deleted", Normal("x"), Normal("x"), Absent(), Absent()},
		{"both created same", Absent(), Normal("y"), Normal("y"), Normal("y")},
		{
			"divergent moves",
			Normal("x"), Normal("y"), Normal("z"),
			RefTarget{Removes: []store.CommitID{"x"}, Adds: []store.CommitID{"y", "z"}},
		},
		{
			"move against delete",
			Normal("x"), Normal("y"), Absent(),
			RefTarget{Removes: []store.CommitID{"x"}, Adds: []store.CommitID{"y", ""}},
		},
		{
			"resolve conflict on one side",
			Conflicted([]store.CommitID{"x"}, []store.CommitID{"y", "z"}),
			Normal("w"),
			Conflicted([]store.CommitID{"x"}, []store.CommitID{"y", "z"}),
			Normal("w"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRefTargets(tt.base, tt.left, tt.right)
			assert.True(t, tt.want.Equal(got), "got %+v, want %+v", got, tt.want)
		})
	}
}

func TestRefTarget_Map(t *testing.T) {
	repl := map[store.CommitID][]store.CommitID{
		"x": {"x2"},
		"y": {"p1", "p2"},
		"z": nil,
	}
	f := func(id store.CommitID) []store.CommitID { return repl[id] }

	assert.Equal(t, Normal("x2"), Normal("x").Map(f))
	assert.True(t, Normal("z").Map(f).IsAbsent())

	split := Normal("y").Map(f)
	assert.True(t, split.IsConflicted())
	assert.Equal(t, []store.CommitID{"p1", "p2"}, split.AddedIDs())
	assert.Equal(t, []store.CommitID{"y"}, split.RemovedIDs())
}

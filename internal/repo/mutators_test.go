package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/mxvc/internal/config"
	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

func TestDescribe(t *testing.T) {
	r := initRepo(t, config.BackendFS)
	ctx := context.Background()
	g := newGraph(t, r)
	g.commit("a")
	g.commit("b", "a")
	require.NoError(t, g.tx.SetBookmark("main", op.Normal(g.id("a"))))
	_, tx := g.done()

	a2, err := tx.Describe(ctx, g.id("a"), "better message")
	require.NoError(t, err)
	before, after := readCommit(t, tx, g.id("a")), readCommit(t, tx, a2)
	assert.Equal(t, "better message", after.Description)
	assert.Equal(t, before.ChangeID, after.ChangeID)
	assert.Equal(t, before.Tree, after.Tree)
	assert.Equal(t, []store.CommitID{g.id("a")}, after.Predecessors)
	assert.Equal(t, op.Normal(a2), tx.View().Bookmark("main"))

	head := only(t, tx.View().Heads)
	assert.Equal(t, []store.CommitID{a2}, readCommit(t, tx, head).Parents)
	assert.Equal(t, "b", readCommit(t, tx, head).Description)
}

func TestAmend(t *testing.T) {
	r := initRepo(t, config.BackendBolt)
	ctx := context.Background()
	g := newGraph(t, r)
	g.commitFiles("a", map[string][]byte{"f": []byte("one\ntwo\n")})
	g.commitFiles("b", map[string][]byte{"g": []byte("x\n")}, "a")
	_, tx := g.done()

	tree, err := tx.Store().TreeFromFiles(ctx, map[string][]byte{"f": []byte("one\n2\n")})
	require.NoError(t, err)
	_, err = tx.Amend(ctx, g.id("a"), tree)
	require.NoError(t, err)

	head := only(t, tx.View().Heads)
	assert.Equal(t, map[string]string{"f": "one\n2\n", "g": "x\n"}, treeFiles(t, tx.Store(), readCommit(t, tx, head).Tree))
}

func TestSquash(t *testing.T) {
	t.Run("into parent", func(t *testing.T) {
		r := initRepo(t, config.BackendFS)
		ctx := context.Background()
		g := newGraph(t, r)
		g.commit("a")
		g.commit("b", "a")
		g.commit("c", "b")
		require.NoError(t, g.tx.SetWorkspaceCheckout(op.DefaultWorkspace, g.id("b")))
		_, tx := g.done()

		a2, err := tx.Squash(ctx, g.id("b"), g.id("a"))
		require.NoError(t, err)
		squashed := readCommit(t, tx, a2)
		assert.Equal(t, "a\n\nb", squashed.Description)
		assert.Equal(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, treeFiles(t, tx.Store(), squashed.Tree))

		// Heads are the rebased c and the new working-copy commit.
		heads := tx.View().Heads
		require.Len(t, heads, 2)
		var c2 *store.Commit
		for _, h := range heads {
			if c := readCommit(t, tx, h); c.Description == "c" {
				c2 = c
			}
		}
		require.NotNil(t, c2)
		assert.Equal(t, []store.CommitID{a2}, c2.Parents)
		assert.Equal(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n", "c.txt": "c\n"}, treeFiles(t, tx.Store(), c2.Tree))
		assert.False(t, tx.Visible().Contains(g.id("b")))

		// The workspace was on the squashed commit and gets a new one.
		wc := tx.View().WorkspaceCheckouts[op.DefaultWorkspace]
		assert.Equal(t, []store.CommitID{a2}, readCommit(t, tx, wc).Parents)
	})

	t.Run("into sibling", func(t *testing.T) {
		r := initRepo(t, config.BackendFS)
		ctx := context.Background()
		g := newGraph(t, r)
		g.commit("a")
		g.commit("b", "a")
		g.commit("x", "a")
		_, tx := g.done()

		x2, err := tx.Squash(ctx, g.id("b"), g.id("x"))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n", "x.txt": "x\n"},
			treeFiles(t, tx.Store(), readCommit(t, tx, x2).Tree))
		assert.Equal(t, []store.CommitID{x2}, tx.View().Heads)
	})

	t.Run("into itself", func(t *testing.T) {
		r := initRepo(t, config.BackendFS)
		g := newGraph(t, r)
		g.commit("a")
		_, tx := g.done()
		_, err := tx.Squash(context.Background(), g.id("a"), g.id("a"))
		assert.Error(t, err)
	})
}

func TestSplit(t *testing.T) {
	r := initRepo(t, config.BackendFS)
	ctx := context.Background()
	g := newGraph(t, r)
	g.commit("a")
	g.commitFiles("b", map[string][]byte{"one": []byte("1\n"), "two": []byte("2\n")}, "a")
	g.commit("c", "b")
	require.NoError(t, g.tx.SetBookmark("topic", op.Normal(g.id("b"))))
	_, tx := g.done()

	first, second, err := tx.Split(ctx, g.id("b"), []string{"one"})
	require.NoError(t, err)
	orig := readCommit(t, tx, g.id("b"))
	fc, sc := readCommit(t, tx, first), readCommit(t, tx, second)

	assert.Equal(t, orig.ChangeID, fc.ChangeID)
	assert.NotEqual(t, orig.ChangeID, sc.ChangeID)
	assert.Equal(t, g.list("a"), fc.Parents)
	assert.Equal(t, []store.CommitID{first}, sc.Parents)
	assert.Equal(t, map[string]string{"a.txt": "a\n", "one": "1\n"}, treeFiles(t, tx.Store(), fc.Tree))
	assert.Equal(t, orig.Tree, sc.Tree)
	assert.Equal(t, op.Normal(second), tx.View().Bookmark("topic"))

	head := only(t, tx.View().Heads)
	assert.Equal(t, []store.CommitID{second}, readCommit(t, tx, head).Parents)
}

func TestNewWorkingCopyAndEdit(t *testing.T) {
	r := initRepo(t, config.BackendFS)
	ctx := context.Background()
	g := newGraph(t, r)
	g.commit("a")
	g.commit("b")
	_, tx := g.done()

	wc, err := tx.NewWorkingCopy(ctx, op.DefaultWorkspace, g.list("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, wc, tx.View().WorkspaceCheckouts[op.DefaultWorkspace])
	assert.Equal(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, treeFiles(t, tx.Store(), readCommit(t, tx, wc).Tree))
	empty, err := tx.IsEmpty(ctx, wc)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, tx.Edit(op.DefaultWorkspace, g.id("a")))
	assert.Equal(t, g.id("a"), tx.View().WorkspaceCheckouts[op.DefaultWorkspace])
	assert.ErrorIs(t, tx.Edit(op.DefaultWorkspace, r.Store().RootCommitID()), ErrImmutableCommit)

	require.NoError(t, tx.RemoveWorkspaceCheckout(op.DefaultWorkspace))
	assert.NotContains(t, tx.View().WorkspaceCheckouts, op.DefaultWorkspace)
}

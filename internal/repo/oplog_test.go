package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

func TestRestoreOperation_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		g := newGraph(t, r0)
		g.commit("a")
		require.NoError(t, g.tx.SetBookmark("main", op.Normal(g.id("a"))))
		require.NoError(t, g.tx.SetWorkspaceCheckout(op.DefaultWorkspace, g.id("a")))
		r1, tx := g.done()

		_, err := tx.Abandon(ctx, g.id("a"))
		require.NoError(t, err)
		require.NoError(t, tx.SetTag("v1", op.Normal(r0.Store().RootCommitID())))
		r2, err := tx.Commit(ctx)
		require.NoError(t, err)
		require.False(t, r2.View().Equal(r1.View()))

		tx = r2.StartTransaction("restore")
		require.NoError(t, tx.RestoreOperation(ctx, r1.OperationID()))
		r3, err := tx.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, r3.View().Equal(r1.View()))
		assert.Equal(t, []op.OperationID{r2.OperationID()}, r3.Operation().Parents)
	})
}

func TestUndoOperation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		root := r0.Store().RootCommitID()

		g := newGraph(t, r0)
		a := g.commit("a")
		require.NoError(t, g.tx.SetBookmark("main", op.Normal(a)))
		r1, tx := g.done()

		require.NoError(t, tx.SetBookmark("other", op.Normal(root)))
		r2, err := tx.Commit(ctx)
		require.NoError(t, err)

		tx = r2.StartTransaction("undo")
		require.NoError(t, tx.UndoOperation(ctx, r1.OperationID()))
		r3, err := tx.Commit(ctx)
		require.NoError(t, err)

		v := r3.View()
		assert.Equal(t, []store.CommitID{root}, v.Heads)
		assert.True(t, v.Bookmark("main").IsAbsent())
		assert.Equal(t, op.Normal(root), v.Bookmark("other"))

		tx = r3.StartTransaction("undo init")
		assert.Error(t, tx.UndoOperation(ctx, r0.OperationID()))
	})
}

func TestOperationLog(t *testing.T) {
	r0 := initRepo(t, backends[0])
	ctx := context.Background()
	r := r0
	for _, name := range []string{"first", "second", "third"} {
		tx := r.StartTransaction(name)
		require.NoError(t, tx.SetBookmark(name, op.Normal(r.Store().RootCommitID())))
		var err error
		r, err = tx.Commit(ctx)
		require.NoError(t, err)
	}

	log, err := r.OperationLog(ctx, 0)
	require.NoError(t, err)
	var descs []string
	for _, e := range log {
		descs = append(descs, e.Metadata.Description)
	}
	assert.Equal(t, []string{"third", "second", "first", "initialize repo"}, descs)

	log, err = r.OperationLog(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestCheckWorkingCopyFreshness(t *testing.T) {
	r0 := initRepo(t, backends[1])
	ctx := context.Background()
	tx := r0.StartTransaction("bookmark")
	require.NoError(t, tx.SetBookmark("main", op.Normal(r0.Store().RootCommitID())))
	r1, err := tx.Commit(ctx)
	require.NoError(t, err)

	assert.NoError(t, r1.CheckWorkingCopyFreshness(ctx, r0.OperationID()))
	assert.NoError(t, r1.CheckWorkingCopyFreshness(ctx, r1.OperationID()))

	err = r0.CheckWorkingCopyFreshness(ctx, r1.OperationID())
	var stale *StaleWorkingCopyError
	require.ErrorAs(t, err, &stale)
	assert.ErrorIs(t, err, ErrStaleWorkingCopy)
	assert.Equal(t, r1.OperationID(), stale.WorkingCopyOp)
	assert.Equal(t, r0.OperationID(), stale.RepoOp)
	assert.Contains(t, err.Error(), "Hint:")
}

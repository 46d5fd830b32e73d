package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

func TestConcurrentBookmarkMoves(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		root := r0.Store().RootCommitID()

		txX := r0.StartTransaction("move main to x")
		txY := r0.StartTransaction("move main to y")
		x, err := txX.New(ctx, []store.CommitID{root}, "x", map[string][]byte{"f": []byte("x\n")})
		require.NoError(t, err)
		require.NoError(t, txX.SetBookmark("main", op.Normal(x)))
		y, err := txY.New(ctx, []store.CommitID{root}, "y", map[string][]byte{"f": []byte("y\n")})
		require.NoError(t, err)
		require.NoError(t, txY.SetBookmark("main", op.Normal(y)))

		rx, err := txX.Commit(ctx)
		require.NoError(t, err)
		ry, err := txY.Commit(ctx)
		var cm *ConcurrentModificationError
		require.ErrorAs(t, err, &cm)
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.Equal(t, ry.OperationID(), cm.Operation)
		assert.Len(t, cm.Heads, 2)

		heads, err := r0.OperationHeads(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []op.OperationID{rx.OperationID(), ry.OperationID()}, heads)

		merged, err := r0.Reload(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []op.OperationID{rx.OperationID(), ry.OperationID()}, merged.Operation().Parents)
		assert.Equal(t, "resolve concurrent operations", merged.Operation().Metadata.Description)

		main := merged.View().Bookmark("main")
		assert.True(t, main.IsConflicted())
		assert.ElementsMatch(t, []store.CommitID{x, y}, main.AddedIDs())
		assert.ElementsMatch(t, []store.CommitID{x, y}, merged.View().Heads)
		assert.Equal(t, 1.0, testutil.ToFloat64(r0.Metrics().OpHeadMerges))
		assert.Equal(t, 1.0, testutil.ToFloat64(r0.Metrics().ConcurrentModification))

		heads, err = r0.OperationHeads(ctx)
		require.NoError(t, err)
		assert.Equal(t, []op.OperationID{merged.OperationID()}, heads)

		// A resolved repo loads without merging again.
		again, err := merged.Reload(ctx)
		require.NoError(t, err)
		assert.Equal(t, merged.OperationID(), again.OperationID())
		assert.Equal(t, 1.0, testutil.ToFloat64(r0.Metrics().OpHeadMerges))
	})
}

func TestConcurrentTransactions(t *testing.T) {
	const n = 4
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		root := r0.Store().RootCommitID()

		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("writer %d", i)
				tx := r0.StartTransaction(name)
				if _, err := tx.New(ctx, []store.CommitID{root}, name, map[string][]byte{name: []byte(name + "\n")}); err != nil {
					errs[i] = err
					return
				}
				_, errs[i] = tx.Commit(ctx)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}
		assert.Equal(t, 1, succeeded)

		merged, err := r0.Reload(ctx)
		require.NoError(t, err)
		assert.Len(t, merged.Operation().Parents, n)
		assert.Len(t, merged.View().Heads, n)
	})
}

func TestConcurrentRewriteIsInferred(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		g := newGraph(t, r0)
		b := g.commit("b")
		r1, txA := g.done()
		txB := r1.StartTransaction("add d")

		b2, err := txA.Describe(ctx, b, "b described")
		require.NoError(t, err)
		_, err = txA.Commit(ctx)
		require.NoError(t, err)

		d, err := txB.New(ctx, []store.CommitID{b}, "d", map[string][]byte{"d.txt": []byte("d\n")})
		require.NoError(t, err)
		_, err = txB.Commit(ctx)
		require.ErrorIs(t, err, ErrConcurrentModification)

		merged, err := r1.Reload(ctx)
		require.NoError(t, err)
		head := only(t, merged.View().Heads)
		assert.NotEqual(t, d, head)
		c, err := merged.Commit(ctx, head)
		require.NoError(t, err)
		assert.Equal(t, "d", c.Description)
		assert.Equal(t, []store.CommitID{b2}, c.Parents)
		assert.Equal(t, []store.CommitID{d}, c.Predecessors)
		assert.False(t, merged.Visible().Contains(b))
	})
}

func TestConcurrentAbandonIsInferred(t *testing.T) {
	r0 := initRepo(t, backends[0])
	ctx := context.Background()
	g := newGraph(t, r0)
	a := g.commit("a")
	b := g.commit("b", "a")
	r1, txA := g.done()
	txB := r1.StartTransaction("add c")

	_, err := txA.Abandon(ctx, b)
	require.NoError(t, err)
	_, err = txA.Commit(ctx)
	require.NoError(t, err)

	_, err = txB.New(ctx, []store.CommitID{b}, "c", map[string][]byte{"c.txt": []byte("c\n")})
	require.NoError(t, err)
	_, err = txB.Commit(ctx)
	require.ErrorIs(t, err, ErrConcurrentModification)

	merged, err := r1.Reload(ctx)
	require.NoError(t, err)
	head := only(t, merged.View().Heads)
	c, err := merged.Commit(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, "c", c.Description)
	assert.Equal(t, []store.CommitID{a}, c.Parents)
}

func TestStaleAncestorHeadsAreDropped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r0 *ReadonlyRepo) {
		ctx := context.Background()
		root := r0.Store().RootCommitID()
		commit := func(r *ReadonlyRepo, name string) (*ReadonlyRepo, error) {
			tx := r.StartTransaction(name)
			if err := tx.SetBookmark(name, op.Normal(root)); err != nil {
				return nil, err
			}
			return tx.Commit(ctx)
		}
		// A writer that died after writing its update leaves its parent behind.
		addHead := func(id op.OperationID) {
			_, err := r0.s.heads.Update(ctx, nil, id)
			require.NoError(t, err)
		}

		r1, err := commit(r0, "first")
		require.NoError(t, err)
		r2, err := commit(r1, "second")
		require.NoError(t, err)
		addHead(r1.OperationID())

		loaded, err := r0.Reload(ctx)
		require.NoError(t, err)
		assert.Equal(t, r2.OperationID(), loaded.OperationID())
		assert.Equal(t, 0.0, testutil.ToFloat64(r0.Metrics().OpHeadMerges))
		heads, err := r0.OperationHeads(ctx)
		require.NoError(t, err)
		assert.Equal(t, []op.OperationID{r2.OperationID()}, heads)

		// Concurrent with second; first is an ancestor of both.
		addHead(r1.OperationID())
		rx, err := commit(r1, "concurrent")
		require.ErrorIs(t, err, ErrConcurrentModification)
		addHead(r1.OperationID())

		merged, err := r0.Reload(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []op.OperationID{r2.OperationID(), rx.OperationID()}, merged.Operation().Parents)
		assert.True(t, merged.View().Bookmark("second").IsPresent())
		assert.True(t, merged.View().Bookmark("concurrent").IsPresent())
	})
}

package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/mxvc/internal/config"
	"github.com/systemshift/mxvc/internal/logging"
	"github.com/systemshift/mxvc/internal/op"
)

func TestMutate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := testSettings(config.BackendFS)
	r0 := initRepoAt(t, dir, s)
	root := r0.Store().RootCommitID()

	r1, err := Mutate(ctx, dir, s, "set main", func(_ context.Context, tx *Transaction) error {
		return tx.SetBookmark("main", op.Normal(root))
	}, WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer r1.Close()
	assert.Equal(t, "set main", r1.Operation().Metadata.Description)
	assert.Equal(t, []op.OperationID{r0.OperationID()}, r1.Operation().Parents)

	boom := errors.New("boom")
	_, err = r1.Mutate(ctx, "fails", func(context.Context, *Transaction) error { return boom })
	assert.ErrorIs(t, err, boom)
	heads, err := r1.OperationHeads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []op.OperationID{r1.OperationID()}, heads)

	// r0 is stale now; the commit is merged with r1's on reload.
	r2, err := r0.Mutate(ctx, "set other", func(_ context.Context, tx *Transaction) error {
		return tx.SetBookmark("other", op.Normal(root))
	})
	require.NoError(t, err)
	assert.Len(t, r2.Operation().Parents, 2)
	assert.Equal(t, op.Normal(root), r2.View().Bookmark("main"))
	assert.Equal(t, op.Normal(root), r2.View().Bookmark("other"))
}

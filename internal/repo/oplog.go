package repo

import (
	"context"
	"fmt"

	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/op"
)

// OperationLog returns up to limit operations reachable from the loaded
// one, newest first. A limit of zero returns all of them.
func (r *ReadonlyRepo) OperationLog(ctx context.Context, limit int) ([]op.Entry, error) {
	return r.s.walker.Log(ctx, []op.OperationID{r.opID}, limit)
}

// OperationHeads lists the current operation heads without resolving them.
func (r *ReadonlyRepo) OperationHeads(ctx context.Context) ([]op.OperationID, error) {
	return r.s.heads.Heads(ctx)
}

// RestoreOperation stages the view recorded by id.
func (tx *Transaction) RestoreOperation(ctx context.Context, id op.OperationID) error {
	v, err := tx.repo.s.viewAt(ctx, id)
	if err != nil {
		return err
	}
	return tx.SetView(ctx, v)
}

// UndoOperation reverts the changes id made, keeping everything done
// since.
func (tx *Transaction) UndoOperation(ctx context.Context, id op.OperationID) error {
	s := tx.repo.s
	o, err := s.ops.ReadOperation(ctx, id)
	if err != nil {
		return err
	}
	switch len(o.Parents) {
	case 0:
		return fmt.Errorf("cannot undo repo initialization")
	case 1:
	default:
		return fmt.Errorf("cannot undo a merge operation")
	}
	undone, err := s.ops.ReadView(ctx, o.View)
	if err != nil {
		return err
	}
	parent, err := s.viewAt(ctx, o.Parents[0])
	if err != nil {
		return err
	}
	if err := tx.checkOpen(); err != nil {
		return err
	}
	ix, err := index.Build(ctx, s.store, s.indexRoots(undone, tx.view, parent))
	if err != nil {
		return err
	}
	tx.index = ix
	tx.view = op.MergeViews(undone, tx.view, parent, ix.HeadsAmong)
	return nil
}

// CheckWorkingCopyFreshness fails with a *StaleWorkingCopyError unless the
// working copy was last updated at the loaded operation or one of its
// ancestors.
func (r *ReadonlyRepo) CheckWorkingCopyFreshness(ctx context.Context, wcOp op.OperationID) error {
	ok, err := r.s.walker.IsAncestor(ctx, wcOp, r.opID)
	if err != nil {
		return err
	}
	if !ok {
		return &StaleWorkingCopyError{WorkingCopyOp: wcOp, RepoOp: r.opID}
	}
	return nil
}

package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

var (
	// ErrConcurrentModification: the operation head moved while the
	// transaction was open. The operation is persisted as an extra head;
	// reloading merges it.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrRefusedLoop: a rewrite would make a commit its own ancestor.
	ErrRefusedLoop = errors.New("refusing to create a loop")
	// ErrImmutableCommit: the root commit or a protected commit would be
	// rewritten.
	ErrImmutableCommit = errors.New("commit is immutable")
	// ErrStaleWorkingCopy: the working copy was last updated at an
	// operation that is not an ancestor of the loaded one.
	ErrStaleWorkingCopy = errors.New("working copy is stale")
	// ErrTransactionClosed: the transaction was already committed or
	// discarded.
	ErrTransactionClosed = errors.New("transaction is closed")
	// ErrNothingChanged: the transaction had no effect.
	ErrNothingChanged = errors.New("nothing changed")
	// ErrNoParents is returned for a new commit without parents.
	ErrNoParents = store.ErrNoParents

	errUnknownCommit = errors.New("commit not in index")
)

// ConcurrentModificationError carries the operation that was written and
// the heads found after the swap.
type ConcurrentModificationError struct {
	Operation op.OperationID
	Heads     []op.OperationID
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification: operation %s was committed alongside %d other head(s)",
		e.Operation.Short(), len(e.Heads)-1)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// RefusedLoopError names the commit that would close a cycle.
type RefusedLoopError struct {
	Commit store.CommitID
	// Onto is set when the destination is the commit itself or one of its
	// descendants.
	Onto   store.CommitID
	Reason string
}

func (e *RefusedLoopError) Error() string {
	switch e.Reason {
	case loopOntoItself:
		return fmt.Sprintf("Cannot rebase %s onto itself", e.Commit.Short())
	case loopOntoDescendant:
		return fmt.Sprintf("Cannot rebase %s onto descendant %s", e.Commit.Short(), e.Onto.Short())
	}
	return fmt.Sprintf("Refusing to create a loop: commit %s would be both an ancestor and a descendant of the rebased commits",
		e.Commit.Short())
}

func (e *RefusedLoopError) Unwrap() error { return ErrRefusedLoop }

const (
	loopOntoItself     = "onto itself"
	loopOntoDescendant = "onto descendant"
	loopAncestor       = "ancestor and descendant"
)

// ImmutableCommitError names the protected commit.
type ImmutableCommitError struct {
	Commit store.CommitID
	Root   bool
}

func (e *ImmutableCommitError) Error() string {
	if e.Root {
		return "The root commit is immutable"
	}
	return fmt.Sprintf("Commit %s is immutable", e.Commit.Short())
}

func (e *ImmutableCommitError) Unwrap() error { return ErrImmutableCommit }

// StaleWorkingCopyError reports the operations involved and how to recover.
type StaleWorkingCopyError struct {
	WorkingCopyOp op.OperationID
	RepoOp        op.OperationID
}

func (e *StaleWorkingCopyError) Error() string {
	return strings.Join([]string{
		fmt.Sprintf("The working copy is stale (not updated since operation %s)", e.WorkingCopyOp.Short()),
		fmt.Sprintf("Hint: the repository is at operation %s; update the working copy to it explicitly", e.RepoOp.Short()),
	}, "\n")
}

func (e *StaleWorkingCopyError) Unwrap() error { return ErrStaleWorkingCopy }

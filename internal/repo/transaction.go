package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

// replacement is what a rewritten or abandoned commit maps to.
type replacement struct {
	ids       []store.CommitID
	abandoned bool
}

// Transaction stages changes to a view and commits them as one operation.
// It is not safe for concurrent use.
type Transaction struct {
	repo  *ReadonlyRepo
	view  *op.View
	index *index.Index
	log   logrus.FieldLogger

	description string
	start       time.Time
	tags        map[string]string

	// replaced maps every commit rewritten or abandoned in this
	// transaction; pending lists those whose descendants, refs and
	// workspaces have not been updated yet.
	replaced map[store.CommitID]replacement
	pending  []store.CommitID

	immutable index.CommitSet
	closed    bool
}

// StartTransaction snapshots the repo's view. Nothing is persisted until
// Commit.
func (r *ReadonlyRepo) StartTransaction(description string) *Transaction {
	tx := &Transaction{
		repo:        r,
		view:        r.view.Clone(),
		index:       r.index.Clone(),
		log:         r.s.log.WithField("tx", description),
		description: description,
		start:       store.Now(),
		tags:        map[string]string{},
		replaced:    map[store.CommitID]replacement{},
	}
	tx.computeImmutable()
	return tx
}

// computeImmutable collects the root commit and every ancestor of the
// configured immutable bookmarks.
func (tx *Transaction) computeImmutable() {
	var roots []store.CommitID
	for _, name := range tx.repo.s.settings.ImmutableBookmarks {
		roots = append(roots, tx.view.Bookmark(name).AddedIDs()...)
	}
	tx.immutable = tx.index.Ancestors(roots...)
	tx.immutable.Add(tx.repo.s.store.RootCommitID())
}

// Base is the repo the transaction started from.
func (tx *Transaction) Base() *ReadonlyRepo { return tx.repo }

// View returns a copy of the staged view.
func (tx *Transaction) View() *op.View { return tx.view.Clone() }

// Index covers the base view plus every commit written in the transaction.
func (tx *Transaction) Index() *index.Index { return tx.index }

// Store gives access to commits and trees.
func (tx *Transaction) Store() *store.Store { return tx.repo.s.store }

// SetMetadataTag records a key/value pair on the operation.
func (tx *Transaction) SetMetadataTag(key, value string) { tx.tags[key] = value }

// Visible returns the commits reachable from the staged heads.
func (tx *Transaction) Visible() index.CommitSet {
	return tx.index.Ancestors(tx.view.Heads...)
}

func (tx *Transaction) checkOpen() error {
	if tx.closed {
		return ErrTransactionClosed
	}
	return nil
}

// IsImmutable reports whether id may not be rewritten.
func (tx *Transaction) IsImmutable(id store.CommitID) bool {
	return tx.immutable.Contains(id)
}

func (tx *Transaction) checkMutable(id store.CommitID) error {
	if !tx.IsImmutable(id) {
		return nil
	}
	return &ImmutableCommitError{Commit: id, Root: id == tx.repo.s.store.RootCommitID()}
}

func (tx *Transaction) signature() store.Signature {
	s := tx.repo.s.settings
	return store.NewSignature(s.UserName, s.UserEmail)
}

// CommitBuilder collects the fields of a new or rewritten commit.
type CommitBuilder struct {
	tx     *Transaction
	commit *store.Commit
	old    store.CommitID
	err    error
}

// NewCommit starts a commit with a fresh change id.
func (tx *Transaction) NewCommit(parents []store.CommitID, tree store.TreeID) *CommitBuilder {
	sig := tx.signature()
	return &CommitBuilder{tx: tx, commit: &store.Commit{
		Parents:   slices.Clone(parents),
		Tree:      tree,
		ChangeID:  store.NewChangeID(),
		Author:    sig,
		Committer: sig,
	}}
}

// RewriteCommit starts a replacement for id carrying its change id, author
// and description. Writing the builder records the rewrite.
func (tx *Transaction) RewriteCommit(ctx context.Context, id store.CommitID) *CommitBuilder {
	b := &CommitBuilder{tx: tx, old: id}
	if err := tx.checkMutable(id); err != nil {
		b.err = err
		return b
	}
	c, err := tx.Store().ReadCommit(ctx, id)
	if err != nil {
		b.err = err
		return b
	}
	b.commit = c.Clone()
	b.commit.Predecessors = []store.CommitID{id}
	b.commit.Signer, b.commit.Sig = "", ""
	return b
}

// SetParents replaces the parent list.
func (b *CommitBuilder) SetParents(parents []store.CommitID) *CommitBuilder {
	if b.commit != nil {
		b.commit.Parents = slices.Clone(parents)
	}
	return b
}

// SetTree replaces the tree.
func (b *CommitBuilder) SetTree(tree store.TreeID) *CommitBuilder {
	if b.commit != nil {
		b.commit.Tree = tree
	}
	return b
}

// SetDescription replaces the description.
func (b *CommitBuilder) SetDescription(desc string) *CommitBuilder {
	if b.commit != nil {
		b.commit.Description = desc
	}
	return b
}

// SetAuthor replaces the author.
func (b *CommitBuilder) SetAuthor(sig store.Signature) *CommitBuilder {
	if b.commit != nil {
		b.commit.Author = sig
	}
	return b
}

// SetChangeID replaces the change id.
func (b *CommitBuilder) SetChangeID(id store.ChangeID) *CommitBuilder {
	if b.commit != nil {
		b.commit.ChangeID = id
	}
	return b
}

// SetPredecessors replaces the commits this one is recorded as replacing.
func (b *CommitBuilder) SetPredecessors(ids []store.CommitID) *CommitBuilder {
	if b.commit != nil {
		b.commit.Predecessors = slices.Clone(ids)
	}
	return b
}

// Write stores the commit, makes it visible and, for a rewrite, records
// the replacement so descendants and refs follow.
func (b *CommitBuilder) Write(ctx context.Context) (store.CommitID, error) {
	tx := b.tx
	if err := tx.checkOpen(); err != nil {
		return "", err
	}
	if b.err != nil {
		return "", b.err
	}
	if len(b.commit.Parents) == 0 {
		return "", ErrNoParents
	}
	for _, p := range b.commit.Parents {
		if !tx.index.Has(p) {
			return "", fmt.Errorf("parent %s: %w", p.Short(), errUnknownCommit)
		}
	}
	b.commit.Committer = tx.signature()
	id, err := tx.Store().WriteCommit(ctx, b.commit)
	if err != nil {
		return "", err
	}
	c, err := tx.Store().ReadCommit(ctx, id)
	if err != nil {
		return "", err
	}
	if err := tx.index.Add(id, c); err != nil {
		return "", err
	}
	tx.addNewHead(id)
	if b.old != "" && b.old != id {
		tx.recordRewrite(b.old, id)
	}
	return id, nil
}

// addNewHead adds a commit nothing descends from yet.
func (tx *Transaction) addNewHead(id store.CommitID) {
	parents := tx.index.Parents(id)
	heads := slices.DeleteFunc(slices.Clone(tx.view.Heads), func(h store.CommitID) bool {
		return slices.Contains(parents, h)
	})
	tx.view.Heads = append(heads, id)
	slices.Sort(tx.view.Heads)
	tx.view.Heads = slices.Compact(tx.view.Heads)
}

func (tx *Transaction) recordRewrite(old, next store.CommitID) {
	tx.replaced[old] = replacement{ids: []store.CommitID{next}}
	tx.pending = append(tx.pending, old)
}

// recordDivergentRewrite adds next as one more successor of old.
func (tx *Transaction) recordDivergentRewrite(old, next store.CommitID) {
	r := tx.replaced[old]
	if r.abandoned {
		r = replacement{}
	}
	if !slices.Contains(r.ids, next) {
		r.ids = append(r.ids, next)
	}
	tx.replaced[old] = r
	tx.pending = append(tx.pending, old)
}

func (tx *Transaction) recordAbandon(old store.CommitID, into []store.CommitID) {
	tx.replaced[old] = replacement{ids: slices.Clone(into), abandoned: true}
	tx.pending = append(tx.pending, old)
}

// SetRewritten records that next replaces old.
func (tx *Transaction) SetRewritten(old, next store.CommitID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := tx.checkMutable(old); err != nil {
		return err
	}
	if !tx.index.Has(old) || !tx.index.Has(next) {
		return errUnknownCommit
	}
	tx.recordRewrite(old, next)
	return nil
}

// AbandonCommit hides id. Its children are moved onto its parents when
// descendants are rebased.
func (tx *Transaction) AbandonCommit(id store.CommitID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := tx.checkMutable(id); err != nil {
		return err
	}
	if !tx.index.Has(id) {
		return fmt.Errorf("abandon %s: %w", id.Short(), errUnknownCommit)
	}
	tx.recordAbandon(id, tx.index.Parents(id))
	return nil
}

// resolve follows replacements to the commits now standing in for id. A
// divergent rewrite yields every successor when expand is set, otherwise
// id itself.
func (tx *Transaction) resolve(id store.CommitID, expand bool) []store.CommitID {
	r, ok := tx.replaced[id]
	if !ok {
		return []store.CommitID{id}
	}
	if !r.abandoned && len(r.ids) > 1 && !expand {
		return []store.CommitID{id}
	}
	var out []store.CommitID
	for _, next := range r.ids {
		for _, x := range tx.resolve(next, expand) {
			if !slices.Contains(out, x) {
				out = append(out, x)
			}
		}
	}
	return out
}

// SetBookmark sets a local bookmark; an absent target deletes it.
func (tx *Transaction) SetBookmark(name string, t op.RefTarget) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.SetBookmark(name, t)
	return nil
}

// SetRemoteBookmark sets a remote bookmark.
func (tx *Transaction) SetRemoteBookmark(remote, name string, ref op.RemoteRef) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.SetRemoteBookmark(remote, name, ref)
	return nil
}

// SetTag sets a tag.
func (tx *Transaction) SetTag(name string, t op.RefTarget) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.SetTag(name, t)
	return nil
}

// SetGitRef mirrors an external ref.
func (tx *Transaction) SetGitRef(name string, t op.RefTarget) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.SetGitRef(name, t)
	return nil
}

// SetGitHead mirrors the external HEAD.
func (tx *Transaction) SetGitHead(t op.RefTarget) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.GitHead = t
	return nil
}

// SetWorkspaceCheckout points ws at id.
func (tx *Transaction) SetWorkspaceCheckout(ws string, id store.CommitID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !tx.index.Has(id) {
		return fmt.Errorf("checkout %s: %w", id.Short(), errUnknownCommit)
	}
	tx.view.SetWorkspaceCheckout(ws, id)
	tx.addHead(id)
	return nil
}

// RemoveWorkspaceCheckout forgets ws.
func (tx *Transaction) RemoveWorkspaceCheckout(ws string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.view.SetWorkspaceCheckout(ws, "")
	return nil
}

// AddHead makes id visible if it is not already.
func (tx *Transaction) AddHead(id store.CommitID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.addHead(id)
	return nil
}

func (tx *Transaction) addHead(id store.CommitID) {
	tx.view.Heads = tx.index.HeadsAmong(append(slices.Clone(tx.view.Heads), id))
}

// RemoveHead hides id, leaving its parents visible.
func (tx *Transaction) RemoveHead(id store.CommitID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !tx.view.HasHead(id) {
		return nil
	}
	heads := slices.DeleteFunc(slices.Clone(tx.view.Heads), func(h store.CommitID) bool { return h == id })
	tx.view.Heads = tx.index.HeadsAmong(append(heads, tx.index.Parents(id)...))
	return nil
}

// SetView replaces the staged view, indexing any commits it references.
func (tx *Transaction) SetView(ctx context.Context, v *op.View) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	ix, err := index.Build(ctx, tx.Store(), tx.repo.s.indexRoots(v, tx.view))
	if err != nil {
		return err
	}
	tx.index = ix
	tx.view = v.Clone()
	tx.view.Normalize()
	tx.replaced = map[store.CommitID]replacement{}
	tx.pending = nil
	return nil
}

// HasChanges reports whether the staged view differs from the base view.
func (tx *Transaction) HasChanges() bool {
	return !tx.view.Equal(tx.repo.view)
}

// Discard abandons the transaction. Nothing was persisted except
// unreferenced objects.
func (tx *Transaction) Discard() {
	tx.closed = true
}

// Commit rebases pending descendants, writes the view and operation, and
// swaps the operation head. With no changes it returns the base repo and
// writes nothing.
//
// If another operation became a head in the meantime, the new operation
// is kept as an additional head and the error satisfies
// errors.Is(err, ErrConcurrentModification); the returned repo is still
// valid. Reloading merges the heads.
func (tx *Transaction) Commit(ctx context.Context) (*ReadonlyRepo, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	if len(tx.pending) > 0 {
		if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
			return nil, err
		}
	}
	return tx.commit(ctx, []op.OperationID{tx.repo.opID})
}

func (tx *Transaction) commit(ctx context.Context, parents []op.OperationID) (*ReadonlyRepo, error) {
	tx.closed = true
	if len(parents) == 1 && !tx.HasChanges() {
		return tx.repo, nil
	}
	s := tx.repo.s
	began := time.Now()

	tx.view.Normalize()
	viewID, err := s.ops.WriteView(ctx, tx.view)
	if err != nil {
		return nil, err
	}
	o := &op.Operation{
		Parents: parents,
		View:    viewID,
		Metadata: op.Metadata{
			Description: tx.description,
			StartTime:   tx.start,
			EndTime:     store.Now(),
			Hostname:    s.settings.Hostname,
			Username:    s.settings.Username,
			Tags:        maps.Clone(tx.tags),
		},
	}
	if len(o.Metadata.Tags) == 0 {
		o.Metadata.Tags = nil
	}
	opID, err := s.ops.WriteOperation(ctx, o)
	if err != nil {
		return nil, err
	}
	res, err := s.heads.Update(ctx, parents, opID)
	if err != nil {
		return nil, err
	}
	s.metrics.OperationsCommitted.Inc()
	s.metrics.CommitDuration.Observe(time.Since(began).Seconds())

	stored, err := s.ops.ReadOperation(ctx, opID)
	if err != nil {
		return nil, err
	}
	next := &ReadonlyRepo{s: s, opID: opID, operation: stored, view: tx.view.Clone(), index: tx.index}
	log := tx.log.WithField("op", opID.Short())
	if !res.Swapped {
		s.metrics.ConcurrentModification.Inc()
		log.WithField("heads", len(res.Heads)).Warn("operation head moved during transaction")
		return next, &ConcurrentModificationError{Operation: opID, Heads: res.Heads}
	}
	log.Debug("committed operation")
	return next, nil
}

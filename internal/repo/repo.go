// Package repo ties the object store, operation log and index together
// into loadable repositories and transactions over them.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/mxvc/internal/config"
	"github.com/systemshift/mxvc/internal/dag"
	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/logging"
	"github.com/systemshift/mxvc/internal/metrics"
	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/store"
)

// DirName is the repository metadata directory.
const DirName = ".mxvc"

// ErrNoRepository is returned by Load when path holds no repository.
var ErrNoRepository = errors.New("no repository found")

// Option configures how a repository is opened.
type Option func(*options)

type options struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// WithLogger sets the logger; the default is the shared "repo" logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the collectors updated by transactions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// storage is shared by every ReadonlyRepo loaded from the same directory.
type storage struct {
	path     string
	settings *config.Settings
	log      logrus.FieldLogger
	metrics  *metrics.Metrics

	store  *store.Store
	ops    *op.Store
	heads  op.HeadsStore
	walker *op.Walker
}

func openStorage(ctx context.Context, path string, settings *config.Settings, create bool, opts []Option) (*storage, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.For("repo")
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if settings == nil {
		settings = config.Default()
	}

	dir := filepath.Join(path, DirName)
	backendFile := filepath.Join(dir, "backend")
	backend := settings.Backend
	if create {
		if _, err := os.Stat(dir); err == nil {
			return nil, fmt.Errorf("repository already exists at %s", path)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
		if err := dag.SafeWrite(backendFile, []byte(backend+"\n"), 0644); err != nil {
			return nil, fmt.Errorf("write backend: %w", err)
		}
	} else {
		data, err := os.ReadFile(backendFile)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoRepository, path)
		}
		if err != nil {
			return nil, fmt.Errorf("read backend: %w", err)
		}
		backend = strings.TrimSpace(string(data))
	}

	var (
		objects *dag.ObjectStore
		heads   op.HeadsStore
	)
	switch backend {
	case config.BackendFS:
		b, err := dag.NewFileBackend(filepath.Join(dir, "objects"))
		if err != nil {
			return nil, err
		}
		objects = dag.NewObjectStore(b)
		fh, err := op.NewFileHeadsStore(filepath.Join(dir, "op_heads"), settings.LockTimeout)
		if err != nil {
			return nil, err
		}
		heads = fh
	case config.BackendBolt:
		b, err := dag.OpenBoltBackend(filepath.Join(dir, "store.db"), settings.LockTimeout)
		if err != nil {
			return nil, err
		}
		objects = dag.NewObjectStore(b)
		bh, err := op.NewBoltHeadsStore(b.DB())
		if err != nil {
			b.Close()
			return nil, err
		}
		heads = bh
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}

	var storeOpts []store.Option
	if settings.SigningEnabled {
		id, created, err := dag.LoadIdentity(settings.IdentityPath)
		if err != nil {
			objects.Close()
			return nil, fmt.Errorf("load signing identity: %w", err)
		}
		if created {
			o.log.WithFields(logrus.Fields{"did": id.DID, "path": settings.IdentityPath}).Info("generated new signing identity")
		}
		storeOpts = append(storeOpts, store.WithSigner(id), store.WithVerify())
	}
	st, err := store.Open(ctx, objects, storeOpts...)
	if err != nil {
		objects.Close()
		return nil, err
	}

	ops := op.NewStore(objects)
	return &storage{
		path:     path,
		settings: settings,
		log:      o.log,
		metrics:  o.metrics,
		store:    st,
		ops:      ops,
		heads:    heads,
		walker:   op.NewWalker(ops),
	}, nil
}

// ReadonlyRepo is the repository as of one operation.
type ReadonlyRepo struct {
	s *storage

	opID      op.OperationID
	operation *op.Operation
	view      *op.View
	index     *index.Index
}

// Init creates a repository at path with the root commit and the root
// operation.
func Init(ctx context.Context, path string, settings *config.Settings, opts ...Option) (*ReadonlyRepo, error) {
	s, err := openStorage(ctx, path, settings, true, opts)
	if err != nil {
		return nil, err
	}

	view := op.NewView(s.store.RootCommitID())
	viewID, err := s.ops.WriteView(ctx, view)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	now := store.Now()
	root := &op.Operation{
		View: viewID,
		Metadata: op.Metadata{
			Description: "initialize repo",
			StartTime:   now,
			EndTime:     now,
			Hostname:    s.settings.Hostname,
			Username:    s.settings.Username,
		},
	}
	opID, err := s.ops.WriteOperation(ctx, root)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	if _, err := s.heads.Update(ctx, nil, opID); err != nil {
		s.store.Close()
		return nil, err
	}
	s.log.WithField("path", path).Debug("initialized repository")
	return s.loadAt(ctx, opID)
}

// Load opens the repository at path at its current operation, merging
// concurrent operation heads first if there are several.
func Load(ctx context.Context, path string, settings *config.Settings, opts ...Option) (*ReadonlyRepo, error) {
	s, err := openStorage(ctx, path, settings, false, opts)
	if err != nil {
		return nil, err
	}
	r, err := s.loadHead(ctx)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	return r, nil
}

// Heads lists the operation heads of the repository at path without
// merging them.
func Heads(ctx context.Context, path string, settings *config.Settings, opts ...Option) ([]op.OperationID, error) {
	s, err := openStorage(ctx, path, settings, false, opts)
	if err != nil {
		return nil, err
	}
	defer s.store.Close()
	return s.heads.Heads(ctx)
}

// indexRoots are the commits an index for v must cover.
func (s *storage) indexRoots(views ...*op.View) []store.CommitID {
	ids := []store.CommitID{s.store.RootCommitID()}
	for _, v := range views {
		ids = append(ids, v.Heads...)
		ids = append(ids, v.ReferencedCommits()...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *storage) loadAt(ctx context.Context, id op.OperationID) (*ReadonlyRepo, error) {
	o, err := s.ops.ReadOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.ops.ReadView(ctx, o.View)
	if err != nil {
		return nil, err
	}
	ix, err := index.Build(ctx, s.store, s.indexRoots(v))
	if err != nil {
		return nil, err
	}
	return &ReadonlyRepo{s: s, opID: id, operation: o, view: v, index: ix}, nil
}

// LoadAt returns the repository as of a historical operation. Heads are
// not resolved.
func (r *ReadonlyRepo) LoadAt(ctx context.Context, id op.OperationID) (*ReadonlyRepo, error) {
	return r.s.loadAt(ctx, id)
}

// Reload loads the current head operation, resolving divergent heads.
func (r *ReadonlyRepo) Reload(ctx context.Context) (*ReadonlyRepo, error) {
	return r.s.loadHead(ctx)
}

// Close releases the storage shared by every repo loaded from this one.
func (r *ReadonlyRepo) Close() error {
	return r.s.store.Close()
}

// Path is the workspace root the repository was opened at.
func (r *ReadonlyRepo) Path() string { return r.s.path }

// OperationID is the operation this repo was loaded at.
func (r *ReadonlyRepo) OperationID() op.OperationID { return r.opID }

// Operation returns the operation record.
func (r *ReadonlyRepo) Operation() *op.Operation { return r.operation }

// View returns a copy of the repo's view.
func (r *ReadonlyRepo) View() *op.View { return r.view.Clone() }

// Index covers every commit reachable from the view.
func (r *ReadonlyRepo) Index() *index.Index { return r.index }

// Store gives access to commits and trees.
func (r *ReadonlyRepo) Store() *store.Store { return r.s.store }

// Settings are the settings the repo was opened with.
func (r *ReadonlyRepo) Settings() *config.Settings { return r.s.settings }

// Metrics are the collectors updated by this repo's transactions.
func (r *ReadonlyRepo) Metrics() *metrics.Metrics { return r.s.metrics }

// Commit reads a commit by id.
func (r *ReadonlyRepo) Commit(ctx context.Context, id store.CommitID) (*store.Commit, error) {
	return r.s.store.ReadCommit(ctx, id)
}

// Visible returns the commits reachable from the view's heads.
func (r *ReadonlyRepo) Visible() index.CommitSet {
	return r.index.Ancestors(r.view.Heads...)
}

// ResolveCommit finds a visible commit by bookmark name, full id, or a
// unique id prefix.
func (r *ReadonlyRepo) ResolveCommit(s string) (store.CommitID, error) {
	if s == "root" {
		return r.s.store.RootCommitID(), nil
	}
	if t := r.view.Bookmark(s); t.IsPresent() {
		id, ok := t.AsNormal()
		if !ok {
			return "", fmt.Errorf("bookmark %q is conflicted", s)
		}
		return id, nil
	}
	if id, ok := r.view.WorkspaceCheckouts[strings.TrimSuffix(s, "@")]; ok && strings.HasSuffix(s, "@") {
		return id, nil
	}
	var matches []store.CommitID
	for _, id := range index.Sorted(r.Visible()) {
		if id.HasShortPrefix(s) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("revision %q: %w", s, dag.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("revision %q is ambiguous (%d commits)", s, len(matches))
}

package repo

import (
	"context"
	"errors"

	"github.com/systemshift/mxvc/internal/config"
)

// MutateFunc stages changes in tx.
type MutateFunc func(ctx context.Context, tx *Transaction) error

// Mutate loads the repo at path, runs fn in a transaction and commits it.
// When another process committed meanwhile, the result is reloaded so both
// operations are merged; the returned repo is the merged one. Errors from
// fn abort without writing an operation.
func Mutate(ctx context.Context, path string, settings *config.Settings, description string, fn MutateFunc, opts ...Option) (*ReadonlyRepo, error) {
	r, err := Load(ctx, path, settings, opts...)
	if err != nil {
		return nil, err
	}
	next, err := r.Mutate(ctx, description, fn)
	if err != nil {
		r.Close()
		return nil, err
	}
	return next, nil
}

// Mutate runs fn in a transaction started from r and commits it.
func (r *ReadonlyRepo) Mutate(ctx context.Context, description string, fn MutateFunc) (*ReadonlyRepo, error) {
	tx := r.StartTransaction(description)
	if err := fn(ctx, tx); err != nil {
		tx.Discard()
		return nil, err
	}
	next, err := tx.Commit(ctx)
	if errors.Is(err, ErrConcurrentModification) {
		r.s.log.WithField("description", description).Info("reloading after concurrent modification")
		return next.Reload(ctx)
	}
	return next, err
}

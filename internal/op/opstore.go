package op

import (
	"context"
	"fmt"
	"sync"

	"github.com/systemshift/mxvc/internal/dag"
)

// Store persists views and operations in the object store.
type Store struct {
	objects *dag.ObjectStore

	views sync.Map // ViewID -> *View
	ops   sync.Map // OperationID -> *Operation
}

// NewStore wraps an object store.
func NewStore(objects *dag.ObjectStore) *Store {
	return &Store{objects: objects}
}

// WriteView normalizes and stores a copy of v.
func (s *Store) WriteView(ctx context.Context, v *View) (ViewID, error) {
	out := v.Clone()
	out.Normalize()
	c, err := s.objects.PutJSON(ctx, out)
	if err != nil {
		return "", fmt.Errorf("write view: %w", err)
	}
	id := ViewID(dag.CIDToFilename(c))
	s.views.Store(id, out)
	return id, nil
}

// ReadView returns a copy of the stored view, so callers may modify it.
func (s *Store) ReadView(ctx context.Context, id ViewID) (*View, error) {
	if v, ok := s.views.Load(id); ok {
		return v.(*View).Clone(), nil
	}
	c, err := dag.ParseCID(string(id))
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read view: %w", err)
	}
	var v View
	if err := dag.DecodeJSON(data, &v); err != nil {
		return nil, fmt.Errorf("decode view %s: %w", id, err)
	}
	v.Normalize()
	s.views.Store(id, &v)
	return v.Clone(), nil
}

// WriteOperation stores an operation.
func (s *Store) WriteOperation(ctx context.Context, o *Operation) (OperationID, error) {
	out := *o
	if out.Parents == nil {
		out.Parents = []OperationID{}
	}
	c, err := s.objects.PutJSON(ctx, &out)
	if err != nil {
		return "", fmt.Errorf("write operation: %w", err)
	}
	id := OperationID(dag.CIDToFilename(c))
	s.ops.Store(id, &out)
	return id, nil
}

// ReadOperation reads an operation. The result is shared and must not be
// modified.
func (s *Store) ReadOperation(ctx context.Context, id OperationID) (*Operation, error) {
	if o, ok := s.ops.Load(id); ok {
		return o.(*Operation), nil
	}
	c, err := dag.ParseCID(string(id))
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read operation: %w", err)
	}
	var o Operation
	if err := dag.DecodeJSON(data, &o); err != nil {
		return nil, fmt.Errorf("decode operation %s: %w", id, err)
	}
	s.ops.Store(id, &o)
	return &o, nil
}

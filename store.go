/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package recallkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/sandbox"
	"github.com/recallkit/recallkit/storage"
)

// Store is the root object of a deployment: it owns the class registry,
// the association graph and the backend chain, and hands out sandboxes.
// A Store is safe for concurrent use; the sandboxes it creates are not.
type Store struct {
	backend storage.Backend

	mu      sync.RWMutex
	classes map[string]*record.Class
	graph   map[string][]assocEdge // undirected association adjacency
}

// assocEdge is one direction of an association in the graph: the class
// on the other end and the descriptor that connects them.
type assocEdge struct {
	to  string
	via *record.Association
}

// New creates a Store over a backend chain.
func New(backend storage.Backend) *Store {
	return &Store{
		backend: backend,
		classes: make(map[string]*record.Class),
		graph:   make(map[string][]assocEdge),
	}
}

// Backend returns the root of the backend chain.
func (s *Store) Backend() storage.Backend { return s.backend }

// RegisterClass adds cls to the registry and propagates registration
// through the whole backend chain. A class must be registered before
// any sandbox operation touches it.
func (s *Store) RegisterClass(cls *record.Class) error {
	s.mu.Lock()
	if _, dup := s.classes[cls.Name()]; dup {
		s.mu.Unlock()
		return errors.NewDefinitionError(cls.Name(), "", "class already registered")
	}
	s.classes[cls.Name()] = cls
	s.mu.Unlock()
	return s.backend.Register(cls)
}

// Class returns the registered class by name, or nil.
func (s *Store) Class(name string) *record.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classes[name]
}

// Classes returns every registered class, in no particular order.
func (s *Store) Classes() []*record.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*record.Class, 0, len(s.classes))
	for _, cls := range s.classes {
		out = append(out, cls)
	}
	return out
}

// Associate declares an association between two registered classes,
// installing the traversal accessors on both and connecting them in the
// association graph.
func (s *Store) Associate(near *record.Class, nearField string, far *record.Class, farField string, card record.Cardinality) (*record.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[near.Name()]; !ok {
		return nil, errors.NewDefinitionError(near.Name(), "", "class is not registered")
	}
	if _, ok := s.classes[far.Name()]; !ok {
		return nil, errors.NewDefinitionError(far.Name(), "", "class is not registered")
	}
	a, err := record.Associate(near, nearField, far, farField, card)
	if err != nil {
		return nil, err
	}
	s.graph[near.Name()] = append(s.graph[near.Name()], assocEdge{to: far.Name(), via: a})
	s.graph[far.Name()] = append(s.graph[far.Name()], assocEdge{to: near.Name(), via: a})
	return a, nil
}

// ShortestPath returns the chain of association descriptors along the
// shortest path from one class to another. A class reaches itself
// through an empty chain; classes with no connecting associations have
// no path.
func (s *Store) ShortestPath(from, to *record.Class) ([]*record.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, goal := from.Name(), to.Name()
	if start == goal {
		return []*record.Association{}, nil
	}
	prev := map[string]assocEdge{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range s.graph[cur] {
			if _, seen := prev[edge.to]; seen {
				continue
			}
			prev[edge.to] = assocEdge{to: cur, via: edge.via}
			if edge.to == goal {
				var path []*record.Association
				for at := goal; at != start; at = prev[at].to {
					path = append([]*record.Association{prev[at].via}, path...)
				}
				return path, nil
			}
			queue = append(queue, edge.to)
		}
	}
	return nil, &errors.NoPathError{From: start, To: goal}
}

// NewSandbox creates a fresh identity-mapped session over the backend
// chain. One sandbox per logical unit of work.
func (s *Store) NewSandbox() *sandbox.Sandbox {
	return sandbox.New(s.backend)
}

// Map reconciles storage structures for cls with the model under the
// given conflict mode: absent storage is created, and discrepancies in
// existing storage are dispatched through the mode. Warnings collected
// under the warn mode are returned.
func (s *Store) Map(ctx context.Context, cls *record.Class, mode errors.Conflicts) ([]errors.StorageWarning, error) {
	h := errors.NewConflictHandler(mode)
	ok, err := s.backend.HasStorage(ctx, cls)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.backend.CreateStorage(ctx, cls, h); err != nil {
			return h.Warnings(), err
		}
		return h.Warnings(), nil
	}
	// Existing storage: re-run creation so the backend verifies (or,
	// under repair, reconciles) structure against the model.
	if err := s.backend.CreateStorage(ctx, cls, h); err != nil {
		return h.Warnings(), err
	}
	return h.Warnings(), nil
}

// MapAll maps every registered class. Under the error mode the first
// conflict aborts; under warn the batches of all classes are combined.
func (s *Store) MapAll(ctx context.Context, mode errors.Conflicts) ([]errors.StorageWarning, error) {
	var all []errors.StorageWarning
	for _, cls := range s.Classes() {
		warnings, err := s.Map(ctx, cls, mode)
		all = append(all, warnings...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// Unmap drops the storage structures for cls under the given mode.
func (s *Store) Unmap(ctx context.Context, cls *record.Class, mode errors.Conflicts) ([]errors.StorageWarning, error) {
	h := errors.NewConflictHandler(mode)
	if err := s.backend.DropStorage(ctx, cls, h); err != nil {
		return h.Warnings(), err
	}
	return h.Warnings(), nil
}

// Shutdown releases the backend chain. The store is unusable afterwards.
func (s *Store) Shutdown(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("store already shut down")
	}
	err := s.backend.Shutdown(ctx)
	s.backend = nil
	return err
}

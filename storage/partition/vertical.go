/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package partition routes classes to different stores behind one
// Backend.
//
// A Vertical node owns a set of named stores and a class-to-stores map.
// Schema operations fan out to every store mapped for the class; data
// operations route to the first mapped store. Multi-class recalls must
// land entirely inside one store; an explicit per-join override can
// force a tuple of classes onto a named store when the default search
// picks wrong.
package partition

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
)

// Vertical partitions classes across named stores.
type Vertical struct {
	mu       sync.RWMutex
	stores   map[string]storage.Backend
	order    []string            // store registration order, used when searching for a join host
	classmap map[string][]string // class name -> mapped store names, first is the data home
	joins    map[string]string   // join key -> store name override
}

// NewVertical creates an empty partitioner. Stores and class mappings
// must be declared before classes are registered.
func NewVertical() *Vertical {
	return &Vertical{
		stores:   make(map[string]storage.Backend),
		classmap: make(map[string][]string),
		joins:    make(map[string]string),
	}
}

// AddStore attaches a named store. Names must be unique.
func (v *Vertical) AddStore(name string, b storage.Backend) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.stores[name]; dup {
		return fmt.Errorf("partition: store %q already attached", name)
	}
	v.stores[name] = b
	v.order = append(v.order, name)
	return nil
}

// Store returns the named store, or nil.
func (v *Vertical) Store(name string) storage.Backend {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stores[name]
}

// MapClass declares which stores hold the named class. The first store
// is the data home; the rest only participate in schema fan-out and
// join hosting. Every store name must already be attached.
func (v *Vertical) MapClass(class string, stores ...string) error {
	if len(stores) == 0 {
		return fmt.Errorf("partition: class %q mapped to no stores", class)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, name := range stores {
		if _, ok := v.stores[name]; !ok {
			return fmt.Errorf("partition: class %q mapped to unknown store %q", class, name)
		}
	}
	v.classmap[class] = append([]string(nil), stores...)
	return nil
}

// OverrideJoin forces multi-class recalls over exactly these classes
// onto the named store, bypassing the default covering-store search.
func (v *Vertical) OverrideJoin(store string, classes ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.stores[store]; !ok {
		return fmt.Errorf("partition: join override names unknown store %q", store)
	}
	v.joins[joinKey(classes)] = store
	return nil
}

func joinKey(classes []string) string {
	sorted := append([]string(nil), classes...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

// mapped returns the stores holding cls, in mapping order.
func (v *Vertical) mapped(cls *record.Class) ([]storage.Backend, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := v.classmap[cls.Name()]
	if len(names) == 0 {
		return nil, fmt.Errorf("partition: class %q is not mapped to any store", cls.Name())
	}
	out := make([]storage.Backend, len(names))
	for i, name := range names {
		out[i] = v.stores[name]
	}
	return out, nil
}

// home returns the first mapped store, where data operations land.
func (v *Vertical) home(cls *record.Class) (storage.Backend, error) {
	stores, err := v.mapped(cls)
	if err != nil {
		return nil, err
	}
	return stores[0], nil
}

// Register propagates the class to every mapped store.
func (v *Vertical) Register(cls *record.Class) error {
	stores, err := v.mapped(cls)
	if err != nil {
		return err
	}
	for _, s := range stores {
		if err := s.Register(cls); err != nil {
			return err
		}
	}
	return nil
}

// Reserve routes to the class's data home.
func (v *Vertical) Reserve(ctx context.Context, rec *record.Record) error {
	s, err := v.home(rec.Class())
	if err != nil {
		return err
	}
	return s.Reserve(ctx, rec)
}

// Save routes to the class's data home.
func (v *Vertical) Save(ctx context.Context, rec *record.Record) error {
	s, err := v.home(rec.Class())
	if err != nil {
		return err
	}
	return s.Save(ctx, rec)
}

// ForceSave routes to the class's data home.
func (v *Vertical) ForceSave(ctx context.Context, rec *record.Record) error {
	s, err := v.home(rec.Class())
	if err != nil {
		return err
	}
	return storage.ForceSave(ctx, s, rec)
}

// Destroy routes to the class's data home.
func (v *Vertical) Destroy(ctx context.Context, rec *record.Record) error {
	s, err := v.home(rec.Class())
	if err != nil {
		return err
	}
	return s.Destroy(ctx, rec)
}

// Recall routes to the class's data home.
func (v *Vertical) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	s, err := v.home(cls)
	if err != nil {
		return nil, err
	}
	return s.Recall(ctx, cls, e)
}

// Distinct routes to the class's data home.
func (v *Vertical) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	s, err := v.home(cls)
	if err != nil {
		return nil, err
	}
	return s.Distinct(ctx, cls, fields, e)
}

// MultiRecall joins inside a single store covering every class. The
// override table wins; otherwise the first attached store mapped for
// all classes hosts the join. No covering store means the join cannot
// run.
func (v *Vertical) MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	names := make([]string, len(classes))
	for i, cls := range classes {
		names[i] = cls.Name()
	}
	s, err := v.joinHost(names)
	if err != nil {
		return nil, err
	}
	return s.MultiRecall(ctx, classes, e)
}

func (v *Vertical) joinHost(classes []string) (storage.Backend, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if name, ok := v.joins[joinKey(classes)]; ok {
		return v.stores[name], nil
	}
	for _, name := range v.order {
		covers := true
		for _, cls := range classes {
			if !contains(v.classmap[cls], name) {
				covers = false
				break
			}
		}
		if covers {
			return v.stores[name], nil
		}
	}
	return nil, &errors.UnsupportedJoinError{Classes: append([]string(nil), classes...)}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// CreateStorage fans out to every mapped store.
func (v *Vertical) CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	stores, err := v.mapped(cls)
	if err != nil {
		return err
	}
	for _, s := range stores {
		if err := s.CreateStorage(ctx, cls, conflicts); err != nil {
			return err
		}
	}
	return nil
}

// HasStorage reports whether every mapped store has storage for cls.
func (v *Vertical) HasStorage(ctx context.Context, cls *record.Class) (bool, error) {
	stores, err := v.mapped(cls)
	if err != nil {
		return false, err
	}
	for _, s := range stores {
		ok, err := s.HasStorage(ctx, cls)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// DropStorage fans out to every mapped store.
func (v *Vertical) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	stores, err := v.mapped(cls)
	if err != nil {
		return err
	}
	for _, s := range stores {
		if err := s.DropStorage(ctx, cls, conflicts); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown shuts every attached store down, in attachment order.
func (v *Vertical) Shutdown(ctx context.Context) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, name := range v.order {
		if err := v.stores[name].Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

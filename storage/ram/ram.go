/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package ram provides the terminal in-memory storage backend.
//
// Records are stored as detached snapshots of their field values, never
// as live instances, so a stored row cannot be mutated behind the
// store's back and every recall materializes fresh instances. This is
// the same reason the original design serialized units into its memory
// store instead of holding references.
package ram

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/sequencer"
	"github.com/recallkit/recallkit/storage"
)

// Store is an in-memory Backend. Safe for concurrent use; operations
// serialize per class.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	seq    sequencer.Sequencer
}

type table struct {
	mu      sync.Mutex
	cls     *record.Class
	created bool
	columns map[string]record.FieldType
	rows    map[string]map[string]any // identity key -> field snapshot
	log     []map[string]any          // rows of identifier-less classes
}

// New creates a RAM store. The "sequencer" config key selects the
// identity strategy: "int" (default) or "uuid".
func New(cfg storage.Config) *Store {
	var seq sequencer.Sequencer
	switch cfg.Get("sequencer", "int") {
	case "uuid":
		seq = sequencer.NewUUID()
	default:
		seq = sequencer.NewInt()
	}
	return &Store{
		tables: make(map[string]*table),
		seq:    seq,
	}
}

// Register prepares the store to handle cls. Idempotent.
func (s *Store) Register(cls *record.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[cls.Name()]; !ok {
		s.tables[cls.Name()] = &table{
			cls:     cls,
			columns: make(map[string]record.FieldType),
			rows:    make(map[string]map[string]any),
		}
	}
	return nil
}

func (s *Store) table(cls *record.Class) (*table, error) {
	s.mu.RLock()
	t, ok := s.tables[cls.Name()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ram: class %s is not registered", cls.Name())
	}
	return t, nil
}

// Reserve allocates an identity when the record lacks one and stores the
// record's initial state. The table lock is held across allocation, so
// concurrent reservations for one class cannot collide.
func (s *Store) Reserve(ctx context.Context, rec *record.Record) error {
	t, err := s.table(rec.Class())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !rec.Class().HasIdentifiers() {
		// Log-like classes take no identity; the row lands on Save.
		return nil
	}
	if !rec.HasIdentity() {
		existing := make([][]any, 0, len(t.rows))
		for _, snap := range t.rows {
			existing = append(existing, identityOf(t.cls, snap))
		}
		if err := s.seq.Assign(rec, existing); err != nil {
			return err
		}
	}
	t.rows[rec.IdentityKey()] = rec.Snapshot()
	rec.Cleanse()
	return nil
}

// Save persists a dirty record's field values and cleanses it. Clean
// records are a no-op.
func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	if !rec.Dirty() {
		return nil
	}
	return s.ForceSave(ctx, rec)
}

// ForceSave persists the record's state regardless of dirtiness.
func (s *Store) ForceSave(ctx context.Context, rec *record.Record) error {
	t, err := s.table(rec.Class())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.Class().HasIdentifiers() {
		t.rows[rec.IdentityKey()] = rec.Snapshot()
	} else {
		t.log = append(t.log, rec.Snapshot())
	}
	rec.Cleanse()
	return nil
}

// Destroy removes the stored row for the record's identity. Rows of
// identifier-less classes are matched by value; the first equal row
// goes. Destroying an absent row is a no-op.
func (s *Store) Destroy(ctx context.Context, rec *record.Record) error {
	t, err := s.table(rec.Class())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !rec.Class().HasIdentifiers() {
		snap := rec.Snapshot()
		for i, row := range t.log {
			if reflect.DeepEqual(row, snap) {
				t.log = append(t.log[:i], t.log[i+1:]...)
				break
			}
		}
		return nil
	}
	delete(t.rows, rec.IdentityKey())
	return nil
}

// Recall materializes every stored record of cls matching e. Filtering
// is fully local, so any expression, perfect or not, is exact here.
func (s *Store) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	t, err := s.table(cls)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	snaps := make([]map[string]any, 0, len(t.rows)+len(t.log))
	for _, snap := range t.rows {
		snaps = append(snaps, snap)
	}
	snaps = append(snaps, t.log...)
	t.mu.Unlock()

	recs := make([]*record.Record, 0, len(snaps))
	for _, snap := range snaps {
		rec, err := record.Materialize(cls, snap)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return storage.FilterLocal(recs, e)
}

// Distinct returns the distinct value tuples of the named fields among
// matching records.
func (s *Store) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	recs, err := s.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	return storage.DistinctRows(recs, fields), nil
}

// MultiRecall joins classes with the nested-loop fallback.
func (s *Store) MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	return storage.NestedJoin(ctx, s, classes, e)
}

// CreateStorage creates (or, under the repair mode, reconciles) the
// table for cls. An existing table missing model fields is a conflict.
func (s *Store) CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	t, err := s.table(cls)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	h := storage.Handler(conflicts)
	if !t.created {
		t.created = true
		for _, f := range cls.Fields() {
			t.columns[f.Name] = f.Type
		}
		return nil
	}
	for _, f := range cls.Fields() {
		have, ok := t.columns[f.Name]
		switch {
		case !ok && h.Repairable():
			t.columns[f.Name] = f.Type
		case !ok:
			if err := h.Conflict(cls.Name(), fmt.Sprintf("no storage for property %q", f.Name)); err != nil {
				return err
			}
		case have != f.Type:
			// Type changes are never repaired silently.
			if err := h.Conflict(cls.Name(), fmt.Sprintf("property %q is stored as %s, model wants %s",
				f.Name, have, f.Type)); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasStorage reports whether the table for cls exists.
func (s *Store) HasStorage(ctx context.Context, cls *record.Class) (bool, error) {
	t, err := s.table(cls)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.created, nil
}

// DropStorage destroys the table for cls, including all rows.
func (s *Store) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	t, err := s.table(cls)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.created {
		if err := storage.Handler(conflicts).Conflict(cls.Name(), "no storage to drop"); err != nil {
			return err
		}
	}
	t.created = false
	t.columns = make(map[string]record.FieldType)
	t.rows = make(map[string]map[string]any)
	t.log = nil
	return nil
}

// AddProperty adds a column for an already-created table. Part of the
// schema lifecycle alongside CreateStorage; the sweeping form is
// CreateStorage under the repair mode.
func (s *Store) AddProperty(ctx context.Context, cls *record.Class, name string, conflicts *errors.ConflictHandler) error {
	t, err := s.table(cls)
	if err != nil {
		return err
	}
	f := cls.Field(name)
	if f == nil {
		return errors.NewDefinitionError(cls.Name(), name, "no such field")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.columns[name]; exists {
		return storage.Handler(conflicts).Conflict(cls.Name(), fmt.Sprintf("property %q already stored", name))
	}
	t.columns[name] = f.Type
	return nil
}

// HasProperty reports whether a column exists for the named field.
func (s *Store) HasProperty(ctx context.Context, cls *record.Class, name string) (bool, error) {
	t, err := s.table(cls)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.columns[name]
	return ok, nil
}

// DropProperty removes a column and its values from every stored row.
func (s *Store) DropProperty(ctx context.Context, cls *record.Class, name string, conflicts *errors.ConflictHandler) error {
	t, err := s.table(cls)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.columns[name]; !exists {
		return storage.Handler(conflicts).Conflict(cls.Name(), fmt.Sprintf("no storage for property %q", name))
	}
	delete(t.columns, name)
	for _, snap := range t.rows {
		delete(snap, name)
	}
	return nil
}

// Count returns the number of stored rows for cls. A test convenience.
func (s *Store) Count(cls *record.Class) int {
	t, err := s.table(cls)
	if err != nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows) + len(t.log)
}

// Shutdown drops all tables.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]*table)
	return nil
}

func identityOf(cls *record.Class, snap map[string]any) []any {
	ids := cls.Identifiers()
	out := make([]any, len(ids))
	for i, name := range ids {
		out[i] = snap[name]
	}
	return out
}

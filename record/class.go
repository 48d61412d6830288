/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

import (
	"github.com/recallkit/recallkit/errors"
)

// Class is the schema of one kind of record: an ordered set of typed
// fields, the identifier tuple, and the associations to other classes.
//
// Classes are built once at startup (directly or via the schema loader)
// and treated as immutable afterwards; they are shared freely across
// sandboxes and backends.
type Class struct {
	name        string
	fields      []*Field
	fieldIndex  map[string]int
	identifiers []string
	assocs      map[string]*Association
	hooks       map[string]*fieldHooks
}

// NewClass creates an empty class with the given name.
func NewClass(name string) *Class {
	return &Class{
		name:       name,
		fieldIndex: make(map[string]int),
		assocs:     make(map[string]*Association),
		hooks:      make(map[string]*fieldHooks),
	}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// DefineField adds a field to the class. Redefining an existing field
// name, or reusing a relation name, fails with a DefinitionError.
func (c *Class) DefineField(f Field) error {
	if f.Name == "" {
		return errors.NewDefinitionError(c.name, f.Name, "field name must not be empty")
	}
	if !f.Type.Valid() {
		return errors.NewDefinitionError(c.name, f.Name, "unrecognized field type "+string(f.Type))
	}
	if _, exists := c.fieldIndex[f.Name]; exists {
		return errors.NewDefinitionError(c.name, f.Name, "field already defined")
	}
	if _, exists := c.assocs[f.Name]; exists {
		return errors.NewDefinitionError(c.name, f.Name, "name already used by an association")
	}
	if f.Default != nil {
		coerced, err := f.coerce(c.name, f.Default)
		if err != nil {
			return err
		}
		f.Default = coerced
	}
	held := f
	c.fieldIndex[f.Name] = len(c.fields)
	c.fields = append(c.fields, &held)
	return nil
}

// DefineFields adds fields in the given order, stopping at the first error.
func (c *Class) DefineFields(fields ...Field) error {
	for _, f := range fields {
		if err := c.DefineField(f); err != nil {
			return err
		}
	}
	return nil
}

// Identify declares the identifier tuple: the fields whose values
// uniquely determine a record within this class. Every named field must
// already be defined. An empty tuple is legal for append-only classes.
func (c *Class) Identify(fields ...string) error {
	for _, name := range fields {
		if _, ok := c.fieldIndex[name]; !ok {
			return errors.NewDefinitionError(c.name, name, "identifier references undefined field")
		}
	}
	c.identifiers = append([]string(nil), fields...)
	return nil
}

// Identifiers returns the identifier field names, in declaration order.
func (c *Class) Identifiers() []string {
	return append([]string(nil), c.identifiers...)
}

// HasIdentifiers reports whether the class declares an identity at all.
func (c *Class) HasIdentifiers() bool { return len(c.identifiers) > 0 }

// Fields returns the field descriptors in declaration order.
func (c *Class) Fields() []*Field {
	return append([]*Field(nil), c.fields...)
}

// FieldNames returns the field names in declaration order.
func (c *Class) FieldNames() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the descriptor for the named field, or nil.
func (c *Class) Field(name string) *Field {
	if i, ok := c.fieldIndex[name]; ok {
		return c.fields[i]
	}
	return nil
}

// Hook registers before/after assignment hooks for the named field.
// Either hook may be nil. Hooks fire in registration order; when several
// fields change in one SetMany call, assignments (and therefore their
// hooks) run in field declaration order.
func (c *Class) Hook(field string, before BeforeSetHook, after AfterSetHook) error {
	if _, ok := c.fieldIndex[field]; !ok {
		return errors.NewDefinitionError(c.name, field, "hook references undefined field")
	}
	h := c.hooks[field]
	if h == nil {
		h = &fieldHooks{}
		c.hooks[field] = h
	}
	if before != nil {
		h.before = append(h.before, before)
	}
	if after != nil {
		h.after = append(h.after, after)
	}
	return nil
}

// Association returns the named association, or nil.
func (c *Class) Association(name string) *Association {
	return c.assocs[name]
}

// Associations returns the association map keyed by relation name.
func (c *Class) Associations() map[string]*Association {
	out := make(map[string]*Association, len(c.assocs))
	for k, v := range c.assocs {
		out[k] = v
	}
	return out
}

// defineAssociation installs a generated relation accessor under the
// given name. Relation names share a namespace with field names.
func (c *Class) defineAssociation(name string, a *Association) error {
	if _, exists := c.fieldIndex[name]; exists {
		return errors.NewDefinitionError(c.name, name, "relation name collides with a field")
	}
	if _, exists := c.assocs[name]; exists {
		return errors.NewDefinitionError(c.name, name, "relation already defined")
	}
	c.assocs[name] = a
	return nil
}

// New constructs a detached record of this class with default values
// applied. The record is not tracked by any sandbox until memorized.
func (c *Class) New() *Record {
	values := make([]any, len(c.fields))
	for i, f := range c.fields {
		if f.Default != nil {
			values[i] = copyValue(f.Default)
		}
	}
	return &Record{class: c, values: values, dirty: make(map[int]struct{})}
}

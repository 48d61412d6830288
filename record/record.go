/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/recallkit/recallkit/errors"
)

// Binder is the surface a record needs from the sandbox that materialized
// it. It exists so this package does not depend on the sandbox package.
type Binder interface {
	// RelatedRecords resolves an association accessor for r. filter is an
	// optional *expr.Expression (typed as any to keep this package a leaf).
	RelatedRecords(r *Record, a *Association, filter any) ([]*Record, error)
}

// Record is one live instance of a class. A record owns its field values
// exclusively; mutable-shaped values are copied on read and on write.
// At most one sandbox holds the record at a time.
type Record struct {
	class     *Class
	values    []any
	dirty     map[int]struct{}
	box       Binder
	destroyed bool
}

// Class returns the record's class.
func (r *Record) Class() *Class { return r.class }

// Bind attaches the record to the sandbox which materialized it.
// A nil Binder detaches it.
func (r *Record) Bind(b Binder) { r.box = b }

// Binder returns the sandbox backref, or nil for detached records.
func (r *Record) Binder() Binder { return r.box }

// Destroyed reports whether the record has been forgotten. A destroyed
// record accepts no further operations.
func (r *Record) Destroyed() bool { return r.destroyed }

// MarkDestroyed flags the record as terminal. Called by the sandbox on forget.
func (r *Record) MarkDestroyed() { r.destroyed = true }

// Get returns the named field value. Mutable-shaped values are copied so
// the caller cannot alias internal state.
func (r *Record) Get(name string) (any, error) {
	if r.destroyed {
		return nil, errors.ErrDestroyed
	}
	i, ok := r.class.fieldIndex[name]
	if !ok {
		return nil, errors.NewDefinitionError(r.class.name, name, "no such field")
	}
	return copyValue(r.values[i]), nil
}

// Value returns the named field value without copying. It is the access
// path used by expression evaluation; callers must not mutate the result.
// Unknown names yield nil.
func (r *Record) Value(name string) any {
	if i, ok := r.class.fieldIndex[name]; ok {
		return r.values[i]
	}
	return nil
}

// Set assigns the named field. The value must be nil or an instance of
// the field's declared type; narrower numeric types widen. Before hooks
// may abort the assignment; after hooks observe the applied value. A
// successful assignment marks the field dirty.
func (r *Record) Set(name string, v any) error {
	if r.destroyed {
		return errors.ErrDestroyed
	}
	i, ok := r.class.fieldIndex[name]
	if !ok {
		return errors.NewDefinitionError(r.class.name, name, "no such field")
	}
	f := r.class.fields[i]
	coerced, err := f.coerce(r.class.name, v)
	if err != nil {
		return err
	}
	coerced = copyValue(coerced)

	if h := r.class.hooks[name]; h != nil {
		for _, before := range h.before {
			if err := before(r, name, coerced); err != nil {
				return err
			}
		}
	}

	r.values[i] = coerced
	r.dirty[i] = struct{}{}

	if h := r.class.hooks[name]; h != nil {
		for _, after := range h.after {
			after(r, name, coerced)
		}
	}
	return nil
}

// SetMany assigns several fields. Assignments are applied in field
// declaration order regardless of map iteration order, so hook firing
// across fields is deterministic.
func (r *Record) SetMany(values map[string]any) error {
	for _, f := range r.class.fields {
		if v, ok := values[f.Name]; ok {
			if err := r.Set(f.Name, v); err != nil {
				return err
			}
		}
	}
	for name := range values {
		if r.class.Field(name) == nil {
			return errors.NewDefinitionError(r.class.name, name, "no such field")
		}
	}
	return nil
}

// setRaw writes a value without hooks or dirty tracking. Backends use it
// when materializing stored rows.
func (r *Record) setRaw(i int, v any) { r.values[i] = v }

// Materialize builds a clean record of cls from stored field values.
// Values must already be in canonical form (the codec's Decode output).
func Materialize(cls *Class, values map[string]any) (*Record, error) {
	rec := cls.New()
	for name, v := range values {
		i, ok := cls.fieldIndex[name]
		if !ok {
			return nil, errors.NewDefinitionError(cls.name, name, "no such field")
		}
		coerced, err := cls.fields[i].coerce(cls.name, v)
		if err != nil {
			return nil, err
		}
		rec.setRaw(i, coerced)
	}
	rec.Cleanse()
	return rec, nil
}

// Dirty reports whether any field changed since the last save or load.
func (r *Record) Dirty() bool { return len(r.dirty) > 0 }

// DirtyFields returns the names of changed fields in declaration order.
func (r *Record) DirtyFields() []string {
	var out []string
	for i, f := range r.class.fields {
		if _, ok := r.dirty[i]; ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// Cleanse clears dirty tracking. Backends call it after persisting the
// full record state; a failed save must leave the dirty set untouched.
func (r *Record) Cleanse() {
	r.dirty = make(map[int]struct{})
}

// Snapshot returns a copy of every field value keyed by name.
func (r *Record) Snapshot() map[string]any {
	out := make(map[string]any, len(r.class.fields))
	for i, f := range r.class.fields {
		out[f.Name] = copyValue(r.values[i])
	}
	return out
}

// Identity returns the identifier tuple values, in identifier order.
func (r *Record) Identity() []any {
	out := make([]any, len(r.class.identifiers))
	for i, name := range r.class.identifiers {
		out[i] = copyValue(r.values[r.class.fieldIndex[name]])
	}
	return out
}

// HasIdentity reports whether every identifier field holds a value.
// Classes without identifiers never have an identity.
func (r *Record) HasIdentity() bool {
	if !r.class.HasIdentifiers() {
		return false
	}
	for _, name := range r.class.identifiers {
		if r.values[r.class.fieldIndex[name]] == nil {
			return false
		}
	}
	return true
}

// IdentityKey returns a stable string encoding of the identity tuple,
// usable as a map key. Records of identifier-less classes have no key.
func (r *Record) IdentityKey() string {
	return KeyString(r.Identity())
}

// KeyString encodes an identity tuple as a stable string key.
func KeyString(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = keyPart(v)
	}
	return strings.Join(parts, "\x1f")
}

func keyPart(v any) string {
	switch tv := v.(type) {
	case nil:
		return "~"
	case string:
		return "s:" + tv
	case int64:
		return fmt.Sprintf("i:%d", tv)
	case bool:
		return fmt.Sprintf("b:%t", tv)
	case float64:
		return fmt.Sprintf("f:%g", tv)
	case time.Time:
		return "t:" + tv.UTC().Format(time.RFC3339Nano)
	case *big.Int:
		return "I:" + tv.String()
	default:
		return fmt.Sprintf("x:%v", tv)
	}
}

// String renders the record as Class(identity) for diagnostics.
func (r *Record) String() string {
	ids := r.Identity()
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%s(%s)", r.class.name, strings.Join(parts, ","))
}

// Related resolves the named association accessor through the sandbox
// that holds this record. To-many relations return a never-nil slice;
// to-one relations are exposed via RelatedOne.
func (r *Record) Related(name string, filter any) ([]*Record, error) {
	if r.destroyed {
		return nil, errors.ErrDestroyed
	}
	a := r.class.assocs[name]
	if a == nil {
		return nil, errors.NewDefinitionError(r.class.name, name, "no such relation")
	}
	if r.box == nil {
		return nil, fmt.Errorf("%s: record is not bound to a sandbox", r)
	}
	recs, err := r.box.RelatedRecords(r, a, filter)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*Record{}
	}
	return recs, nil
}

// RelatedOne resolves a to-one association accessor, returning nil when
// no far record matches.
func (r *Record) RelatedOne(name string, filter any) (*Record, error) {
	recs, err := r.Related(name, filter)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

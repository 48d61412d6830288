/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package sandbox holds the identity map: one Sandbox per logical unit
// of work, owning every record instance it has seen.
//
// A sandbox guarantees that one identity maps to at most one live
// instance. Recalls that hit storage replace each stored row with the
// resident instance when one exists, so uncommitted in-memory changes
// are never shadowed by stale storage state. A sandbox has a single
// owner and does no locking; share the backend, not the sandbox.
package sandbox

import (
	"context"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
)

// Sandbox is an identity-mapped session over a backend chain.
type Sandbox struct {
	backend  storage.Backend
	resident map[string]map[string]*record.Record // class -> identity key -> instance
	anon     map[*record.Record]struct{}          // memorized records of identifier-less classes
}

// New creates an empty sandbox over b.
func New(b storage.Backend) *Sandbox {
	return &Sandbox{
		backend:  b,
		resident: make(map[string]map[string]*record.Record),
		anon:     make(map[*record.Record]struct{}),
	}
}

// Backend returns the backend chain this sandbox operates on.
func (s *Sandbox) Backend() storage.Backend { return s.backend }

func (s *Sandbox) class(cls *record.Class) map[string]*record.Record {
	byKey := s.resident[cls.Name()]
	if byKey == nil {
		byKey = make(map[string]*record.Record)
		s.resident[cls.Name()] = byKey
	}
	return byKey
}

// admit folds a record coming back from storage into the identity map.
// A resident instance under the same identity wins; otherwise the
// record is bound and becomes the resident instance.
func (s *Sandbox) admit(rec *record.Record) *record.Record {
	if !rec.Class().HasIdentifiers() || !rec.HasIdentity() {
		rec.Bind(s)
		return rec
	}
	byKey := s.class(rec.Class())
	if held, ok := byKey[rec.IdentityKey()]; ok {
		return held
	}
	rec.Bind(s)
	byKey[rec.IdentityKey()] = rec
	return rec
}

// Memorize brings a new record under sandbox management: the backend
// reserves an identity (when the record lacks one) and persists the
// initial state, and the record becomes the resident instance for that
// identity. Memorizing the resident instance again is a no-op; a
// second, distinct instance under a resident identity is refused.
func (s *Sandbox) Memorize(ctx context.Context, rec *record.Record) error {
	if rec.Destroyed() {
		return errors.ErrDestroyed
	}
	if !rec.Class().HasIdentifiers() {
		if err := s.backend.Reserve(ctx, rec); err != nil {
			return err
		}
		rec.Bind(s)
		s.anon[rec] = struct{}{}
		return nil
	}
	byKey := s.class(rec.Class())
	if rec.HasIdentity() {
		if held, ok := byKey[rec.IdentityKey()]; ok {
			if held == rec {
				return nil
			}
			return &errors.DuplicateIdentityError{
				Class:    rec.Class().Name(),
				Identity: rec.IdentityKey(),
			}
		}
	}
	if err := s.backend.Reserve(ctx, rec); err != nil {
		return err
	}
	if held, ok := byKey[rec.IdentityKey()]; ok && held != rec {
		return &errors.DuplicateIdentityError{
			Class:    rec.Class().Name(),
			Identity: rec.IdentityKey(),
		}
	}
	rec.Bind(s)
	byKey[rec.IdentityKey()] = rec
	return nil
}

// Recall returns every record of cls matching e, preferring resident
// instances over their stored state.
func (s *Sandbox) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	stored, err := s.backend.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record, len(stored))
	for i, rec := range stored {
		out[i] = s.admit(rec)
	}
	return out, nil
}

// XRecall streams the records of cls matching e over a channel. The
// query runs when XRecall is called; each call re-queries, so invoking
// it again restarts the stream over fresh results. The channel closes
// when the results are exhausted or ctx is done.
func (s *Sandbox) XRecall(ctx context.Context, cls *record.Class, e *expr.Expression) (<-chan *record.Record, error) {
	recs, err := s.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	ch := make(chan *record.Record)
	go func() {
		defer close(ch)
		for _, r := range recs {
			select {
			case ch <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Unit returns the single record of cls matching e, or nil when none
// does. More than one match under an identity-shaped expression is a
// backend invariant violation.
func (s *Sandbox) Unit(ctx context.Context, cls *record.Class, e *expr.Expression) (*record.Record, error) {
	recs, err := s.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, nil
	case 1:
		return recs[0], nil
	default:
		return nil, &errors.AmbiguousIdentityError{
			Class:    cls.Name(),
			Identity: recs[0].IdentityKey(),
			Count:    len(recs),
		}
	}
}

// UnitByID recalls the unit with the given identity tuple, in
// identifier declaration order.
func (s *Sandbox) UnitByID(ctx context.Context, cls *record.Class, id ...any) (*record.Record, error) {
	ids := cls.Identifiers()
	if len(id) != len(ids) {
		return nil, errors.NewDefinitionError(cls.Name(), "",
			"identity tuple length does not match the class identifiers")
	}
	fields := make(map[string]any, len(ids))
	for i, name := range ids {
		fields[name] = id[i]
	}
	return s.Unit(ctx, cls, expr.Match(fields))
}

// Resident returns the in-memory instance for an identity tuple without
// touching storage, or nil when none is resident.
func (s *Sandbox) Resident(cls *record.Class, id ...any) *record.Record {
	return s.resident[cls.Name()][record.KeyString(id)]
}

// Flush saves one record's dirty state through the backend.
func (s *Sandbox) Flush(ctx context.Context, rec *record.Record) error {
	if rec.Destroyed() {
		return errors.ErrDestroyed
	}
	return s.backend.Save(ctx, rec)
}

// FlushAll saves every dirty resident record. Each record is attempted
// regardless of earlier failures; failures are aggregated into a
// FlushError naming the identities that did not save.
func (s *Sandbox) FlushAll(ctx context.Context) error {
	var failed []string
	var errs []error
	save := func(rec *record.Record) {
		if !rec.Dirty() {
			return
		}
		if err := s.backend.Save(ctx, rec); err != nil {
			failed = append(failed, rec.String())
			errs = append(errs, err)
		}
	}
	for _, byKey := range s.resident {
		for _, rec := range byKey {
			save(rec)
		}
	}
	for rec := range s.anon {
		save(rec)
	}
	if len(errs) > 0 {
		return &errors.FlushError{Identities: failed, Errs: errs}
	}
	return nil
}

// Forget removes the record from storage and from the sandbox. The
// record is terminal afterwards; any further operation on it fails.
func (s *Sandbox) Forget(ctx context.Context, rec *record.Record) error {
	if rec.Destroyed() {
		return errors.ErrDestroyed
	}
	if err := s.backend.Destroy(ctx, rec); err != nil {
		return err
	}
	if rec.Class().HasIdentifiers() {
		delete(s.resident[rec.Class().Name()], rec.IdentityKey())
	} else {
		delete(s.anon, rec)
	}
	rec.MarkDestroyed()
	rec.Bind(nil)
	return nil
}

// Distinct returns raw distinct value tuples straight from the backend,
// bypassing the identity map.
func (s *Sandbox) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	return s.backend.Distinct(ctx, cls, fields, e)
}

// MultiRecall returns matching record tuples across classes, in the
// given class order, preferring resident instances position by
// position.
func (s *Sandbox) MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	rows, err := s.backend.MultiRecall(ctx, classes, e)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		for i, rec := range row {
			row[i] = s.admit(rec)
		}
	}
	return rows, nil
}

// RelatedRecords resolves an association accessor: far records whose
// far field equals the near record's near field value, optionally
// narrowed by filter (a *expr.Expression). It satisfies record.Binder.
func (s *Sandbox) RelatedRecords(r *record.Record, a *record.Association, filter any) ([]*record.Record, error) {
	nearVal, err := r.Get(a.NearField)
	if err != nil {
		return nil, err
	}
	if nearVal == nil {
		return nil, nil
	}
	e := expr.Field(a.FarField).Eq(nearVal)
	if filter != nil {
		f, ok := filter.(*expr.Expression)
		if !ok {
			return nil, errors.NewDefinitionError(a.Far.Name(), a.Name,
				"relation filter must be an expression")
		}
		e = expr.And(e, f)
	}
	return s.Recall(context.Background(), a.Far, e)
}

// FlushAllAndForget flushes every dirty resident and then empties the
// identity map, leaving records detached but intact. The next recall
// materializes fresh instances from storage.
func (s *Sandbox) FlushAllAndForget(ctx context.Context) error {
	if err := s.FlushAll(ctx); err != nil {
		return err
	}
	for _, byKey := range s.resident {
		for _, rec := range byKey {
			rec.Bind(nil)
		}
	}
	for rec := range s.anon {
		rec.Bind(nil)
	}
	s.resident = make(map[string]map[string]*record.Record)
	s.anon = make(map[*record.Record]struct{})
	return nil
}

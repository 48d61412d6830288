/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package sequencer allocates identities for records that lack one.
package sequencer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/recallkit/recallkit/record"
)

// Sequencer assigns identity values. Implementations must guarantee that
// Assign produces a tuple distinct from every tuple in existing and from
// any tuple concurrently reserved for the same class.
type Sequencer interface {
	// ValidID reports whether the tuple is a fully-populated identity.
	ValidID(id []any) bool

	// Assign writes identity values into the record's identifier fields.
	// existing holds every identity currently known to the backend for
	// the record's class.
	Assign(rec *record.Record, existing [][]any) error
}

// Int allocates monotonically increasing int64 identities, seeded from
// the maximum observed identity per class. It serves single-field integer
// identifiers; backends with native autoincrement substitute their own
// mechanism behind the same contract.
type Int struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewInt creates an integer sequencer.
func NewInt() *Int {
	return &Int{next: make(map[string]int64)}
}

// ValidID reports whether id is a single non-nil integer.
func (s *Int) ValidID(id []any) bool {
	if len(id) != 1 || id[0] == nil {
		return false
	}
	_, ok := id[0].(int64)
	return ok
}

// Assign reserves the next integer for the record's class. The floor is
// raised to one past the maximum existing identity, so a sequencer
// rebuilt over a populated store never reissues a live identity.
func (s *Int) Assign(rec *record.Record, existing [][]any) error {
	cls := rec.Class()
	ids := cls.Identifiers()
	if len(ids) != 1 {
		return fmt.Errorf("%s: integer sequencer needs exactly one identifier, class has %d",
			cls.Name(), len(ids))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.next[cls.Name()]
	for _, id := range existing {
		if len(id) == 1 {
			if n, ok := id[0].(int64); ok && n >= next {
				next = n + 1
			}
		}
	}
	s.next[cls.Name()] = next + 1
	return rec.Set(ids[0], next)
}

// UUID allocates random string identities. Useful for string identifiers
// and for stores with no natural ordering.
type UUID struct{}

// NewUUID creates a UUID sequencer.
func NewUUID() *UUID { return &UUID{} }

// ValidID reports whether id is a single non-empty string.
func (s *UUID) ValidID(id []any) bool {
	if len(id) != 1 || id[0] == nil {
		return false
	}
	str, ok := id[0].(string)
	return ok && str != ""
}

// Assign writes a fresh UUID into the record's single identifier field.
func (s *UUID) Assign(rec *record.Record, existing [][]any) error {
	cls := rec.Class()
	ids := cls.Identifiers()
	if len(ids) != 1 {
		return fmt.Errorf("%s: uuid sequencer needs exactly one identifier, class has %d",
			cls.Name(), len(ids))
	}
	return rec.Set(ids[0], uuid.NewString())
}

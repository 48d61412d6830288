/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package errors

import "fmt"

// Conflicts selects the behavior of schema-mutating calls when the record
// model and live storage disagree.
type Conflicts string

const (
	// ConflictError aborts on the first conflict with a MappingError. The default.
	ConflictError Conflicts = "error"

	// ConflictWarn records every conflict as a StorageWarning and continues.
	ConflictWarn Conflicts = "warn"

	// ConflictRepair reconciles live storage to match the model. Operations
	// which cannot repair a given conflict fall back to ConflictError.
	ConflictRepair Conflicts = "repair"

	// ConflictIgnore suppresses conflict detection entirely. Unsafe; it is
	// retained only for emergency use against storage you cannot alter.
	ConflictIgnore Conflicts = "ignore"
)

// Valid reports whether c is a recognized conflict mode.
func (c Conflicts) Valid() bool {
	switch c {
	case ConflictError, ConflictWarn, ConflictRepair, ConflictIgnore:
		return true
	}
	return false
}

// StorageWarning is a non-fatal conflict recorded under ConflictWarn.
type StorageWarning struct {
	Class   string
	Message string
}

func (w StorageWarning) String() string {
	if w.Class != "" {
		return fmt.Sprintf("%s: %s", w.Class, w.Message)
	}
	return w.Message
}

// ConflictHandler dispatches model/storage conflicts according to a mode.
// Under ConflictWarn it collects every conflict instead of aborting; the
// batch is surfaced once via Warnings, never raised per item.
//
// The zero value is not usable; construct with NewConflictHandler.
type ConflictHandler struct {
	Mode     Conflicts
	warnings []StorageWarning
}

// NewConflictHandler creates a handler for the given mode.
// An unrecognized mode falls back to ConflictError.
func NewConflictHandler(mode Conflicts) *ConflictHandler {
	if !mode.Valid() {
		mode = ConflictError
	}
	return &ConflictHandler{Mode: mode}
}

// Conflict reacts to one conflict. Under ConflictError (and ConflictRepair,
// whose callers only invoke Conflict for issues they could not repair) it
// returns a MappingError; under ConflictWarn it records the conflict and
// returns nil; under ConflictIgnore it returns nil.
func (h *ConflictHandler) Conflict(class, message string) error {
	switch h.Mode {
	case ConflictWarn:
		h.warnings = append(h.warnings, StorageWarning{Class: class, Message: message})
		return nil
	case ConflictIgnore:
		return nil
	default:
		return NewMappingError(class, message)
	}
}

// Repairable reports whether the caller should attempt to reconcile
// storage rather than report the conflict.
func (h *ConflictHandler) Repairable() bool {
	return h.Mode == ConflictRepair
}

// Warnings returns every conflict collected under ConflictWarn.
func (h *ConflictHandler) Warnings() []StorageWarning {
	return h.warnings
}

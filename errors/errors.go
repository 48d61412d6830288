/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	// ErrFieldType is returned when a field assignment does not match the declared type
	ErrFieldType = errors.New("field type mismatch")

	// ErrDefinition is returned when a class definition is invalid (duplicate field, name collision)
	ErrDefinition = errors.New("invalid definition")

	// ErrDuplicateIdentity is returned when a second instance claims a resident identity
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrAmbiguousIdentity is returned when a backend yields more than one record for one identity
	ErrAmbiguousIdentity = errors.New("ambiguous identity")

	// ErrMapping is returned when the model and live storage disagree under the Error conflict mode
	ErrMapping = errors.New("storage mapping conflict")

	// ErrUnsupportedJoin is returned when no single backend covers every class of a join
	ErrUnsupportedJoin = errors.New("unsupported join")

	// ErrNoPath is returned when two classes are not connected in the association graph
	ErrNoPath = errors.New("no association path")

	// ErrDestroyed is returned when an operation is attempted on a destroyed record
	ErrDestroyed = errors.New("record destroyed")
)

// FieldTypeError reports an assignment whose value type does not match
// the field's declared semantic type.
type FieldTypeError struct {
	Class string
	Field string
	Want  string
	Got   string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("%s.%s: cannot assign %s to %s field", e.Class, e.Field, e.Got, e.Want)
}

func (e *FieldTypeError) Is(target error) bool {
	return target == ErrFieldType
}

// DefinitionError reports an invalid class definition, such as a duplicate
// field name or a relation name colliding with a field name.
type DefinitionError struct {
	Class   string
	Name    string
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s: definition of %q invalid: %s", e.Class, e.Name, e.Message)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// DuplicateIdentityError reports a memorize of a second, distinct instance
// under an identity which is already resident in a sandbox.
type DuplicateIdentityError struct {
	Class    string
	Identity string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%s identity %s is already held by a different instance", e.Class, e.Identity)
}

func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}

// AmbiguousIdentityError reports a backend invariant violation: more than
// one stored record matched a single identity.
type AmbiguousIdentityError struct {
	Class    string
	Identity string
	Count    int
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("%s identity %s matched %d stored records", e.Class, e.Identity, e.Count)
}

func (e *AmbiguousIdentityError) Is(target error) bool {
	return target == ErrAmbiguousIdentity
}

// MappingError reports a discrepancy between the record model and live
// storage structures, raised under the Error conflict mode.
type MappingError struct {
	Class   string
	Message string
}

func (e *MappingError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("%s: %s", e.Class, e.Message)
	}
	return e.Message
}

func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// UnsupportedJoinError reports a multi-class recall for which no single
// backend is registered for every class involved.
type UnsupportedJoinError struct {
	Classes []string
}

func (e *UnsupportedJoinError) Error() string {
	return fmt.Sprintf("no single backend covers join of %s", strings.Join(e.Classes, ", "))
}

func (e *UnsupportedJoinError) Is(target error) bool {
	return target == ErrUnsupportedJoin
}

// NoPathError reports that the association graph does not connect two classes.
type NoPathError struct {
	From string
	To   string
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no association path from %s to %s", e.From, e.To)
}

func (e *NoPathError) Is(target error) bool {
	return target == ErrNoPath
}

// FlushError aggregates the failures of a flush over every dirty record.
// Identities holds the printable identity of each record whose save failed.
type FlushError struct {
	Identities []string
	Errs       []error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush failed for %d record(s): %s",
		len(e.Identities), strings.Join(e.Identities, ", "))
}

func (e *FlushError) Unwrap() []error {
	return e.Errs
}

// Helper functions for creating errors

// NewFieldTypeError creates a new FieldTypeError
func NewFieldTypeError(class, field, want, got string) error {
	return &FieldTypeError{Class: class, Field: field, Want: want, Got: got}
}

// NewDefinitionError creates a new DefinitionError
func NewDefinitionError(class, name, message string) error {
	return &DefinitionError{Class: class, Name: name, Message: message}
}

// NewMappingError creates a new MappingError
func NewMappingError(class, message string) error {
	return &MappingError{Class: class, Message: message}
}

// IsFieldType checks if an error is a field type error
func IsFieldType(err error) bool {
	return errors.Is(err, ErrFieldType)
}

// IsDefinition checks if an error is a definition error
func IsDefinition(err error) bool {
	return errors.Is(err, ErrDefinition)
}

// IsMapping checks if an error is a mapping conflict error
func IsMapping(err error) bool {
	return errors.Is(err, ErrMapping)
}

// IsUnsupportedJoin checks if an error is an unsupported join error
func IsUnsupportedJoin(err error) bool {
	return errors.Is(err, ErrUnsupportedJoin)
}

// IsNoPath checks if an error is a missing association path error
func IsNoPath(err error) bool {
	return errors.Is(err, ErrNoPath)
}

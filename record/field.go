/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

import (
	"math/big"
	"time"

	"github.com/recallkit/recallkit/errors"
)

// FieldType is the semantic type of a field. The set is fixed but
// deliberately wider than Go's scalar types; each entry maps to one
// canonical Go representation, listed on the constant.
type FieldType string

const (
	FieldBool     FieldType = "bool"     // bool
	FieldInt      FieldType = "int"      // int64
	FieldBigInt   FieldType = "bigint"   // *big.Int
	FieldFloat    FieldType = "float"    // float64
	FieldDecimal  FieldType = "decimal"  // *big.Rat, rendered with the Scale hint
	FieldBytes    FieldType = "bytes"    // []byte
	FieldString   FieldType = "string"   // string
	FieldDate     FieldType = "date"     // time.Time, truncated to midnight UTC
	FieldTime     FieldType = "time"     // time.Time, date component ignored
	FieldDateTime FieldType = "datetime" // time.Time
	FieldDuration FieldType = "duration" // time.Duration
	FieldList     FieldType = "list"     // []any, ordered
	FieldSet      FieldType = "set"      // []any, unordered
	FieldMap      FieldType = "map"      // map[string]any
)

// Valid reports whether t is one of the recognized semantic types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldBool, FieldInt, FieldBigInt, FieldFloat, FieldDecimal,
		FieldBytes, FieldString, FieldDate, FieldTime, FieldDateTime,
		FieldDuration, FieldList, FieldSet, FieldMap:
		return true
	}
	return false
}

// Field describes one named, typed attribute of a record class.
type Field struct {
	// Name is the field name, unique within its class.
	Name string

	// Type is the semantic type of the field.
	Type FieldType

	// Default is the value a fresh record starts with. May be nil.
	Default any

	// Index hints that the backend should index this field.
	Index bool

	// MaxBytes caps the stored size of string/bytes fields. Zero means unbounded.
	MaxBytes int

	// Scale and Precision are rendering hints for decimal fields.
	Scale     int
	Precision int
}

// Hooks registered for a field fire in registration order.
type fieldHooks struct {
	before []BeforeSetHook
	after  []AfterSetHook
}

// BeforeSetHook runs before a field assignment is applied. Returning a
// non-nil error aborts the assignment.
type BeforeSetHook func(r *Record, field string, next any) error

// AfterSetHook runs after a field assignment has been applied.
type AfterSetHook func(r *Record, field string, value any)

// coerce validates v against the field's declared type, widening narrower
// numeric values. It returns the canonical representation or a
// FieldTypeError. nil is always accepted.
func (f *Field) coerce(class string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int8:
			return int64(n), nil
		}
	case FieldBigInt:
		switch n := v.(type) {
		case *big.Int:
			return n, nil
		case int64:
			return big.NewInt(n), nil
		case int:
			return big.NewInt(int64(n)), nil
		}
	case FieldFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case FieldDecimal:
		switch n := v.(type) {
		case *big.Rat:
			return n, nil
		case int64:
			return new(big.Rat).SetInt64(n), nil
		case int:
			return new(big.Rat).SetInt64(int64(n)), nil
		case float64:
			return new(big.Rat).SetFloat64(n), nil
		}
	case FieldBytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case FieldString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldDate:
		if tv, ok := v.(time.Time); ok {
			y, m, d := tv.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	case FieldTime, FieldDateTime:
		if tv, ok := v.(time.Time); ok {
			return tv, nil
		}
	case FieldDuration:
		if d, ok := v.(time.Duration); ok {
			return d, nil
		}
	case FieldList, FieldSet:
		if l, ok := v.([]any); ok {
			return l, nil
		}
	case FieldMap:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, errors.NewFieldTypeError(class, f.Name, string(f.Type), typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int8, int16, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case time.Time:
		return "time.Time"
	case time.Duration:
		return "time.Duration"
	case *big.Int:
		return "*big.Int"
	case *big.Rat:
		return "*big.Rat"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return "unsupported"
	}
}

// copyValue returns an owned copy of v for the mutable-shaped types, so
// that callers cannot alias a record's internal state. Scalars pass
// through unchanged.
func copyValue(v any) any {
	switch tv := v.(type) {
	case []byte:
		out := make([]byte, len(tv))
		copy(out, tv)
		return out
	case []any:
		out := make([]any, len(tv))
		copy(out, tv)
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, mv := range tv {
			out[k] = mv
		}
		return out
	case *big.Int:
		return new(big.Int).Set(tv)
	case *big.Rat:
		return new(big.Rat).Set(tv)
	default:
		return v
	}
}

/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/recallkit/recallkit/errors"
)

// The codec maps canonical field values to wire-safe forms (strings,
// floats, bools, lists, maps) and back. Terminal backends that persist
// outside process memory use it so that recall output is re-ingestible
// by save and reserve.
//
// Wire forms:
//
//	bool      bool
//	int       string (decimal)
//	bigint    string (decimal)
//	float     float64
//	decimal   string (numerator/denominator)
//	bytes     string (base64)
//	string    string
//	date      string (strfmt.Date, RFC3339 full-date)
//	time      string (RFC3339Nano, date component zeroed)
//	datetime  string (strfmt.DateTime, RFC3339 with sub-second precision)
//	duration  string (strfmt.Duration)
//	list/set  []any of wire forms, unrecognized members JSON-opaque
//	map       map[string]any likewise
const timeOnlyWire = "0000-01-01T15:04:05.999999999Z07:00"

// Encode converts a canonical value of the given field to its wire form.
func Encode(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldBool:
		return v.(bool), nil
	case FieldInt:
		return fmt.Sprintf("%d", v.(int64)), nil
	case FieldBigInt:
		return v.(*big.Int).String(), nil
	case FieldFloat:
		return v.(float64), nil
	case FieldDecimal:
		return v.(*big.Rat).RatString(), nil
	case FieldBytes:
		return base64.StdEncoding.EncodeToString(v.([]byte)), nil
	case FieldString:
		return v.(string), nil
	case FieldDate:
		return strfmt.Date(v.(time.Time)).String(), nil
	case FieldTime:
		tv := v.(time.Time)
		zeroed := time.Date(0, 1, 1, tv.Hour(), tv.Minute(), tv.Second(), tv.Nanosecond(), tv.Location())
		return zeroed.Format(timeOnlyWire), nil
	case FieldDateTime:
		return v.(time.Time).UTC().Format(time.RFC3339Nano), nil
	case FieldDuration:
		return strfmt.Duration(v.(time.Duration)).String(), nil
	case FieldList, FieldSet:
		in := v.([]any)
		out := make([]any, len(in))
		for i, m := range in {
			out[i] = opaqueEncode(m)
		}
		return out, nil
	case FieldMap:
		in := v.(map[string]any)
		out := make(map[string]any, len(in))
		for k, m := range in {
			out[k] = opaqueEncode(m)
		}
		return out, nil
	}
	return nil, errors.NewFieldTypeError("", f.Name, string(f.Type), typeName(v))
}

// Decode converts a wire-form value back to the canonical representation.
func Decode(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	fail := func() (any, error) {
		return nil, errors.NewFieldTypeError("", f.Name, string(f.Type), typeName(v))
	}
	switch f.Type {
	case FieldBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldInt:
		if s, ok := v.(string); ok {
			var n int64
			if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
				return n, nil
			}
		}
	case FieldBigInt:
		if s, ok := v.(string); ok {
			if n, ok := new(big.Int).SetString(s, 10); ok {
				return n, nil
			}
		}
	case FieldFloat:
		if n, ok := v.(float64); ok {
			return n, nil
		}
	case FieldDecimal:
		if s, ok := v.(string); ok {
			if r, ok := new(big.Rat).SetString(s); ok {
				return r, nil
			}
		}
	case FieldBytes:
		if s, ok := v.(string); ok {
			if b, err := base64.StdEncoding.DecodeString(s); err == nil {
				return b, nil
			}
		}
	case FieldString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldDate:
		if s, ok := v.(string); ok {
			var d strfmt.Date
			if err := d.UnmarshalText([]byte(s)); err == nil {
				return time.Time(d).UTC(), nil
			}
		}
	case FieldTime:
		if s, ok := v.(string); ok {
			if tv, err := time.Parse(timeOnlyWire, s); err == nil {
				return tv, nil
			}
		}
	case FieldDateTime:
		if s, ok := v.(string); ok {
			if tv, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return tv, nil
			}
		}
	case FieldDuration:
		if s, ok := v.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				return d, nil
			}
		}
	case FieldList, FieldSet:
		if in, ok := v.([]any); ok {
			out := make([]any, len(in))
			copy(out, in)
			return out, nil
		}
	case FieldMap:
		if in, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(in))
			for k, m := range in {
				out[k] = m
			}
			return out, nil
		}
	}
	return fail()
}

// EncodeRecord returns the full wire form of a record, keyed by field name.
func EncodeRecord(r *Record) (map[string]any, error) {
	out := make(map[string]any, len(r.class.fields))
	for i, f := range r.class.fields {
		wire, err := Encode(f, r.values[i])
		if err != nil {
			return nil, err
		}
		out[f.Name] = wire
	}
	return out, nil
}

// DecodeRecord materializes a clean record from its wire form.
func DecodeRecord(cls *Class, wire map[string]any) (*Record, error) {
	rec := cls.New()
	for i, f := range cls.fields {
		v, ok := wire[f.Name]
		if !ok {
			continue
		}
		decoded, err := Decode(f, v)
		if err != nil {
			return nil, err
		}
		rec.setRaw(i, decoded)
	}
	rec.Cleanse()
	return rec, nil
}

// opaqueEncode renders composite members. Recognized scalars pass through;
// anything else falls back to its JSON text, prefixed so Decode-side
// consumers can detect the opaque form.
func opaqueEncode(v any) any {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return v
	case int:
		return int64(v.(int))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("opaque:%v", v)
		}
		return "opaque:" + string(b)
	}
}

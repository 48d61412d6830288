/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package storage

import (
	"context"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
)

// NestedJoin is the fallback multi-class recall: it recalls each class in
// full through b, combines adjacent classes along their declared
// associations with a nested-loop equijoin, and filters the resulting
// tuples through e locally.
//
// It is correct for any backend but reads every involved class whole;
// stores with a native join should use it only as a last resort.
func NestedJoin(ctx context.Context, b Backend, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	if len(classes) == 0 {
		return nil, nil
	}

	first, err := b.Recall(ctx, classes[0], nil)
	if err != nil {
		return nil, err
	}
	rows := make([][]*record.Record, len(first))
	for i, r := range first {
		rows[i] = []*record.Record{r}
	}

	for i := 1; i < len(classes); i++ {
		far := classes[i]
		a, nearIdx := joinLink(classes[:i], far)
		if a == nil {
			return nil, &errors.NoPathError{From: classes[i-1].Name(), To: far.Name()}
		}
		farRecs, err := b.Recall(ctx, far, nil)
		if err != nil {
			return nil, err
		}
		var next [][]*record.Record
		for _, row := range rows {
			nearVal := row[nearIdx].Value(a.NearField)
			for _, fr := range farRecs {
				if valuesEqual(nearVal, fr.Value(a.FarField)) {
					joined := make([]*record.Record, len(row)+1)
					copy(joined, row)
					joined[len(row)] = fr
					next = append(next, joined)
				}
			}
		}
		rows = next
	}

	if e == nil || e.Matches() {
		return rows, nil
	}
	var out [][]*record.Record
	for _, row := range rows {
		args := make([]expr.Valuer, len(row))
		for i, r := range row {
			args[i] = r
		}
		ok, err := e.EvalTuple(args)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// joinLink finds an association connecting far to any already-joined
// class, preferring the most recently joined. It returns the descriptor
// oriented near-to-far plus the index of the near class in the row.
func joinLink(joined []*record.Class, far *record.Class) (*record.Association, int) {
	for i := len(joined) - 1; i >= 0; i-- {
		if a := joined[i].Association(far.Name()); a != nil {
			if a.Near == joined[i] {
				return a, i
			}
		}
	}
	return nil, -1
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return record.KeyString([]any{a}) == record.KeyString([]any{b})
}

// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package sortmerge implements colex's blocking Sort (via external
// merge sort), sort-merge Join, and streaming Distinct operators
// (spec.md §4.I). Rows cross the chunk/row boundary as a plain Row ([]
// any, one element per schema column) once a blocking operator needs
// to reorder or compare across chunk boundaries; everything upstream
// of these operators stays columnar.
//
// The external sort's k-way merge is grounded on the teacher's
// heap.PopSlice/PushSlice generic min-heap (heap/heap.go), the same
// primitive the teacher's sorting.Ktop uses for its top-k heap.
package sortmerge

import (
	"fmt"
	"math"

	"github.com/colexdb/colex/schema"
)

// Row is one decoded record, with one element per column of the
// owning Schema, in schema order.
type Row []any

// RowsFromChunk decodes every row of c into a []Row, in c's schema
// order (which must match c.Schema's column order).
func RowsFromChunk(c *schema.Chunk) []Row {
	rows := make([]Row, c.RowCount)
	for r := 0; r < c.RowCount; r++ {
		row := make(Row, len(c.Columns))
		for ci := range c.Columns {
			row[ci] = decodeValue(&c.Columns[ci], r)
		}
		rows[r] = row
	}
	return rows
}

func decodeValue(v *schema.Vector, row int) any {
	if v.IsNull(row) {
		return nil
	}
	switch v.DType {
	case schema.String:
		return v.DecodeString(row)
	case schema.Int32:
		return v.Int32s[row]
	case schema.Float64:
		return v.Float64s[row]
	case schema.Bool:
		return v.Bools[row]
	case schema.Date, schema.DateTime:
		return v.Int64s[row]
	default:
		return nil
	}
}

// RowsToChunk re-encodes rows (whose values must be in sc's column
// order) into a columnar Chunk.
func RowsToChunk(sc *schema.Schema, rows []Row) (*schema.Chunk, error) {
	n := len(rows)
	cols := make([]schema.Vector, sc.Len())
	var raw []byte

	for ci, c := range sc.Columns {
		v := schema.Vector{DType: c.DType}
		switch c.DType {
		case schema.Int32:
			v.Int32s = make([]int32, n)
		case schema.Float64:
			v.Float64s = make([]float64, n)
		case schema.Bool:
			v.Bools = make([]bool, n)
		case schema.Date, schema.DateTime:
			v.Int64s = make([]int64, n)
		case schema.String:
			v.Offsets = make([]uint32, n)
			v.Lengths = make([]uint32, n)
			v.NeedsUnescape = make([]bool, n)
		default:
			return nil, fmt.Errorf("sortmerge: unsupported dtype %s", c.DType)
		}

		for r, row := range rows {
			if ci >= len(row) {
				return nil, fmt.Errorf("sortmerge: row %d has %d values, schema has %d columns", r, len(row), sc.Len())
			}
			val := row[ci]
			if val == nil {
				v.SetNull(r, false)
				continue
			}
			switch c.DType {
			case schema.Int32:
				v.Int32s[r] = asInt32(val)
			case schema.Float64:
				v.Float64s[r] = asFloat64(val)
			case schema.Bool:
				v.Bools[r], _ = val.(bool)
			case schema.Date, schema.DateTime:
				v.Int64s[r] = asInt64(val)
			case schema.String:
				s, _ := val.(string)
				v.Offsets[r] = uint32(len(raw))
				v.Lengths[r] = uint32(len(s))
				raw = append(raw, s...)
			}
		}
		cols[ci] = v
	}
	return schema.NewChunk(sc, 0, n, cols, raw), nil
}

func asInt32(v any) int32 {
	switch x := v.(type) {
	case int32:
		return x
	case int64:
		return int32(x)
	case float64:
		return int32(x)
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return math.NaN()
	}
}

// compareValue orders two column values of the same dtype; nil (SQL
// null) sorts first, matching the teacher's sorting.Ordering default
// of NullsFirst.
func compareValue(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch x := a.(type) {
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	default:
		xf, yf := asFloat64(a), asFloat64(b)
		switch {
		case xf < yf:
			return -1
		case xf > yf:
			return 1
		default:
			return 0
		}
	}
}

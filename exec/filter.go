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

package exec

import (
	"math"
	"strings"

	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

// filterChunk returns a new chunk containing only c's rows for which f
// holds, preserving column order and dtypes.
func filterChunk(c *schema.Chunk, f *plan.Filter) (*schema.Chunk, error) {
	v := c.Column(f.Column)
	if v == nil {
		return selectRows(c, make([]bool, c.RowCount), 0) // a missing column never matches; caller's plan validated this already
	}

	keep := make([]bool, c.RowCount)
	n := 0
	for row := 0; row < c.RowCount; row++ {
		if evalFilter(v, f, row) {
			keep[row] = true
			n++
		}
	}
	if n == c.RowCount {
		return c, nil
	}
	return selectRows(c, keep, n)
}

func evalFilter(v *schema.Vector, f *plan.Filter, row int) bool {
	switch f.Op {
	case plan.In, plan.NotIn:
		list, _ := f.Value.([]any)
		matched := false
		for _, item := range list {
			if valueEquals(v, row, item) {
				matched = true
				break
			}
		}
		if f.Op == plan.In {
			return matched
		}
		return !matched
	case plan.Contains:
		if v.DType != schema.String || v.IsNull(row) {
			return false
		}
		want, _ := f.Value.(string)
		return strings.Contains(v.DecodeString(row), want)
	default:
		return compareToFilterValue(v, row, f.Value, f.Op)
	}
}

func valueEquals(v *schema.Vector, row int, want any) bool {
	if v.IsNull(row) {
		return want == nil
	}
	if v.DType == schema.String {
		s, ok := want.(string)
		return ok && v.DecodeString(row) == s
	}
	return toFloat(want) == v.Float64At(row)
}

func compareToFilterValue(v *schema.Vector, row int, want any, op plan.CompareOp) bool {
	if v.IsNull(row) {
		return false
	}
	if v.DType == schema.String {
		s, _ := want.(string)
		return compareStrings(v.DecodeString(row), s, op)
	}
	return compareFloats(v.Float64At(row), toFloat(want), op)
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func compareStrings(a, b string, op plan.CompareOp) bool {
	switch op {
	case plan.Eq:
		return a == b
	case plan.Neq:
		return a != b
	case plan.Lt:
		return a < b
	case plan.Lte:
		return a <= b
	case plan.Gt:
		return a > b
	case plan.Gte:
		return a >= b
	default:
		return false
	}
}

func compareFloats(a, b float64, op plan.CompareOp) bool {
	switch op {
	case plan.Eq:
		return a == b
	case plan.Neq:
		return a != b
	case plan.Lt:
		return a < b
	case plan.Lte:
		return a <= b
	case plan.Gt:
		return a > b
	case plan.Gte:
		return a >= b
	default:
		return false
	}
}

// selectRows builds a new chunk containing exactly the rows marked in
// keep (n of them), preserving c's schema and column dtypes.
func selectRows(c *schema.Chunk, keep []bool, n int) (*schema.Chunk, error) {
	cols := make([]schema.Vector, len(c.Columns))
	var raw []byte
	for ci := range c.Columns {
		src := &c.Columns[ci]
		dst := schema.Vector{DType: src.DType}
		switch src.DType {
		case schema.Int32:
			dst.Int32s = make([]int32, 0, n)
		case schema.Float64:
			dst.Float64s = make([]float64, 0, n)
		case schema.Bool:
			dst.Bools = make([]bool, 0, n)
		case schema.Date, schema.DateTime:
			dst.Int64s = make([]int64, 0, n)
		case schema.String:
			dst.Offsets = make([]uint32, 0, n)
			dst.Lengths = make([]uint32, 0, n)
			dst.NeedsUnescape = make([]bool, 0, n)
		}

		out := 0
		for row := 0; row < c.RowCount; row++ {
			if !keep[row] {
				continue
			}
			switch src.DType {
			case schema.Int32:
				dst.Int32s = append(dst.Int32s, src.Int32s[row])
			case schema.Float64:
				dst.Float64s = append(dst.Float64s, src.Float64s[row])
			case schema.Bool:
				dst.Bools = append(dst.Bools, src.Bools[row])
			case schema.Date, schema.DateTime:
				dst.Int64s = append(dst.Int64s, src.Int64s[row])
			case schema.String:
				s := src.RawString(row)
				dst.Offsets = append(dst.Offsets, uint32(len(raw)))
				dst.Lengths = append(dst.Lengths, uint32(len(s)))
				dst.NeedsUnescape = append(dst.NeedsUnescape, src.NeedsUnescape[row])
				raw = append(raw, s...)
			}
			if src.NullBitmap != nil {
				dst.SetNull(out, !src.IsNull(row))
			}
			out++
		}
		cols[ci] = dst
	}
	return schema.NewChunk(c.Schema, c.StartRow, n, cols, raw), nil
}

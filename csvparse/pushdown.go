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

package csvparse

import (
	"bytes"

	"github.com/colexdb/colex/schema"
)

// FieldPredicate is a single scalar comparison evaluated against a raw
// (undecoded) field's bytes, used by the executor to filter rows
// before any typed storage is allocated for non-predicate columns
// (scan-time predicate pushdown, per spec.md §4.G).
type FieldPredicate struct {
	FieldIndex int // index into columnOrder
	DType      schema.DType
	Op         string // ==, !=, <, <=, >, >=, contains
	Str        string
	Num        float64
}

// RowOffsets locates, for a single row starting at pos, the
// [off,len) span of every field present in the row (nfields only
// presizes the result), without allocating a Chunk. It returns the
// position just past the row.
func RowOffsets(data []byte, pos int, delim byte, nfields int) (spans [][2]int, next int) {
	spans = make([][2]int, 0, nfields)
	for {
		_, off, ln, _, nx, isLast := scanField(data, pos, delim)
		spans = append(spans, [2]int{off, ln})
		pos = nx
		if isLast {
			break
		}
	}
	return spans, pos
}

// EvalPredicates reports whether the row whose field spans are given
// by spans satisfies every predicate in preds. Missing trailing fields
// are treated as the dtype's zero value / empty string, matching
// ParseChunkBytes's defaulting behavior.
func EvalPredicates(data []byte, spans [][2]int, preds []FieldPredicate) bool {
	for _, p := range preds {
		var off, ln int
		if p.FieldIndex < len(spans) {
			off, ln = spans[p.FieldIndex][0], spans[p.FieldIndex][1]
		}
		text := data[off : off+ln]
		if !evalOne(text, p) {
			return false
		}
	}
	return true
}

func evalOne(text []byte, p FieldPredicate) bool {
	if p.DType == schema.String {
		return evalStringOp(string(text), p.Op, p.Str)
	}
	var v float64
	switch p.DType {
	case schema.Int32:
		v = float64(parseInt32(text))
	case schema.Float64:
		v = parseFloat64(text)
	case schema.Date, schema.DateTime:
		v = float64(parseInt64(text))
	case schema.Bool:
		if parseBool(text) {
			v = 1
		}
	}
	return evalNumOp(v, p.Op, p.Num)
}

func evalStringOp(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	case "<":
		return v < want
	case "<=":
		return v <= want
	case ">":
		return v > want
	case ">=":
		return v >= want
	case "contains":
		return bytes.Contains([]byte(v), []byte(want))
	default:
		return false
	}
}

func evalNumOp(v float64, op string, want float64) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	case "<":
		return v < want
	case "<=":
		return v <= want
	case ">":
		return v > want
	case ">=":
		return v >= want
	default:
		return false
	}
}

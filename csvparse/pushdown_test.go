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
	"testing"

	"github.com/colexdb/colex/schema"
)

func TestRowOffsetsAndEvalPredicates(t *testing.T) {
	data := []byte("1,alice,9.5\n2,bob,3.25\n")
	spans1, next1 := RowOffsets(data, 0, ',', 3)
	if len(spans1) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans1))
	}
	row0 := data[:next1]
	if string(row0) != "1,alice,9.5\n" {
		t.Errorf("got row0=%q", row0)
	}

	preds := []FieldPredicate{{FieldIndex: 0, DType: schema.Int32, Op: ">", Num: 1}}
	if EvalPredicates(data, spans1, preds) {
		t.Error("row 0 (id=1) should fail id > 1")
	}

	spans2, _ := RowOffsets(data, next1, ',', 3)
	if !EvalPredicates(data, spans2, preds) {
		t.Error("row 1 (id=2) should satisfy id > 1")
	}
}

func TestEvalPredicatesStringOps(t *testing.T) {
	data := []byte("alice,bob\n")
	spans, _ := RowOffsets(data, 0, ',', 2)

	cases := []struct {
		pred FieldPredicate
		want bool
	}{
		{FieldPredicate{FieldIndex: 0, DType: schema.String, Op: "==", Str: "alice"}, true},
		{FieldPredicate{FieldIndex: 0, DType: schema.String, Op: "!=", Str: "alice"}, false},
		{FieldPredicate{FieldIndex: 1, DType: schema.String, Op: "contains", Str: "o"}, true},
		{FieldPredicate{FieldIndex: 0, DType: schema.String, Op: "<", Str: "bob"}, true},
	}
	for _, c := range cases {
		if got := EvalPredicates(data, spans, []FieldPredicate{c.pred}); got != c.want {
			t.Errorf("pred %+v: got %v, want %v", c.pred, got, c.want)
		}
	}
}

func TestEvalPredicatesMissingTrailingField(t *testing.T) {
	data := []byte("1,alice\n")
	spans, _ := RowOffsets(data, 0, ',', 3) // row has only 2 fields but we ask for 3

	pred := FieldPredicate{FieldIndex: 2, DType: schema.Float64, Op: "==", Num: 0}
	if !EvalPredicates(data, spans, []FieldPredicate{pred}) {
		t.Error("a missing trailing field should evaluate as the dtype's zero value")
	}
}

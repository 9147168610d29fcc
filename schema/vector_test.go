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

package schema

import (
	"math"
	"testing"
)

func TestVectorLen(t *testing.T) {
	v := Vector{DType: Int32, Int32s: []int32{1, 2, 3}}
	if v.Len() != 3 {
		t.Errorf("got %d, want 3", v.Len())
	}
	s := Vector{DType: String, Offsets: []uint32{0, 1, 2}}
	if s.Len() != 3 {
		t.Errorf("got %d, want 3", s.Len())
	}
}

func TestVectorNullBitmap(t *testing.T) {
	v := Vector{DType: Int32, Int32s: []int32{1, 2, 3}}
	if v.IsNull(1) {
		t.Error("no bitmap means never null")
	}
	v.SetNull(1, false)
	if !v.IsNull(1) {
		t.Error("expected row 1 to be null after SetNull(1, false)")
	}
	if v.IsNull(0) || v.IsNull(2) {
		t.Error("only row 1 should be marked null")
	}
	v.SetNull(1, true)
	if v.IsNull(1) {
		t.Error("expected row 1 to be present again")
	}
}

func TestVectorDecodeString(t *testing.T) {
	fields := []string{"plain", `has""quote`, ""}
	var raw []byte
	offsets := make([]uint32, len(fields))
	lengths := make([]uint32, len(fields))
	for i, f := range fields {
		offsets[i] = uint32(len(raw))
		lengths[i] = uint32(len(f))
		raw = append(raw, f...)
	}
	v := Vector{
		DType:         String,
		Bytes:         raw,
		Offsets:       offsets,
		Lengths:       lengths,
		NeedsUnescape: []bool{false, true, false},
	}
	if got := v.DecodeString(0); got != "plain" {
		t.Errorf("got %q, want %q", got, "plain")
	}
	if got := v.DecodeString(1); got != `has"quote` {
		t.Errorf("got %q, want %q", got, `has"quote`)
	}
	if got := string(v.RawString(1)); got != `has""quote` {
		t.Errorf("RawString got %q", got)
	}
	if got := v.DecodeString(2); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestVectorSizeBytes(t *testing.T) {
	v := Vector{DType: Float64, Float64s: []float64{1, 2, 3, 4}}
	if got := VectorSizeBytes(&v); got != 32 {
		t.Errorf("got %d, want 32", got)
	}
	s := Vector{DType: String, Offsets: []uint32{0, 1}, Lengths: []uint32{0, 1}, NeedsUnescape: []bool{false, false}}
	if got := VectorSizeBytes(&s); got != 18 {
		t.Errorf("got %d, want 18 (2*4 + 2*4 + 2)", got)
	}
}

func TestVectorFloat64At(t *testing.T) {
	cases := []struct {
		v    Vector
		i    int
		want float64
	}{
		{Vector{DType: Int32, Int32s: []int32{7}}, 0, 7},
		{Vector{DType: Float64, Float64s: []float64{1.5}}, 0, 1.5},
		{Vector{DType: Date, Int64s: []int64{100}}, 0, 100},
	}
	for _, c := range cases {
		if got := c.v.Float64At(c.i); got != c.want {
			t.Errorf("got %v, want %v", got, c.want)
		}
	}
	boolVec := Vector{DType: Bool, Bools: []bool{true}}
	if got := boolVec.Float64At(0); !math.IsNaN(got) {
		t.Errorf("got %v, want NaN for a Bool vector", got)
	}
}

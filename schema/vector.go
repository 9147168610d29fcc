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

import "math"

// Vector is a single column's element store within a Chunk. Exactly
// one of the typed buffers below is populated, selected by DType.
//
// String vectors never own their bytes: Offsets/Lengths index into
// Bytes, which in turn is always the Chunk's own backing buffer (see
// Chunk.raw). A Vector must not outlive the Chunk it was produced
// from unless its string data has been decoded into an owned buffer.
type Vector struct {
	DType DType

	// Numeric/Bool storage.
	Int32s   []int32
	Float64s []float64
	Bools    []bool
	// Date/DateTime storage (epoch-days / epoch-ms).
	Int64s []int64

	// String storage: indices into Bytes.
	Bytes         []byte
	Offsets       []uint32
	Lengths       []uint32
	NeedsUnescape []bool

	// NullBitmap is an optional, little-endian-bit-packed companion
	// vector: bit set means "value present". Nil means no column in
	// this chunk requested nullability tracking.
	NullBitmap []byte
}

// Len returns the vector's row count.
func (v *Vector) Len() int {
	switch v.DType {
	case Int32:
		return len(v.Int32s)
	case Float64:
		return len(v.Float64s)
	case Bool:
		return len(v.Bools)
	case Date, DateTime:
		return len(v.Int64s)
	case String:
		return len(v.Offsets)
	default:
		return 0
	}
}

// IsNull reports whether row i is null, when a null bitmap is present.
func (v *Vector) IsNull(i int) bool {
	if v.NullBitmap == nil {
		return false
	}
	byteIdx := i / 8
	bit := uint(i % 8)
	return v.NullBitmap[byteIdx]&(1<<bit) == 0
}

// SetNull clears (or sets, if present=true) the presence bit for row
// i, lazily allocating the bitmap (all-present) on first use.
func (v *Vector) SetNull(i int, present bool) {
	if v.NullBitmap == nil {
		v.NullBitmap = make([]byte, (cap(v.Offsets)+len(v.Int32s)+len(v.Float64s)+len(v.Bools)+len(v.Int64s)+7)/8+1)
		for j := range v.NullBitmap {
			v.NullBitmap[j] = 0xff
		}
	}
	byteIdx := i / 8
	bit := uint(i % 8)
	if present {
		v.NullBitmap[byteIdx] |= 1 << bit
	} else {
		v.NullBitmap[byteIdx] &^= 1 << bit
	}
}

// RawString returns the raw (possibly still-escaped) byte slice for
// string row i. Decode must be applied by the caller if
// NeedsUnescape[i] is set.
func (v *Vector) RawString(i int) []byte {
	off, ln := v.Offsets[i], v.Lengths[i]
	return v.Bytes[off : off+ln]
}

// DecodeString returns the fully-decoded string value for row i,
// replacing `""` escapes with `"` when needed.
func (v *Vector) DecodeString(i int) string {
	raw := v.RawString(i)
	if !v.NeedsUnescape[i] {
		return string(raw)
	}
	out := make([]byte, 0, len(raw))
	for j := 0; j < len(raw); j++ {
		out = append(out, raw[j])
		if raw[j] == '"' && j+1 < len(raw) && raw[j+1] == '"' {
			j++
		}
	}
	return string(out)
}

// VectorSizeBytes returns the backing-buffer bytes v contributes,
// excluding the shared Bytes arena (counted once per chunk by the
// caller). Exposed for callers (e.g. package cache) that need to
// estimate a chunk's cost before a Chunk value exists.
func VectorSizeBytes(v *Vector) int64 { return v.sizeBytes() }

// sizeBytes returns the backing-buffer bytes this vector contributes,
// excluding the shared Bytes arena (counted once per chunk by the
// caller).
func (v *Vector) sizeBytes() int64 {
	switch v.DType {
	case Int32:
		return int64(len(v.Int32s)) * 4
	case Float64:
		return int64(len(v.Float64s)) * 8
	case Bool:
		return int64(len(v.Bools)) * 1
	case Date, DateTime:
		return int64(len(v.Int64s)) * 8
	case String:
		return int64(len(v.Offsets))*4 + int64(len(v.Lengths))*4 + int64(len(v.NeedsUnescape))
	default:
		return 0
	}
}

// Float64At returns row i as a float64 regardless of the vector's
// underlying numeric dtype, for use by aggregates and comparisons
// that operate uniformly over Numeric columns.
func (v *Vector) Float64At(i int) float64 {
	switch v.DType {
	case Int32:
		return float64(v.Int32s[i])
	case Float64:
		return v.Float64s[i]
	case Date, DateTime:
		return float64(v.Int64s[i])
	default:
		return math.NaN()
	}
}

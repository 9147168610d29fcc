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

// Package rowkey computes a fixed-width 128-bit fingerprint of a row's
// column values, used by package sortmerge for streaming Distinct.
// Fingerprints are keyed
// with a fixed, process-local siphash key so they're comparable across
// chunks of the same query but are not meant to be persisted or
// compared across process restarts.
package rowkey

import (
	"math"

	"github.com/dchest/siphash"

	"github.com/colexdb/colex/schema"
)

// Key is a 128-bit row fingerprint: two independent 64-bit siphash
// outputs computed from the same packed byte buffer, under distinct
// keys, which keeps collision probability negligible for streaming
// Distinct's purposes without carrying the whole row around.
type Key struct {
	Lo, Hi uint64
}

// the two siphash keys are fixed and arbitrary: rowkey never persists
// a Key outside of one query's lifetime, so stability across builds
// isn't required, only collision resistance within a run.
const (
	k0lo, k1lo = 0x9ae16a3b2f90404f, 0xc2b2ae3d27d4eb4f
	k0hi, k1hi = 0x165667b19e3779f9, 0x85ebca6b27d4eb2f
)

// Of computes the fingerprint of row across cols, in column order.
// Null values contribute a single zero byte rather than being skipped,
// so ("", null) and (null, "") never collide.
func Of(cols []*schema.Vector, row int) Key {
	buf := pack(cols, row)
	return Key{
		Lo: siphash.Hash(k0lo, k1lo, buf),
		Hi: siphash.Hash(k0hi, k1hi, buf),
	}
}

func pack(cols []*schema.Vector, row int) []byte {
	var buf []byte
	for i, v := range cols {
		if i > 0 {
			buf = append(buf, 0xff)
		}
		buf = appendValue(buf, v, row)
	}
	return buf
}

func appendValue(buf []byte, v *schema.Vector, row int) []byte {
	if v.IsNull(row) {
		return append(buf, 0)
	}
	switch v.DType {
	case schema.String:
		return append(buf, v.RawString(row)...)
	case schema.Int32:
		x := v.Int32s[row]
		return append(buf, byte(x), byte(x>>8), byte(x>>16), byte(x>>24))
	case schema.Float64:
		bits := math.Float64bits(v.Float64s[row])
		return appendUint64(buf, bits)
	case schema.Bool:
		if v.Bools[row] {
			return append(buf, 1)
		}
		return append(buf, 0)
	case schema.Date, schema.DateTime:
		return appendUint64(buf, uint64(v.Int64s[row]))
	default:
		return buf
	}
}

func appendUint64(buf []byte, x uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(x>>(8*i)))
	}
	return buf
}

// Set is a streaming hash-set of Keys, used by Distinct to track rows
// already emitted without retaining the rows themselves.
type Set struct {
	m map[Key]struct{}
}

// NewSet constructs an empty Set.
func NewSet() *Set { return &Set{m: make(map[Key]struct{})} }

// Add reports whether k was newly added (true) or already present
// (false).
func (s *Set) Add(k Key) bool {
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = struct{}{}
	return true
}

// Len returns the number of distinct keys seen so far.
func (s *Set) Len() int { return len(s.m) }

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

// Package groupby implements colex's streaming GroupBy operator
// (spec.md §4.H): rows are fed in one chunk at a time, each row's key
// columns are packed into a single byte string and hashed into an
// open-addressing table with linear probing, and each group carries
// struct-of-arrays aggregate accumulators updated in place.
//
// This mirrors, in spirit, the teacher's vm.HashAggregate /  aggtable
// (vm/hash_aggregate.go): a hash keyed on the packed "by" columns,
// with a side table of per-group aggregate state addressed by the
// group's table slot. colex's table is a plain Go implementation
// (no SIMD radix tree) since it runs one row at a time off parsed
// columnar chunks rather than off a vectorized byte-code program.
package groupby

import (
	"fmt"
	"math"

	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

const (
	initialBuckets = 64
	maxLoadFactor  = 0.75
	keySep         = 0xff

	// capacityWarnBuckets is the bucket count past which a growing
	// Table logs a capacity warning: a GroupBy this wide on distinct
	// keys is usually closer to a Distinct than an aggregate.
	capacityWarnBuckets = 1 << 20
)

// Logger is the minimal logging contract non-fatal conditions are
// reported through; see package cache's Logger doc for the shared
// rationale. A nil Logger is valid.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// Table accumulates GroupBy state across any number of input chunks.
// It is not safe for concurrent use.
type Table struct {
	keys     []string       // Keys, by name, in the order the output groups by
	keyDType []schema.DType // parallel to keys
	aggs     []plan.Agg

	// open-addressing table: buckets[h] is the group index, or -1 if
	// empty. keys are compared against groupKey[gid] for collision checks.
	buckets  []int32
	groupKey [][]byte // packed key bytes for each group, indexed by group id
	keyVals  [][]any  // decoded key column values, one []any per group
	count    int

	acc []*aggAccum // one per agg, parallel to aggs

	// Logger reports capacity warnings (the table growing past
	// capacityWarnBuckets) when non-nil. Left unset, the table is
	// silent.
	Logger Logger
}

// aggAccum is one aggregate's struct-of-arrays state across all
// groups, indexed by group id.
type aggAccum struct {
	fn   plan.AggFunc
	dt   schema.DType // output dtype
	n    []int32      // rows seen, used for Count and Mean's denominator
	sum  []float64
	min  []float64
	max  []float64
	strv []string // First/Last over a String source column
	numv []float64
}

// New constructs a Table for the given keys/aggs. srcSchema is the
// input chunk schema, used to learn each agg's source column dtype.
func New(keys []string, aggs []plan.Agg, srcSchema *schema.Schema) (*Table, error) {
	t := &Table{
		keys:    keys,
		aggs:    aggs,
		buckets: newBuckets(initialBuckets),
	}
	t.keyDType = make([]schema.DType, len(keys))
	for i, k := range keys {
		dt, ok := srcSchema.DTypeOf(k)
		if !ok {
			return nil, fmt.Errorf("groupby: key column %q not found", k)
		}
		t.keyDType[i] = dt
	}
	t.acc = make([]*aggAccum, len(aggs))
	for i, a := range aggs {
		dt, err := a.OutputDType(srcSchema)
		if err != nil {
			return nil, err
		}
		t.acc[i] = &aggAccum{fn: a.Func, dt: dt}
	}
	return t, nil
}

func newBuckets(n int) []int32 {
	b := make([]int32, n)
	for i := range b {
		b[i] = -1
	}
	return b
}

// Ingest folds every row of c into the table's running groups.
func (t *Table) Ingest(c *schema.Chunk) error {
	keyVecs := make([]*schema.Vector, len(t.keys))
	for i, k := range t.keys {
		v := c.Column(k)
		if v == nil {
			return fmt.Errorf("groupby: key column %q not found", k)
		}
		keyVecs[i] = v
	}
	aggVecs := make([]*schema.Vector, len(t.aggs))
	for i, a := range t.aggs {
		if a.Func == plan.Count && a.Column == "" {
			continue // count(*) touches no source column
		}
		v := c.Column(a.Column)
		if v == nil {
			return fmt.Errorf("groupby: aggregate column %q not found", a.Column)
		}
		aggVecs[i] = v
	}

	for row := 0; row < c.RowCount; row++ {
		key := packKey(keyVecs, row)
		gid := t.findOrCreate(key, keyVecs, row)
		for i, a := range t.aggs {
			t.acc[i].update(a, aggVecs[i], row, gid)
		}
	}
	return nil
}

func decodeKeyVal(v *schema.Vector, row int) any {
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

// packKey concatenates each key column's byte representation for row,
// separated by keySep so e.g. ("ab","c") and ("a","bc") never collide.
func packKey(vecs []*schema.Vector, row int) []byte {
	var buf []byte
	for i, v := range vecs {
		if i > 0 {
			buf = append(buf, keySep)
		}
		buf = appendKeyPart(buf, v, row)
	}
	return buf
}

func appendKeyPart(buf []byte, v *schema.Vector, row int) []byte {
	if v.IsNull(row) {
		return append(buf, 0) // distinct from any encoded value below
	}
	buf = append(buf, 1) // non-null marker, so no value packs like a null
	switch v.DType {
	case schema.String:
		return append(buf, v.RawString(row)...)
	case schema.Int32:
		// spec.md §4.H: numeric keys are packed as the 8-byte
		// little-endian image of their f64 cast, so e.g. an Int32 key
		// and a Float64 key carrying the same mathematical value hash
		// and compare equal.
		bits := math.Float64bits(float64(v.Int32s[row]))
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(bits>>(8*i)))
		}
		return buf
	case schema.Float64:
		bits := math.Float64bits(v.Float64s[row])
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(bits>>(8*i)))
		}
		return buf
	case schema.Bool:
		if v.Bools[row] {
			return append(buf, 1)
		}
		return append(buf, 0)
	case schema.Date, schema.DateTime:
		x := v.Int64s[row]
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(x>>(8*i)))
		}
		return buf
	default:
		return buf
	}
}

// fnv1a32 mixes key bytes into a 32-bit hash; the teacher's vm package
// reaches for AES-based hashing for vectorized throughput, but a
// scalar FNV-1a is the idiomatic choice for colex's one-row-at-a-time
// table.
func fnv1a32(b []byte) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime
	}
	return h
}

// findOrCreate returns the group id for key, creating a new group (and
// growing the table, if needed) when key hasn't been seen before.
// keyVecs/row supply the decoded key values to retain for this group's
// output row, used only when a new group is created.
func (t *Table) findOrCreate(key []byte, keyVecs []*schema.Vector, row int) int {
	if float64(t.count+1) > float64(len(t.buckets))*maxLoadFactor {
		t.grow()
	}
	mask := uint32(len(t.buckets) - 1)
	h := fnv1a32(key) & mask
	for {
		gid := t.buckets[h]
		if gid == -1 {
			newGID := t.count
			t.buckets[h] = int32(newGID)
			t.groupKey = append(t.groupKey, append([]byte(nil), key...))
			vals := make([]any, len(keyVecs))
			for i, v := range keyVecs {
				vals[i] = decodeKeyVal(v, row)
			}
			t.keyVals = append(t.keyVals, vals)
			t.count++
			for _, a := range t.acc {
				a.grow()
			}
			return newGID
		}
		if bytesEqual(t.groupKey[gid], key) {
			return int(gid)
		}
		h = (h + 1) & mask
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// grow doubles the bucket count and rehashes every existing group.
func (t *Table) grow() {
	old := t.buckets
	t.buckets = newBuckets(len(old) * 2)
	mask := uint32(len(t.buckets) - 1)
	for gid, key := range t.groupKey {
		h := fnv1a32(key) & mask
		for t.buckets[h] != -1 {
			h = (h + 1) & mask
		}
		t.buckets[h] = int32(gid)
	}
	if len(t.buckets) >= capacityWarnBuckets && len(old) < capacityWarnBuckets {
		logf(t.Logger, "groupby: table grew to %d buckets (%d groups) for keys %v", len(t.buckets), t.count, t.keys)
	}
}

func (a *aggAccum) grow() {
	a.n = append(a.n, 0)
	a.sum = append(a.sum, 0)
	a.min = append(a.min, 0)
	a.max = append(a.max, 0)
	a.strv = append(a.strv, "")
	a.numv = append(a.numv, 0)
}

func (a *aggAccum) update(agg plan.Agg, v *schema.Vector, row, gid int) {
	switch a.fn {
	case plan.Count:
		if v == nil || !v.IsNull(row) {
			a.n[gid]++
		}
		return
	}
	if v == nil || v.IsNull(row) {
		return
	}
	switch a.fn {
	case plan.Sum:
		a.sum[gid] += v.Float64At(row)
	case plan.Mean:
		a.sum[gid] += v.Float64At(row)
		a.n[gid]++
	case plan.Min:
		x := v.Float64At(row)
		if a.n[gid] == 0 || x < a.min[gid] {
			a.min[gid] = x
		}
		a.n[gid]++
	case plan.Max:
		x := v.Float64At(row)
		if a.n[gid] == 0 || x > a.max[gid] {
			a.max[gid] = x
		}
		a.n[gid]++
	case plan.First:
		if a.n[gid] == 0 {
			a.store(gid, v, row)
		}
		a.n[gid]++
	case plan.Last:
		a.store(gid, v, row)
		a.n[gid]++
	}
}

func (a *aggAccum) store(gid int, v *schema.Vector, row int) {
	switch v.DType {
	case schema.String:
		a.strv[gid] = v.DecodeString(row)
	case schema.Bool:
		if v.Bools[row] {
			a.numv[gid] = 1
		} else {
			a.numv[gid] = 0
		}
	default:
		a.numv[gid] = v.Float64At(row)
	}
}

// Groups returns the number of distinct groups accumulated so far.
func (t *Table) Groups() int { return t.count }

// Finalize decodes every accumulated group into a single output chunk
// matching outSchema (as produced by (*plan.GroupBy).OutputSchema):
// key columns first, in Keys order, followed by one column per Agg in
// order. Group order is the order groups were first seen.
func (t *Table) Finalize(outSchema *schema.Schema) (*schema.Chunk, error) {
	n := t.count
	cols := make([]schema.Vector, outSchema.Len())
	var strBuf []byte

	for ki, name := range t.keys {
		dt := t.keyDType[ki]
		v := schema.Vector{DType: dt}
		switch dt {
		case schema.Int32:
			v.Int32s = make([]int32, n)
			for g := 0; g < n; g++ {
				if x, ok := t.keyVals[g][ki].(int32); ok {
					v.Int32s[g] = x
				}
			}
		case schema.Float64:
			v.Float64s = make([]float64, n)
			for g := 0; g < n; g++ {
				if x, ok := t.keyVals[g][ki].(float64); ok {
					v.Float64s[g] = x
				}
			}
		case schema.Bool:
			v.Bools = make([]bool, n)
			for g := 0; g < n; g++ {
				if x, ok := t.keyVals[g][ki].(bool); ok {
					v.Bools[g] = x
				}
			}
		case schema.Date, schema.DateTime:
			v.Int64s = make([]int64, n)
			for g := 0; g < n; g++ {
				if x, ok := t.keyVals[g][ki].(int64); ok {
					v.Int64s[g] = x
				}
			}
		case schema.String:
			v.Offsets = make([]uint32, n)
			v.Lengths = make([]uint32, n)
			v.NeedsUnescape = make([]bool, n)
			for g := 0; g < n; g++ {
				s, _ := t.keyVals[g][ki].(string)
				v.Offsets[g] = uint32(len(strBuf))
				v.Lengths[g] = uint32(len(s))
				strBuf = append(strBuf, s...)
			}
		}
		idx := outSchema.IndexOf(name)
		if idx < 0 {
			return nil, fmt.Errorf("groupby: output schema missing key column %q", name)
		}
		cols[idx] = v
	}

	for ai, agg := range t.aggs {
		acc := t.acc[ai]
		idx := outSchema.IndexOf(agg.OutName)
		if idx < 0 {
			return nil, fmt.Errorf("groupby: output schema missing aggregate column %q", agg.OutName)
		}
		cols[idx] = acc.finalizeVector(n, &strBuf)
	}

	return schema.NewChunk(outSchema, 0, n, cols, strBuf), nil
}

func (a *aggAccum) finalizeVector(n int, strBuf *[]byte) schema.Vector {
	switch a.dt {
	case schema.Int32:
		v := schema.Vector{DType: schema.Int32, Int32s: make([]int32, n)}
		for g := 0; g < n; g++ {
			if a.fn == plan.Count {
				v.Int32s[g] = a.value(g)
			} else {
				v.Int32s[g] = int32(a.floatValue(g))
			}
		}
		return v
	case schema.String:
		v := schema.Vector{DType: schema.String,
			Offsets: make([]uint32, n), Lengths: make([]uint32, n), NeedsUnescape: make([]bool, n)}
		for g := 0; g < n; g++ {
			s := a.strv[g]
			v.Offsets[g] = uint32(len(*strBuf))
			v.Lengths[g] = uint32(len(s))
			*strBuf = append(*strBuf, s...)
		}
		return v
	case schema.Bool:
		v := schema.Vector{DType: schema.Bool, Bools: make([]bool, n)}
		for g := 0; g < n; g++ {
			v.Bools[g] = a.floatValue(g) != 0
		}
		return v
	case schema.Date, schema.DateTime:
		v := schema.Vector{DType: a.dt, Int64s: make([]int64, n)}
		for g := 0; g < n; g++ {
			v.Int64s[g] = int64(a.floatValue(g))
		}
		return v
	default:
		v := schema.Vector{DType: schema.Float64, Float64s: make([]float64, n)}
		for g := 0; g < n; g++ {
			v.Float64s[g] = a.floatValue(g)
		}
		return v
	}
}

// value returns an Int32-typed result (Count only).
func (a *aggAccum) value(g int) int32 { return a.n[g] }

func (a *aggAccum) floatValue(g int) float64 {
	switch a.fn {
	case plan.Sum:
		return a.sum[g]
	case plan.Mean:
		if a.n[g] == 0 {
			return 0
		}
		return a.sum[g] / float64(a.n[g])
	case plan.Min:
		return a.min[g]
	case plan.Max:
		return a.max[g]
	case plan.First, plan.Last:
		return a.numv[g]
	default:
		return 0
	}
}

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

package sortmerge

import (
	"fmt"

	"github.com/colexdb/colex/rowkey"
	"github.com/colexdb/colex/schema"
)

// Distinct is a streaming, order-preserving row deduplicator: unlike
// Sort, it never blocks on its whole input, since a siphash
// fingerprint set (package rowkey) is enough to recognize a repeat
// without retaining the row itself.
type Distinct struct {
	cols *schema.Schema
	idx  []int // column indices to fingerprint; nil means every column
	seen *rowkey.Set
}

// NewDistinct builds a Distinct deduplicating on subset (every column,
// if empty).
func NewDistinct(sc *schema.Schema, subset []string) (*Distinct, error) {
	d := &Distinct{cols: sc, seen: rowkey.NewSet()}
	if len(subset) == 0 {
		d.idx = make([]int, sc.Len())
		for i := range d.idx {
			d.idx[i] = i
		}
		return d, nil
	}
	d.idx = make([]int, len(subset))
	for i, name := range subset {
		pos := sc.IndexOf(name)
		if pos < 0 {
			return nil, fmt.Errorf("sortmerge: distinct column %q not found", name)
		}
		d.idx[i] = pos
	}
	return d, nil
}

// Filter returns a new chunk containing only c's rows not seen before
// (by this Distinct's running fingerprint set), preserving row order.
func (d *Distinct) Filter(c *schema.Chunk) (*schema.Chunk, error) {
	vecs := make([]*schema.Vector, len(d.idx))
	for i, pos := range d.idx {
		vecs[i] = &c.Columns[pos]
	}

	keep := make([]int, 0, c.RowCount)
	for row := 0; row < c.RowCount; row++ {
		k := rowkey.Of(vecs, row)
		if d.seen.Add(k) {
			keep = append(keep, row)
		}
	}
	if len(keep) == c.RowCount {
		return c, nil
	}

	rows := RowsFromChunk(c)
	filtered := make([]Row, len(keep))
	for i, r := range keep {
		filtered[i] = rows[r]
	}
	return RowsToChunk(c.Schema, filtered)
}

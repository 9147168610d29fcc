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

// Chunk is a contiguous row range parsed into columnar form and cached
// as a unit. Every Vector in Columns shares Chunk's raw byte buffer
// for its string data (if any); the buffer is counted once in
// SizeBytes no matter how many string columns reference it.
type Chunk struct {
	Schema   *Schema
	StartRow int
	RowCount int
	Columns  []Vector

	// raw is the shared backing buffer string vectors slice into.
	// It is retained here (not just in the vectors) so the chunk
	// can report a single shared size and so callers can confirm
	// a vector's data has been fully materialized before releasing
	// the chunk.
	raw []byte
}

// NewChunk builds a Chunk over cols, sharing raw as every string
// vector's backing buffer: each String-dtype column's Offsets/Lengths
// are expected to index into raw.
func NewChunk(sc *Schema, startRow, rowCount int, cols []Vector, raw []byte) *Chunk {
	if raw != nil {
		for i := range cols {
			if cols[i].DType == String {
				cols[i].Bytes = raw
			}
		}
	}
	return &Chunk{Schema: sc, StartRow: startRow, RowCount: rowCount, Columns: cols, raw: raw}
}

// SizeBytes is the sum of all typed buffer byte-lengths plus the
// shared byte backing store, counted once.
func (c *Chunk) SizeBytes() int64 {
	var total int64
	for i := range c.Columns {
		total += c.Columns[i].sizeBytes()
	}
	total += int64(len(c.raw))
	return total
}

// Column returns the vector for the named column, or nil if absent.
func (c *Chunk) Column(name string) *Vector {
	idx := c.Schema.IndexOf(name)
	if idx < 0 || idx >= len(c.Columns) {
		return nil
	}
	return &c.Columns[idx]
}

// Raw exposes the chunk's shared byte backing store, primarily so
// callers can memcpy (decode) string data out before the chunk is
// evicted.
func (c *Chunk) Raw() []byte { return c.raw }

// Project returns a new Chunk containing only the named columns (in
// that order), sharing the same backing buffer and row range as c.
func (c *Chunk) Project(names []string) (*Chunk, error) {
	sub, err := c.Schema.Project(names)
	if err != nil {
		return nil, err
	}
	cols := make([]Vector, len(names))
	for i, n := range names {
		cols[i] = *c.Column(n)
	}
	return NewChunk(sub, c.StartRow, c.RowCount, cols, c.raw), nil
}

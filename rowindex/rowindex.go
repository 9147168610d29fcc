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

// Package rowindex builds and serves the row-offset index: the byte
// offset of every data row in a CSV file, built by a single streaming
// scan. The index is immutable after construction and safely
// shareable across concurrent queries.
package rowindex

import (
	"bytes"
	"io"

	"github.com/colexdb/colex/colexerr"
)

// segmentCapacity bounds the size of a single offset segment's
// allocation, matching the "1,000,000 offsets per segment" figure
// spec.md gives as the example bound.
const segmentCapacity = 1_000_000

// scanWindow is the streaming read size while scanning for newlines.
const scanWindow = 32 << 20 // 32 MiB

// Index is a segmented array of byte offsets: offset[i] is the first
// byte of row i, and offset[rowCount] is the exclusive end of the last
// row (file size, or the byte after the last row's trailing newline).
type Index struct {
	segments [][]int64
	rowCount int
}

// RowCount returns the number of data rows covered by the index
// (after header handling and trailing-blank-line trimming).
func (idx *Index) RowCount() int { return idx.rowCount }

// GetRowOffset returns offset[i], the first byte of row i.
func (idx *Index) GetRowOffset(i int) (int64, error) {
	if i < 0 || i >= idx.rowCount {
		return 0, &colexerr.IndexOutOfBounds{Index: i, Bound: idx.rowCount}
	}
	return idx.get(i), nil
}

// GetRowsRange returns the half-open byte range [offset[i], offset[j])
// spanning rows [i, j). j == rowCount is valid and yields the file's
// logical end.
func (idx *Index) GetRowsRange(i, j int) (start, end int64, err error) {
	if i < 0 || i > idx.rowCount {
		return 0, 0, &colexerr.IndexOutOfBounds{Index: i, Bound: idx.rowCount}
	}
	if j < i || j > idx.rowCount {
		return 0, 0, &colexerr.IndexOutOfBounds{Index: j, Bound: idx.rowCount}
	}
	return idx.get(i), idx.get(j), nil
}

func (idx *Index) get(i int) int64 {
	seg, pos := i/segmentCapacity, i%segmentCapacity
	return idx.segments[seg][pos]
}

func (idx *Index) appendOffset(v int64) {
	seg := len(idx.segments) - 1
	if seg < 0 || len(idx.segments[seg]) == segmentCapacity {
		idx.segments = append(idx.segments, make([]int64, 0, segmentCapacity))
		seg++
	}
	idx.segments[seg] = append(idx.segments[seg], v)
}

func (idx *Index) lastOffset() int64 {
	return idx.get(idx.len() - 1)
}

func (idx *Index) len() int {
	if len(idx.segments) == 0 {
		return 0
	}
	return (len(idx.segments)-1)*segmentCapacity + len(idx.segments[len(idx.segments)-1])
}

func (idx *Index) truncate(n int) {
	seg, pos := n/segmentCapacity, n%segmentCapacity
	if pos == 0 {
		idx.segments = idx.segments[:seg]
		return
	}
	idx.segments = idx.segments[:seg+1]
	idx.segments[seg] = idx.segments[seg][:pos]
}

// Build scans src in fixed windows searching for newlines, recording
// the byte position just after every '\n' as a row-start offset. It
// pre-seeds offset 0, strips the header row's offset when hasHeader is
// set, trims trailing empty lines, and appends a final EOF-equivalent
// offset so GetRowsRange(i, rowCount) is always well-defined.
//
// src must support io.ReaderAt-style repeated sequential reads; Build
// consumes it via plain io.Reader semantics (a single forward pass).
func Build(src io.Reader, size int64, hasHeader bool) (*Index, error) {
	idx := &Index{}
	idx.appendOffset(0)

	buf := make([]byte, scanWindow)
	var pos int64
	var contentEnd int64 // one past the last byte that is not '\n' or '\r'
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for k := n - 1; k >= 0; k-- {
				if chunk[k] != '\n' && chunk[k] != '\r' {
					contentEnd = pos + int64(k) + 1
					break
				}
			}
			off := 0
			for {
				rel := bytes.IndexByte(chunk[off:], '\n')
				if rel < 0 {
					break
				}
				idx.appendOffset(pos + int64(off+rel) + 1)
				off += rel + 1
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &colexerr.IO{Path: "<stream>", Err: err}
		}
	}

	// idx.len() currently counts offset(0) plus one offset per '\n'
	// seen, i.e. len()-1 "newline-terminated lines" were observed.
	// Rows are delimited by consecutive offsets; the final offset
	// (EOF) is appended below if the file doesn't already end in
	// '\n'.
	if idx.lastOffset() != size {
		idx.appendOffset(size)
	}

	if hasHeader && idx.len() > 1 {
		// drop offset[0] (the header's start); row 0 of the data
		// now begins at what was offset[1].
		idx.segments = shiftLeft(idx.segments)
	}

	// trim trailing "rows" that start at or past the last non-newline
	// byte (trailing blank lines, or duplicate EOF offsets).
	for idx.len() >= 2 && idx.get(idx.len()-2) >= contentEnd {
		idx.truncate(idx.len() - 1)
	}

	idx.rowCount = idx.len() - 1
	if idx.rowCount < 0 {
		idx.rowCount = 0
	}
	return idx, nil
}

// shiftLeft drops the first element of a segmented offset array,
// re-packing subsequent segments so segment boundaries stay aligned
// to segmentCapacity.
func shiftLeft(segments [][]int64) [][]int64 {
	flat := make([]int64, 0)
	for _, seg := range segments {
		flat = append(flat, seg...)
	}
	if len(flat) == 0 {
		return segments
	}
	flat = flat[1:]
	out := make([][]int64, 0, len(segments))
	for len(flat) > 0 {
		n := segmentCapacity
		if n > len(flat) {
			n = len(flat)
		}
		seg := make([]int64, n, segmentCapacity)
		copy(seg, flat[:n])
		out = append(out, seg)
		flat = flat[n:]
	}
	return out
}

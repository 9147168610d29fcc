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
	"sort"

	"github.com/colexdb/colex/heap"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

// Sorter accumulates rows across any number of input chunks and
// produces them back out in sorted order, spilling to disk once the
// in-memory buffer exceeds runBytes (spec.md §4.I's external merge
// sort).
type Sorter struct {
	schema  *schema.Schema
	less    func(a, b Row) bool
	runBytes int64
	tmpDir  string

	buf      []Row
	bufBytes int64
	runs     []*runFile
}

// NewSorter constructs a Sorter ordering rows of sc by columns/dirs.
func NewSorter(sc *schema.Schema, columns []string, dirs []plan.Direction, runBytes int64, tmpDir string) (*Sorter, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		pos := sc.IndexOf(c)
		if pos < 0 {
			return nil, fmt.Errorf("sortmerge: sort column %q not found", c)
		}
		idx[i] = pos
	}
	less := func(a, b Row) bool {
		for i, pos := range idx {
			c := compareValue(a[pos], b[pos])
			if c == 0 {
				continue
			}
			if dirs[i] == plan.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	}
	if runBytes <= 0 {
		runBytes = plan.DefaultRunBytes
	}
	if tmpDir == "" {
		tmpDir = "."
	}
	return &Sorter{schema: sc, less: less, runBytes: runBytes, tmpDir: tmpDir}, nil
}

// AddChunk folds every row of c into the sorter's running buffer,
// spilling a sorted run to disk whenever the buffer's estimated size
// passes runBytes.
func (s *Sorter) AddChunk(c *schema.Chunk) error {
	s.buf = append(s.buf, RowsFromChunk(c)...)
	s.bufBytes += c.SizeBytes()
	if s.bufBytes >= s.runBytes {
		return s.spill()
	}
	return nil
}

func (s *Sorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	sort.SliceStable(s.buf, func(i, j int) bool { return s.less(s.buf[i], s.buf[j]) })
	rf, err := spillRun(s.tmpDir, s.buf)
	if err != nil {
		return err
	}
	s.runs = append(s.runs, rf)
	s.buf = nil
	s.bufBytes = 0
	return nil
}

// Finalize returns a MergeIter yielding every accumulated row in
// sorted order. If nothing was ever spilled, it merges over the
// single in-memory buffer only (no disk I/O at all).
func (s *Sorter) Finalize() (*MergeIter, error) {
	if len(s.runs) == 0 {
		sort.SliceStable(s.buf, func(i, j int) bool { return s.less(s.buf[i], s.buf[j]) })
		return &MergeIter{streams: [][]Row{s.buf}, cursors: []int{0}, less: s.less}, nil
	}
	if err := s.spill(); err != nil {
		return nil, err
	}
	streams := make([][]Row, len(s.runs))
	for i, rf := range s.runs {
		rows, err := rf.load()
		if err != nil {
			return nil, err
		}
		streams[i] = rows
	}
	return &MergeIter{streams: streams, cursors: make([]int, len(streams)), less: s.less, runs: s.runs}, nil
}

// mergeItem is one heap entry: the index of its source stream and its
// current row.
type mergeItem struct {
	stream int
	row    Row
}

// MergeIter performs the k-way merge across Sorter's spilled runs (and
// any final in-memory buffer), via the teacher's generic min-heap
// (heap.PopSlice/PushSlice), the same primitive behind the teacher's
// sorting.Ktop.
type MergeIter struct {
	streams [][]Row
	cursors []int
	less    func(a, b Row) bool
	runs    []*runFile

	heapInit bool
	h        []mergeItem
}

// lessItem orders two heap entries by row, falling back to source
// stream index on a tie so the k-way merge is itself stable: since
// runs are spilled (and streams ordered) in input arrival order, a
// lower stream index always means "arrived earlier".
func (m *MergeIter) lessItem(a, b mergeItem) bool {
	if m.less(a.row, b.row) {
		return true
	}
	if m.less(b.row, a.row) {
		return false
	}
	return a.stream < b.stream
}

func (m *MergeIter) init() {
	for i, s := range m.streams {
		if m.cursors[i] < len(s) {
			heap.PushSlice(&m.h, mergeItem{stream: i, row: s[m.cursors[i]]}, m.lessItem)
			m.cursors[i]++
		}
	}
	m.heapInit = true
}

// Next returns the next row in sorted order, or ok=false once every
// stream is exhausted.
func (m *MergeIter) Next() (row Row, ok bool, err error) {
	if !m.heapInit {
		m.init()
	}
	if len(m.h) == 0 {
		return nil, false, nil
	}
	top := heap.PopSlice(&m.h, m.lessItem)
	s := m.streams[top.stream]
	if m.cursors[top.stream] < len(s) {
		heap.PushSlice(&m.h, mergeItem{stream: top.stream, row: s[m.cursors[top.stream]]}, m.lessItem)
		m.cursors[top.stream]++
	}
	return top.row, true, nil
}

// Close removes any temp files backing the merge's spilled runs.
func (m *MergeIter) Close() error {
	var firstErr error
	for _, rf := range m.runs {
		if err := rf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

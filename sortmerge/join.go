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

	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

// RowSource yields rows one at a time, already sorted ascending by the
// join key. *MergeIter implements RowSource.
type RowSource interface {
	Next() (Row, bool, error)
}

// peekSource adds one-row lookahead to a RowSource, needed to gather
// a full run of equal-key rows before deciding how to match it.
type peekSource struct {
	src       RowSource
	peeked    Row
	hasPeeked bool
	done      bool
}

func newPeekSource(src RowSource) *peekSource { return &peekSource{src: src} }

func (p *peekSource) peek() (Row, bool, error) {
	if p.done {
		return nil, false, nil
	}
	if p.hasPeeked {
		return p.peeked, true, nil
	}
	row, ok, err := p.src.Next()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		p.done = true
		return nil, false, nil
	}
	p.peeked = row
	p.hasPeeked = true
	return row, true, nil
}

func (p *peekSource) consume() { p.hasPeeked = false }

// JoinIter performs a sort-merge join over two RowSources that are
// each already sorted ascending on their respective join key column
// (spec.md §4.I: sort-merge join requires pre-sorted inputs).
type JoinIter struct {
	left, right        *peekSource
	onLeft, onRight    int
	leftCols, rightCols int // column counts, for building nil-filled rows
	keyInOutput        bool
	how                plan.JoinHow

	queue []Row
}

// NewJoinIter builds a JoinIter. leftSchema/rightSchema describe the
// rows left/right will yield; on is the shared join-key column name.
func NewJoinIter(left, right RowSource, leftSchema, rightSchema *schema.Schema, on string, how plan.JoinHow) (*JoinIter, error) {
	li := leftSchema.IndexOf(on)
	ri := rightSchema.IndexOf(on)
	if li < 0 || ri < 0 {
		return nil, fmt.Errorf("sortmerge: join key %q not found on both sides", on)
	}
	return &JoinIter{
		left: newPeekSource(left), right: newPeekSource(right),
		onLeft: li, onRight: ri,
		leftCols: leftSchema.Len(), rightCols: rightSchema.Len(),
		how: how,
	}, nil
}

// Next returns the next output row: left columns (in order) followed
// by right columns with the join key column dropped. Column-name
// suffix resolution and reordering to match (*plan.Join).OutputSchema
// is the executor's responsibility, applied uniformly to every row
// this yields.
func (j *JoinIter) Next() (Row, bool, error) {
	for len(j.queue) == 0 {
		more, err := j.advance()
		if err != nil {
			return nil, false, err
		}
		if !more {
			return nil, false, nil
		}
	}
	row := j.queue[0]
	j.queue = j.queue[1:]
	return row, true, nil
}

// advance produces the next batch of matched/unmatched rows into the
// queue, or reports false once both sides are exhausted.
func (j *JoinIter) advance() (bool, error) {
	lRow, lOK, err := j.left.peek()
	if err != nil {
		return false, err
	}
	rRow, rOK, err := j.right.peek()
	if err != nil {
		return false, err
	}

	switch {
	case !lOK && !rOK:
		return false, nil

	case !lOK:
		group, err := j.pullGroup(j.right, j.onRight, rRow[j.onRight])
		if err != nil {
			return false, err
		}
		if j.how == plan.Right || j.how == plan.Outer {
			for _, r := range group {
				j.queue = append(j.queue, combine(nilRow(j.leftCols), r, j.onRight))
			}
		}
		return true, nil

	case !rOK:
		group, err := j.pullGroup(j.left, j.onLeft, lRow[j.onLeft])
		if err != nil {
			return false, err
		}
		if j.how == plan.Left || j.how == plan.Outer {
			for _, l := range group {
				j.queue = append(j.queue, combine(l, nilRow(j.rightCols), -1))
			}
		}
		return true, nil
	}

	c := compareValue(lRow[j.onLeft], rRow[j.onRight])
	switch {
	case c < 0:
		group, err := j.pullGroup(j.left, j.onLeft, lRow[j.onLeft])
		if err != nil {
			return false, err
		}
		if j.how == plan.Left || j.how == plan.Outer {
			for _, l := range group {
				j.queue = append(j.queue, combine(l, nilRow(j.rightCols), -1))
			}
		}
		return true, nil

	case c > 0:
		group, err := j.pullGroup(j.right, j.onRight, rRow[j.onRight])
		if err != nil {
			return false, err
		}
		if j.how == plan.Right || j.how == plan.Outer {
			for _, r := range group {
				j.queue = append(j.queue, combine(nilRow(j.leftCols), r, j.onRight))
			}
		}
		return true, nil

	default:
		lGroup, err := j.pullGroup(j.left, j.onLeft, lRow[j.onLeft])
		if err != nil {
			return false, err
		}
		rGroup, err := j.pullGroup(j.right, j.onRight, rRow[j.onRight])
		if err != nil {
			return false, err
		}
		for _, l := range lGroup {
			for _, r := range rGroup {
				j.queue = append(j.queue, combine(l, r, j.onRight))
			}
		}
		return true, nil
	}
}

// pullGroup consumes and returns every consecutive row in src whose
// key column equals key.
func (j *JoinIter) pullGroup(src *peekSource, onIdx int, key any) ([]Row, error) {
	var group []Row
	for {
		row, ok, err := src.peek()
		if err != nil {
			return nil, err
		}
		if !ok || compareValue(row[onIdx], key) != 0 {
			return group, nil
		}
		group = append(group, row)
		src.consume()
	}
}

func nilRow(n int) Row { return make(Row, n) }

// combine concatenates l and r into a single output row, dropping r's
// copy of the join key (at dropRightIdx) when present.
func combine(l, r Row, dropRightIdx int) Row {
	out := make(Row, 0, len(l)+len(r))
	out = append(out, l...)
	for i, v := range r {
		if i == dropRightIdx {
			continue
		}
		out = append(out, v)
	}
	return out
}

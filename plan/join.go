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

package plan

import (
	"fmt"

	"github.com/colexdb/colex/schema"
)

// Suffixes names the "_x"/"_y"-style suffixes Join appends to
// non-key columns that collide between its two inputs.
type Suffixes struct {
	Left, Right string
}

// DefaultSuffixes matches spec.md §4.I's default suffixes.
var DefaultSuffixes = Suffixes{Left: "_x", Right: "_y"}

// Join is a two-input node: it has no single Input(), so it does not
// embed base the way every other non-Scan node does. Its id is
// allocated directly.
type Join struct {
	id       ID
	Left     Node
	Right    Node
	On       string // join key column name, present on both sides
	How      JoinHow
	Suffixes Suffixes
}

// NewJoin constructs a Join node.
func NewJoin(left, right Node, on string, how JoinHow, suffixes Suffixes) *Join {
	return &Join{id: NewID(), Left: left, Right: right, On: on, How: how, Suffixes: suffixes}
}

func (j *Join) ID() ID { return j.id }

// SetID overrides this node's id; see base.SetID's doc comment.
func (j *Join) SetID(id ID) { j.id = id }

// Input returns the left input, by convention, so Join still satisfies
// the single-input parts of Node (e.g. generic tree walks that only
// care about "a" predecessor); callers that need both sides use Left
// and Right directly.
func (j *Join) Input() Node { return j.Left }

func (j *Join) OutputSchema() (*schema.Schema, error) {
	ls, err := j.Left.OutputSchema()
	if err != nil {
		return nil, err
	}
	rs, err := j.Right.OutputSchema()
	if err != nil {
		return nil, err
	}

	rightNames := make(map[string]bool, rs.Len())
	for _, c := range rs.Columns {
		rightNames[c.Name] = true
	}

	cols := make([]schema.Column, 0, ls.Len()+rs.Len())
	for _, c := range ls.Columns {
		name := c.Name
		if name != j.On && rightNames[name] {
			name += j.Suffixes.Left
		}
		cols = append(cols, schema.Column{Name: name, DType: c.DType})
	}
	for _, c := range rs.Columns {
		if c.Name == j.On {
			continue // the join key appears once, from the left side
		}
		name := c.Name
		if leftHas(ls, c.Name) {
			name += j.Suffixes.Right
		}
		cols = append(cols, schema.Column{Name: name, DType: c.DType})
	}
	return schema.New(cols)
}

func leftHas(ls *schema.Schema, name string) bool {
	return ls.IndexOf(name) >= 0
}

func (j *Join) String() string {
	return fmt.Sprintf("Join(on=%s, how=%s)", j.On, j.How)
}

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
	"strings"

	"github.com/colexdb/colex/schema"
)

// GroupBy partitions input rows by Keys and computes Aggs over each
// partition. It is a blocking operator (spec.md §4.G): the executor
// must materialize its entire input before producing output.
type GroupBy struct {
	base
	Keys []string
	Aggs []Agg
}

// NewGroupBy constructs a GroupBy node over input.
func NewGroupBy(input Node, keys []string, aggs []Agg) *GroupBy {
	return &GroupBy{base: newBase(input), Keys: keys, Aggs: aggs}
}

func (g *GroupBy) OutputSchema() (*schema.Schema, error) {
	in, err := g.Input().OutputSchema()
	if err != nil {
		return nil, err
	}
	cols := make([]schema.Column, 0, len(g.Keys)+len(g.Aggs))
	for _, k := range g.Keys {
		dt, ok := in.DTypeOf(k)
		if !ok {
			return nil, fmt.Errorf("plan: groupby key %q not found", k)
		}
		cols = append(cols, schema.Column{Name: k, DType: dt})
	}
	for _, a := range g.Aggs {
		dt, err := a.OutputDType(in)
		if err != nil {
			return nil, err
		}
		cols = append(cols, schema.Column{Name: a.OutName, DType: dt})
	}
	return schema.New(cols)
}

func (g *GroupBy) String() string {
	names := make([]string, len(g.Aggs))
	for i, a := range g.Aggs {
		names[i] = fmt.Sprintf("%s(%s)", a.Func, a.Column)
	}
	return fmt.Sprintf("GroupBy(keys=[%s], aggs=[%s])", strings.Join(g.Keys, ","), strings.Join(names, ","))
}

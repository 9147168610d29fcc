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

// Filter keeps only rows where Column Op Value holds. Value is either
// a scalar (string/float64/bool) or, for In/NotIn, a []any.
type Filter struct {
	base
	Column string
	Op     CompareOp
	Value  any
}

// NewFilter constructs a Filter node over input.
func NewFilter(input Node, column string, op CompareOp, value any) *Filter {
	return &Filter{base: newBase(input), Column: column, Op: op, Value: value}
}

// IsScalarPushdown reports whether this filter is eligible for scan
// pushdown: its op is a scalar comparison and its value is not a list.
func (f *Filter) IsScalarPushdown() bool {
	if !f.Op.PushdownEligible() {
		return false
	}
	switch f.Value.(type) {
	case []any:
		return false
	default:
		return true
	}
}

// OutputSchema is identical to the input's: Filter never changes
// columns.
func (f *Filter) OutputSchema() (*schema.Schema, error) { return f.Input().OutputSchema() }

func (f *Filter) String() string {
	return fmt.Sprintf("Filter(%s %s %v)", f.Column, f.Op, f.Value)
}

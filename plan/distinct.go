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

// Distinct emits each input row's first occurrence, deduplicating on
// Subset (or every column, if Subset is empty).
type Distinct struct {
	base
	Subset []string
}

// NewDistinct constructs a Distinct node over input.
func NewDistinct(input Node, subset []string) *Distinct {
	return &Distinct{base: newBase(input), Subset: subset}
}

// OutputSchema is identical to the input's: Distinct never changes
// columns, only row count.
func (d *Distinct) OutputSchema() (*schema.Schema, error) { return d.Input().OutputSchema() }

func (d *Distinct) String() string {
	if len(d.Subset) == 0 {
		return "Distinct(*)"
	}
	return fmt.Sprintf("Distinct(%s)", strings.Join(d.Subset, ","))
}

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

// Select projects the input down to Columns, in that order.
type Select struct {
	base
	Columns []string
}

// NewSelect constructs a Select node over input.
func NewSelect(input Node, columns []string) *Select {
	return &Select{base: newBase(input), Columns: columns}
}

func (s *Select) OutputSchema() (*schema.Schema, error) {
	in, err := s.Input().OutputSchema()
	if err != nil {
		return nil, err
	}
	return in.Project(s.Columns)
}

func (s *Select) String() string {
	return fmt.Sprintf("Select(%s)", strings.Join(s.Columns, ","))
}

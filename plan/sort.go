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

// DefaultRunBytes is the in-memory run-buffer size external sort
// accumulates before spilling to disk, when Sort.RunBytes is zero.
const DefaultRunBytes = 64 << 20 // 64 MiB

// Sort orders input rows by Columns/Directions. A blocking operator
// implemented via external merge sort (package sortmerge) once its
// accumulated run exceeds RunBytes.
type Sort struct {
	base
	Columns    []string
	Directions []Direction
	RunBytes   int64
}

// NewSort constructs a Sort node over input.
func NewSort(input Node, columns []string, directions []Direction, runBytes int64) *Sort {
	if runBytes <= 0 {
		runBytes = DefaultRunBytes
	}
	return &Sort{base: newBase(input), Columns: columns, Directions: directions, RunBytes: runBytes}
}

// OutputSchema is identical to the input's: Sort reorders rows, not
// columns.
func (s *Sort) OutputSchema() (*schema.Schema, error) { return s.Input().OutputSchema() }

func (s *Sort) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = fmt.Sprintf("%s %s", c, s.Directions[i])
	}
	return fmt.Sprintf("Sort(%s)", strings.Join(parts, ","))
}

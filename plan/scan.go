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

// ScanOptions configures how a Scan reads its source file.
type ScanOptions struct {
	ChunkSize  int
	Delimiter  byte
	HasHeader  bool
	NullValues []string
}

// Scan is the only terminal node type: it names a source file, its
// schema, the on-disk column order, and the read options.
type Scan struct {
	id          ID
	Path        string
	Schema      *schema.Schema
	ColumnOrder []string
	Options     ScanOptions
}

// NewScan constructs a Scan node.
func NewScan(path string, sc *schema.Schema, columnOrder []string, opt ScanOptions) *Scan {
	return &Scan{id: NewID(), Path: path, Schema: sc, ColumnOrder: columnOrder, Options: opt}
}

func (s *Scan) ID() ID      { return s.id }
func (s *Scan) Input() Node { return nil }

func (s *Scan) OutputSchema() (*schema.Schema, error) { return s.Schema, nil }

func (s *Scan) String() string {
	return fmt.Sprintf("Scan(%s)", s.Path)
}

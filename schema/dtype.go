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

// Package schema defines colex's closed dtype enum, column schemas,
// and the columnar chunk/vector representation shared by the parser,
// the cache, and the executor. Column dtypes and dictionaries are
// treated as opaque value stores by every other package in this
// module; nothing outside package schema and package dict reaches
// into their internals.
package schema

import "fmt"

// DType is colex's closed set of column element types.
type DType uint8

const (
	Int32 DType = iota
	Float64
	Bool
	String
	Date     // epoch-days, stored as int64
	DateTime // epoch-ms, stored as int64
)

func (d DType) String() string {
	switch d {
	case Int32:
		return "Int32"
	case Float64:
		return "Float64"
	case Bool:
		return "Bool"
	case String:
		return "String"
	case Date:
		return "Date"
	case DateTime:
		return "DateTime"
	default:
		return fmt.Sprintf("DType(%d)", uint8(d))
	}
}

// Width returns the fixed per-element byte width of d: 4 for Int32 and
// for String (one uint32 offset), 8 for Float64/Date/DateTime, 1 for
// Bool.
func (d DType) Width() int {
	switch d {
	case Int32, String:
		return 4
	case Float64, Date, DateTime:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

// Numeric reports whether d is Int32 or Float64.
func (d DType) Numeric() bool {
	return d == Int32 || d == Float64
}

// Column pairs a column name with its dtype. Schema is an ordered list
// of Columns; order is part of the schema's identity.
type Column struct {
	Name  string
	DType DType
}

// Schema is an ordered mapping from column name to dtype.
type Schema struct {
	Columns []Column
	index   map[string]int
}

// New builds a Schema from an ordered column list. It returns an
// error on duplicate names; callers that already know their columns
// are unique may ignore the error.
func New(cols []Column) (*Schema, error) {
	s := &Schema{Columns: append([]Column(nil), cols...)}
	s.index = make(map[string]int, len(cols))
	for i, c := range s.Columns {
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		s.index[c.Name] = i
	}
	return s, nil
}

// IndexOf returns the position of name in the schema, or -1 if absent.
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// DTypeOf returns the dtype of name and whether it was found.
func (s *Schema) DTypeOf(name string) (DType, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.Columns[i].DType, true
}

// Names returns the schema's column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Project returns a new Schema containing only the named columns, in
// the order requested. It errors if any name is absent.
func (s *Schema) Project(names []string) (*Schema, error) {
	cols := make([]Column, len(names))
	for i, n := range names {
		idx := s.IndexOf(n)
		if idx < 0 {
			return nil, fmt.Errorf("schema: column %q not found", n)
		}
		cols[i] = s.Columns[idx]
	}
	return New(cols)
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Columns) }

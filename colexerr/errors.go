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

// Package colexerr defines the typed error taxonomy raised across the
// colex engine. Memory denial has a type here (MemoryLimit), but it is
// never thrown: it is only returned as a value alongside a result (see
// package exec's Result type).
package colexerr

import "fmt"

// Hinted is implemented by every error in this package. Hint returns a
// short, user-facing remediation suggestion.
type Hinted interface {
	error
	Hint() string
}

// ColumnNotFound is raised when a plan or frame operation references a
// column that does not exist in the active schema.
type ColumnNotFound struct {
	Column string
}

func (e *ColumnNotFound) Error() string {
	return fmt.Sprintf("column not found: %q", e.Column)
}

func (e *ColumnNotFound) Hint() string {
	return "check the column name against the schema passed to Scan"
}

// TypeMismatch is raised when an operator (usually an aggregate) is
// applied to a column whose dtype it cannot accept.
type TypeMismatch struct {
	Column string
	Op     string
	Got    string
	Want   string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("%s on column %q: got %s, want %s", e.Op, e.Column, e.Got, e.Want)
}

func (e *TypeMismatch) Hint() string {
	return "cast the column or choose an aggregate compatible with its dtype"
}

// IndexOutOfBounds is raised by the row-offset index and by frame row
// accessors when a requested row index falls outside [0, rowCount).
type IndexOutOfBounds struct {
	Index, Bound int
}

func (e *IndexOutOfBounds) Error() string {
	return fmt.Sprintf("index %d out of bounds for %d rows", e.Index, e.Bound)
}

func (e *IndexOutOfBounds) Hint() string {
	return "clamp the index to [0, rowCount) before calling"
}

// Schema is raised at plan-construction time for unknown dtypes,
// duplicate column names, or other static schema defects.
type Schema struct {
	Msg string
}

func (e *Schema) Error() string { return "schema error: " + e.Msg }

func (e *Schema) Hint() string {
	return "validate the schema before building a plan against it"
}

// Parse is raised at the ingestion boundary for malformed headers or
// datetimes that do not match any configured format.
type Parse struct {
	Msg string
}

func (e *Parse) Error() string { return "parse error: " + e.Msg }

func (e *Parse) Hint() string {
	return "check the file's header row and configured column formats"
}

// IO wraps a filesystem-layer failure (missing file, truncated read)
// encountered while scanning or writing.
type IO struct {
	Path string
	Err  error
}

func (e *IO) Error() string { return fmt.Sprintf("io error on %q: %v", e.Path, e.Err) }

func (e *IO) Unwrap() error { return e.Err }

func (e *IO) Hint() string {
	return "confirm the path exists and is readable by this process"
}

// Cancelled is raised at the next chunk-iteration yield point after a
// query's cancellation flag has been set. No partial frame accompanies
// a Cancelled error.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "query cancelled" }

func (e *Cancelled) Hint() string {
	return "the caller requested cancellation; re-issue the query if that was unintended"
}

// MemoryLimit describes why an allocation request was denied. It is
// never returned as a Go error from a function signature in the
// executor path — it travels inside a result envelope — but it
// implements error so callers that do want to treat it as fatal can
// wrap it with fmt.Errorf("%w", ...).
type MemoryLimit struct {
	RequestedBytes  int64
	AvailableBytes  int64
	GlobalLimitBytes int64
	ActiveTaskCount int
}

func (e *MemoryLimit) Error() string {
	return fmt.Sprintf("MEMORY_LIMIT_EXCEEDED: requested %d bytes, %d available of %d global limit (%d active tasks)",
		e.RequestedBytes, e.AvailableBytes, e.GlobalLimitBytes, e.ActiveTaskCount)
}

func (e *MemoryLimit) Code() string { return "MEMORY_LIMIT_EXCEEDED" }

func (e *MemoryLimit) Hint() string {
	return "use the streaming scan for large files, or raise the global memory limit"
}

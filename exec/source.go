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

// Package exec implements the streaming query executor (spec.md §4.G):
// it drives a plan.Node tree chunk by chunk, applying scan-time
// predicate pushdown at the Scan leaf (a Scan always decodes its full
// schema; no column pruning is applied there), and materializing
// blocking operators (GroupBy, Sort, Join, Distinct) via packages
// groupby and sortmerge.
package exec

import (
	"os"

	"github.com/colexdb/colex/cache"
	"github.com/colexdb/colex/colexerr"
	"github.com/colexdb/colex/csvparse"
	"github.com/colexdb/colex/dict"
	"github.com/colexdb/colex/memtrack"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/rowindex"
	"github.com/colexdb/colex/schema"
)

// Source is one open CSV file: its row-offset index, a chunked LRU
// cache of parsed chunks, and the string dictionary its String
// columns intern into.
type Source struct {
	f       *os.File
	size    int64
	index   *rowindex.Index
	dict    *dict.Dictionary
	cache   *cache.Cache
	scan    *plan.Scan
	opt     csvparse.Options
}

// OpenSource opens scan.Path and builds its row-offset index. logger
// (may be nil) receives the chunk cache's eviction-storm warnings.
func OpenSource(scan *plan.Scan, tracker *memtrack.Tracker, taskID string, cacheMemBytes int64, logger cache.Logger) (*Source, error) {
	f, err := os.Open(scan.Path)
	if err != nil {
		return nil, &colexerr.IO{Path: scan.Path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &colexerr.IO{Path: scan.Path, Err: err}
	}

	idx, err := rowindex.Build(f, st.Size(), scan.Options.HasHeader)
	if err != nil {
		f.Close()
		return nil, err
	}

	delim := scan.Options.Delimiter
	if delim == 0 {
		delim = ','
	}
	opt := csvparse.NewOptions(delim, true, scan.Options.NullValues)

	chunkSize := scan.Options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 65536
	}
	scanCopy := *scan
	scanCopy.Options.ChunkSize = chunkSize

	c := cache.New(cache.Config{MaxMemoryBytes: cacheMemBytes, ChunkSize: chunkSize}, tracker, taskID)
	c.Logger = logger

	return &Source{
		f: f, size: st.Size(), index: idx,
		dict:  dict.New(),
		cache: c,
		scan:  &scanCopy,
		opt:   opt,
	}, nil
}

// Close releases the source's open file and its cache's memory
// reservation.
func (s *Source) Close() error {
	s.cache.Destroy()
	return s.f.Close()
}

// ChunkCount returns the number of chunks the source's rows are
// divided into.
func (s *Source) ChunkCount() int {
	rows := s.index.RowCount()
	cs := s.scan.Options.ChunkSize
	return (rows + cs - 1) / cs
}

// Chunk returns chunk i decoded to projSchema's columns (a subset of
// the scan's on-disk schema), applying preds as scan-time pushdown
// filters: rows failing any predicate are dropped before the rest of
// their fields are decoded into projSchema's typed buffers.
func (s *Source) Chunk(i int, projSchema *schema.Schema, preds []csvparse.FieldPredicate) (*schema.Chunk, error) {
	cacheKey := i
	if len(preds) == 0 {
		if c, ok := s.cache.Get(cacheKey); ok && sameColumns(c.Schema, projSchema) {
			return c, nil
		}
	}

	cs := s.scan.Options.ChunkSize
	startRow := i * cs
	endRow := startRow + cs
	if endRow > s.index.RowCount() {
		endRow = s.index.RowCount()
	}
	if startRow >= endRow {
		return schema.NewChunk(projSchema, startRow, 0, make([]schema.Vector, projSchema.Len()), nil), nil
	}

	start, end, err := s.index.GetRowsRange(startRow, endRow)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, end-start)
	if _, err := s.f.ReadAt(buf, start); err != nil {
		return nil, &colexerr.IO{Path: s.scan.Path, Err: err}
	}

	if len(preds) > 0 {
		buf = filterRows(buf, s.scan.Options.Delimiter, len(s.scan.ColumnOrder), preds)
	}

	c, err := csvparse.ParseChunkBytes(buf, endRow-startRow, s.scan.ColumnOrder, projSchema, s.dict, s.opt)
	if err != nil {
		return nil, err
	}
	c.StartRow = startRow

	if mErr := s.cache.CheckAllocation(c.SizeBytes()); mErr != nil {
		return c, nil // serve the chunk anyway; just skip caching it (never throw for memory, spec.md §4.A)
	}
	if len(preds) == 0 {
		s.cache.Set(cacheKey, c)
	}
	return c, nil
}

func sameColumns(a, b *schema.Schema) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i, c := range a.Columns {
		if c.Name != b.Columns[i].Name {
			return false
		}
	}
	return true
}

// filterRows copies only the rows of buf that satisfy every predicate
// into a new buffer, for the common case where most of a chunk's rows
// are rejected by a highly selective pushdown filter.
func filterRows(buf []byte, delim byte, nfields int, preds []csvparse.FieldPredicate) []byte {
	if delim == 0 {
		delim = ','
	}
	var out []byte
	pos := 0
	for pos < len(buf) {
		spans, next := csvparse.RowOffsets(buf, pos, delim, nfields)
		if csvparse.EvalPredicates(buf, spans, preds) {
			out = append(out, buf[pos:next]...)
		}
		pos = next
	}
	return out
}

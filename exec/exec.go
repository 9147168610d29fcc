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

package exec

import (
	"fmt"

	"github.com/colexdb/colex/cache"
	"github.com/colexdb/colex/colexerr"
	"github.com/colexdb/colex/csvparse"
	"github.com/colexdb/colex/groupby"
	"github.com/colexdb/colex/memtrack"
	"github.com/colexdb/colex/optimize"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
	"github.com/colexdb/colex/sortmerge"
)

// ChunkIter streams chunks one at a time. Implementations never
// return both an error and ok=true in the same call.
type ChunkIter interface {
	Next() (*schema.Chunk, bool, error)
}

// Result is the executor's outcome: either a chunk stream, or a memory
// denial recorded (never raised as an error or panic, spec.md §4.A).
type Result struct {
	Chunks ChunkIter
	MemErr *colexerr.MemoryLimit
}

// Executor drives a plan.Node tree to completion, one chunk at a time
// for streaming operators, materializing blocking operators (GroupBy,
// Sort, Join, Distinct) via packages groupby and sortmerge.
type Executor struct {
	tracker       *memtrack.Tracker
	taskID        string
	cacheMemBytes int64
	tmpDir        string
	logger        cache.Logger

	sources map[plan.ID]*Source
}

// New constructs an Executor. taskID should come from
// memtrack.NewTaskID(); the executor releases its sources' cache
// reservations when Close is called.
func New(tracker *memtrack.Tracker, taskID string, cacheMemBytes int64, tmpDir string) *Executor {
	return &Executor{
		tracker: tracker, taskID: taskID,
		cacheMemBytes: cacheMemBytes, tmpDir: tmpDir,
		sources: make(map[plan.ID]*Source),
	}
}

// SetLogger wires logger (may be nil) to receive each Source's chunk
// cache eviction-storm warnings.
func (e *Executor) SetLogger(logger cache.Logger) { e.logger = logger }

// Close releases every Source this executor opened.
func (e *Executor) Close() error {
	var firstErr error
	for _, s := range e.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run optimizes root (package optimize) and returns a streaming
// iterator over its result rows.
func (e *Executor) Run(root plan.Node) (*Result, error) {
	opt := optimize.Optimize(root)
	it, err := e.build(opt.Root, opt)
	if err != nil {
		if mErr, ok := err.(*colexerr.MemoryLimit); ok {
			return &Result{MemErr: mErr}, nil
		}
		return nil, err
	}
	return &Result{Chunks: it}, nil
}

func (e *Executor) build(n plan.Node, opt *optimize.Result) (ChunkIter, error) {
	switch t := n.(type) {
	case *plan.Scan:
		return e.buildScan(t, opt)
	case *plan.Filter:
		return e.buildFilter(t, opt)
	case *plan.Select:
		return e.buildSelect(t, opt)
	case *plan.GroupBy:
		return e.buildGroupBy(t, opt)
	case *plan.Sort:
		return e.buildSort(t, opt)
	case *plan.Distinct:
		return e.buildDistinct(t, opt)
	case *plan.Join:
		return e.buildJoin(t, opt)
	default:
		return nil, fmt.Errorf("exec: unsupported node type %T", n)
	}
}

func (e *Executor) sourceFor(scan *plan.Scan) (*Source, error) {
	if s, ok := e.sources[scan.ID()]; ok {
		return s, nil
	}
	s, err := OpenSource(scan, e.tracker, e.taskID, e.cacheMemBytes, e.logger)
	if err != nil {
		return nil, err
	}
	e.sources[scan.ID()] = s
	return s, nil
}

// scanIter walks a Source chunk by chunk.
type scanIter struct {
	src        *Source
	projSchema *schema.Schema
	preds      []csvparse.FieldPredicate
	next       int
	total      int
}

func (it *scanIter) Next() (*schema.Chunk, bool, error) {
	for {
		if it.next >= it.total {
			return nil, false, nil
		}
		c, err := it.src.Chunk(it.next, it.projSchema, it.preds)
		it.next++
		if err != nil {
			return nil, false, err
		}
		if c.RowCount == 0 {
			continue
		}
		return c, true, nil
	}
}

func (e *Executor) buildScan(s *plan.Scan, opt *optimize.Result) (ChunkIter, error) {
	src, err := e.sourceFor(s)
	if err != nil {
		return nil, err
	}
	preds := fieldPredicatesFor(s, opt.Pushdown[s.ID()])
	return &scanIter{src: src, projSchema: s.Schema, preds: preds, total: src.ChunkCount()}, nil
}

func fieldPredicatesFor(s *plan.Scan, pds []optimize.PushdownPredicate) []csvparse.FieldPredicate {
	if len(pds) == 0 {
		return nil
	}
	fieldIndex := make(map[string]int, len(s.ColumnOrder))
	for i, name := range s.ColumnOrder {
		fieldIndex[name] = i
	}
	out := make([]csvparse.FieldPredicate, 0, len(pds))
	for _, p := range pds {
		idx, ok := fieldIndex[p.Column]
		if !ok {
			continue
		}
		dt, ok := s.Schema.DTypeOf(p.Column)
		if !ok {
			continue
		}
		fp := csvparse.FieldPredicate{FieldIndex: idx, DType: dt, Op: string(p.Op)}
		if sv, ok := p.Value.(string); ok {
			fp.Str = sv
		} else {
			fp.Num = toFloat(p.Value)
		}
		out = append(out, fp)
	}
	return out
}

// chunkMapIter applies fn to every chunk from src, dropping any chunk
// fn reduces to zero rows.
type chunkMapIter struct {
	src ChunkIter
	fn  func(*schema.Chunk) (*schema.Chunk, error)
}

func (it *chunkMapIter) Next() (*schema.Chunk, bool, error) {
	for {
		c, ok, err := it.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		out, err := it.fn(c)
		if err != nil {
			return nil, false, err
		}
		if out.RowCount == 0 {
			continue
		}
		return out, true, nil
	}
}

func (e *Executor) buildFilter(f *plan.Filter, opt *optimize.Result) (ChunkIter, error) {
	child, err := e.build(f.Input(), opt)
	if err != nil {
		return nil, err
	}
	return &chunkMapIter{src: child, fn: func(c *schema.Chunk) (*schema.Chunk, error) {
		return filterChunk(c, f)
	}}, nil
}

func (e *Executor) buildSelect(s *plan.Select, opt *optimize.Result) (ChunkIter, error) {
	child, err := e.build(s.Input(), opt)
	if err != nil {
		return nil, err
	}
	return &chunkMapIter{src: child, fn: func(c *schema.Chunk) (*schema.Chunk, error) {
		return c.Project(s.Columns)
	}}, nil
}

// onceIter yields a single chunk, then stops.
type onceIter struct {
	c    *schema.Chunk
	done bool
}

func (it *onceIter) Next() (*schema.Chunk, bool, error) {
	if it.done || it.c == nil || it.c.RowCount == 0 {
		return nil, false, nil
	}
	it.done = true
	return it.c, true, nil
}

func (e *Executor) buildGroupBy(g *plan.GroupBy, opt *optimize.Result) (ChunkIter, error) {
	child, err := e.build(g.Input(), opt)
	if err != nil {
		return nil, err
	}
	inSchema, err := g.Input().OutputSchema()
	if err != nil {
		return nil, err
	}
	tbl, err := groupby.New(g.Keys, g.Aggs, inSchema)
	if err != nil {
		return nil, err
	}
	tbl.Logger = e.logger
	for {
		c, ok, err := child.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := tbl.Ingest(c); err != nil {
			return nil, err
		}
	}
	outSchema, err := g.OutputSchema()
	if err != nil {
		return nil, err
	}
	out, err := tbl.Finalize(outSchema)
	if err != nil {
		return nil, err
	}
	return &onceIter{c: out}, nil
}

const sortOutputBatchRows = 65536

func (e *Executor) buildSort(s *plan.Sort, opt *optimize.Result) (ChunkIter, error) {
	child, err := e.build(s.Input(), opt)
	if err != nil {
		return nil, err
	}
	inSchema, err := s.Input().OutputSchema()
	if err != nil {
		return nil, err
	}
	sorter, err := sortmerge.NewSorter(inSchema, s.Columns, s.Directions, s.RunBytes, e.tmpDir)
	if err != nil {
		return nil, err
	}
	for {
		c, ok, err := child.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := sorter.AddChunk(c); err != nil {
			return nil, err
		}
	}
	merged, err := sorter.Finalize()
	if err != nil {
		return nil, err
	}
	return &rowBatchIter{src: merged, sc: inSchema, batchSize: sortOutputBatchRows}, nil
}

func (e *Executor) buildDistinct(d *plan.Distinct, opt *optimize.Result) (ChunkIter, error) {
	child, err := e.build(d.Input(), opt)
	if err != nil {
		return nil, err
	}
	inSchema, err := d.Input().OutputSchema()
	if err != nil {
		return nil, err
	}
	dd, err := sortmerge.NewDistinct(inSchema, d.Subset)
	if err != nil {
		return nil, err
	}
	return &chunkMapIter{src: child, fn: dd.Filter}, nil
}

func (e *Executor) buildJoin(j *plan.Join, opt *optimize.Result) (ChunkIter, error) {
	leftSchema, err := j.Left.OutputSchema()
	if err != nil {
		return nil, err
	}
	rightSchema, err := j.Right.OutputSchema()
	if err != nil {
		return nil, err
	}
	leftSorted, err := e.materializeSorted(j.Left, opt, leftSchema, j.On)
	if err != nil {
		return nil, err
	}
	rightSorted, err := e.materializeSorted(j.Right, opt, rightSchema, j.On)
	if err != nil {
		return nil, err
	}
	ji, err := sortmerge.NewJoinIter(leftSorted, rightSorted, leftSchema, rightSchema, j.On, j.How)
	if err != nil {
		return nil, err
	}
	outSchema, err := j.OutputSchema()
	if err != nil {
		return nil, err
	}
	return &rowBatchIter{src: ji, sc: outSchema, batchSize: sortOutputBatchRows}, nil
}

// materializeSorted drains side's output fully into a Sorter keyed on
// column, returning the resulting sorted row stream. Sort-merge join
// requires both sides pre-sorted on the join key; colex always sorts
// here rather than detecting an already-sorted input plan, trading a
// possibly-redundant sort for a much simpler executor (an Open
// Question decision, see DESIGN.md).
func (e *Executor) materializeSorted(side plan.Node, opt *optimize.Result, sideSchema *schema.Schema, column string) (*sortmerge.MergeIter, error) {
	child, err := e.build(side, opt)
	if err != nil {
		return nil, err
	}
	sorter, err := sortmerge.NewSorter(sideSchema, []string{column}, []plan.Direction{plan.Asc}, plan.DefaultRunBytes, e.tmpDir)
	if err != nil {
		return nil, err
	}
	for {
		c, ok, err := child.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := sorter.AddChunk(c); err != nil {
			return nil, err
		}
	}
	return sorter.Finalize()
}

// rowSource is satisfied by both *sortmerge.MergeIter and
// *sortmerge.JoinIter: anything that yields plain Rows one at a time.
type rowSource interface {
	Next() (sortmerge.Row, bool, error)
}

// rowBatchIter re-chunks a row-at-a-time source (a sort or join
// result) back into columnar chunks of batchSize rows.
type rowBatchIter struct {
	src       rowSource
	sc        *schema.Schema
	batchSize int
	done      bool
}

func (it *rowBatchIter) Next() (*schema.Chunk, bool, error) {
	if it.done {
		return nil, false, nil
	}
	batch := make([]sortmerge.Row, 0, it.batchSize)
	for len(batch) < it.batchSize {
		row, ok, err := it.src.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			it.done = true
			break
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, false, nil
	}
	c, err := sortmerge.RowsToChunk(it.sc, batch)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

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

// Package plan defines colex's immutable query-plan tree: Scan,
// Filter, Select, GroupBy, Sort, Join, and Distinct nodes, each
// carrying a globally-unique monotonic id for caching and memoization.
//
// Nodes are immutable once constructed (as the teacher's plan.Op tree
// is, modulo its structural-copy rewrite passes); the optimizer
// (package optimize) builds new trees with shared, unmodified children
// rather than mutating nodes in place.
package plan

import (
	"fmt"
	"sync/atomic"

	"github.com/colexdb/colex/schema"
)

// ID uniquely (and monotonically, within a process) identifies a plan
// node, for memoization and plan-cache keys.
type ID int64

var nextID int64

// NewID allocates a fresh, process-unique node id.
func NewID() ID {
	return ID(atomic.AddInt64(&nextID, 1))
}

// Node is the common interface implemented by every plan node.
type Node interface {
	fmt.Stringer

	// ID returns this node's unique id.
	ID() ID
	// Input returns this node's input node, or nil for Scan (the
	// only terminal node type).
	Input() Node
	// OutputSchema derives this node's output schema deterministically
	// from its input (see each node type's doc comment for its rule).
	OutputSchema() (*schema.Schema, error)
}

// base is embedded by every non-terminal node type to provide ID and
// Input, the way the teacher's plan.Nonterminal embeds From Op.
type base struct {
	id    ID
	input Node
}

func newBase(input Node) base {
	return base{id: NewID(), input: input}
}

func (b base) ID() ID      { return b.id }
func (b base) Input() Node { return b.input }

// SetID overrides this node's id. Used only by package optimize to
// preserve a node's identity across a rewrite pass that otherwise
// constructs a fresh node value (spec.md §9: "node id is ... preserved
// under optimization").
func (b *base) SetID(id ID) { b.id = id }

// CompareOp enumerates Filter's scalar comparison operators.
type CompareOp string

const (
	Eq        CompareOp = "=="
	Neq       CompareOp = "!="
	Lt        CompareOp = "<"
	Lte       CompareOp = "<="
	Gt        CompareOp = ">"
	Gte       CompareOp = ">="
	In        CompareOp = "in"
	NotIn     CompareOp = "not-in"
	Contains  CompareOp = "contains"
)

// scalarOps is the subset of CompareOp eligible for predicate
// pushdown into the scan (spec.md §4.F pass 3): equality/inequality
// comparisons against a single scalar value.
var scalarOps = map[CompareOp]bool{
	Eq: true, Neq: true, Lt: true, Lte: true, Gt: true, Gte: true,
}

// PushdownEligible reports whether op is eligible for pushdown when
// paired with a scalar (non-list) value.
func (op CompareOp) PushdownEligible() bool { return scalarOps[op] }

// AggFunc enumerates GroupBy's aggregate functions.
type AggFunc string

const (
	Sum   AggFunc = "sum"
	Count AggFunc = "count"
	Mean  AggFunc = "mean"
	Min   AggFunc = "min"
	Max   AggFunc = "max"
	First AggFunc = "first"
	Last  AggFunc = "last"
)

// Agg is a single GroupBy aggregate: apply Func to Column, naming the
// output column OutName.
type Agg struct {
	Column  string
	Func    AggFunc
	OutName string
}

// OutputDType derives the aggregate's output dtype, per spec.md §4.E:
// count -> Int32, mean -> Float64, sum/min/max/first/last -> source
// dtype.
func (a Agg) OutputDType(srcSchema *schema.Schema) (schema.DType, error) {
	if a.Func == Count {
		return schema.Int32, nil
	}
	if a.Func == Mean {
		return schema.Float64, nil
	}
	dt, ok := srcSchema.DTypeOf(a.Column)
	if !ok {
		return 0, fmt.Errorf("plan: aggregate column %q not found", a.Column)
	}
	return dt, nil
}

// JoinHow enumerates Join's match-retention modes.
type JoinHow string

const (
	Inner JoinHow = "inner"
	Left  JoinHow = "left"
	Right JoinHow = "right"
	Outer JoinHow = "outer"
)

// Direction is a Sort column's ordering direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

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

// Package optimize implements colex's plan optimizer passes: combining
// and reordering filters, select placement, pushdown detection,
// selectivity/cost statistics, and filter deduplication.
//
// The optimizer never mutates a plan.Node in place (nodes are
// immutable once constructed); each pass produces new nodes that share
// unmodified children, mirroring how the teacher's plan package
// rebuilds its Op tree by structural copy rather than mutation.
package optimize

import (
	"sort"

	"github.com/colexdb/colex/plan"
	"golang.org/x/exp/slices"
)

// Selectivity heuristics, per spec.md §4.F pass 4. The spec leaves
// In/NotIn/Contains unassigned; colex treats In like a narrow
// equality-class predicate, NotIn like its complement, and Contains
// like a loose range scan (documented as an Open Question decision in
// DESIGN.md).
const (
	selEqNumeric = 0.10
	selEqString  = 0.05
	selNeq       = 0.9
	selRange     = 0.5
	selIn        = 0.3
	selNotIn     = 0.9
	selContains  = 0.5
	selGroupBy   = 0.1
	selPassThrough = 1.0
	selDistinct  = 0.7
)

// Stats carries the per-node estimates computed by pass 4: cumulative
// selectivity (as a stand-in for "estimatedRows" when no concrete row
// count is known at plan-build time — callers with a known input row
// count can multiply it in directly) and an additive cost.
type Stats struct {
	ByNode map[plan.ID]NodeStat
}

// NodeStat is one node's selectivity/cost estimate.
type NodeStat struct {
	Selectivity        float64 // this node's own selectivity
	CumulativeSelectivity float64 // product of selectivity from Scan to here
	Cost               float64 // additive cost accumulated from Scan to here
}

// PushdownPredicate is a Filter marked eligible for scan-time
// pushdown by pass 3.
type PushdownPredicate struct {
	Column string
	Op     plan.CompareOp
	Value  any
}

// Result is the optimizer's output: the rewritten tree, the
// pushdown-eligible predicates extracted from directly-above-Scan
// filters, the column-pruning eligibility per Select, and the
// selectivity/cost statistics.
type Result struct {
	Root      plan.Node
	Pushdown  map[plan.ID][]PushdownPredicate // keyed by the Scan's id
	PruneEligible map[plan.ID]bool             // keyed by Select's id
	Stats     Stats
}

// Optimize runs all five passes over root and returns the rewritten
// tree plus derived statistics.
func Optimize(root plan.Node) *Result {
	res := &Result{
		Pushdown:      make(map[plan.ID][]PushdownPredicate),
		PruneEligible: make(map[plan.ID]bool),
		Stats:         Stats{ByNode: make(map[plan.ID]NodeStat)},
	}
	res.Root = rewrite(root, res)
	annotateStats(res.Root, res)
	return res
}

// rewrite recursively applies passes 1-2 (combine+reorder) and,
// incidentally, pass 5 (dedup), then pass 3 (pushdown detection) on
// the resulting tree.
func rewrite(n plan.Node, res *Result) plan.Node {
	switch t := n.(type) {
	case *plan.Scan:
		return t

	case *plan.Join:
		left := rewrite(t.Left, res)
		right := rewrite(t.Right, res)
		j := plan.NewJoin(left, right, t.On, t.How, t.Suffixes)
		j.SetID(t.ID())
		return j

	case *plan.Filter, *plan.Select:
		return rewriteChain(n, res)

	default:
		// GroupBy / Sort / Distinct: optimize the input subtree,
		// rebuild this node over the optimized input.
		in := rewrite(n.Input(), res)
		return rebuildOver(n, in)
	}
}

// rebuildOver reconstructs a GroupBy/Sort/Distinct node with a new
// input, preserving every other field and (per spec.md §9) the
// original node id.
func rebuildOver(n plan.Node, newInput plan.Node) plan.Node {
	switch t := n.(type) {
	case *plan.GroupBy:
		g := plan.NewGroupBy(newInput, t.Keys, t.Aggs)
		return withID(g, t.ID())
	case *plan.Sort:
		s := plan.NewSort(newInput, t.Columns, t.Directions, t.RunBytes)
		return withID(s, t.ID())
	case *plan.Distinct:
		d := plan.NewDistinct(newInput, t.Subset)
		return withID(d, t.ID())
	default:
		return n
	}
}

// rewriteChain collects the maximal contiguous run of Filter/Select
// nodes starting at n, optimizes that run (passes 1, 2, 5), recurses
// into whatever lies beneath it (a Scan, GroupBy, Sort, Join, or
// Distinct), and reattaches.
func rewriteChain(n plan.Node, res *Result) plan.Node {
	var filters []*plan.Filter
	var selects []*plan.Select

	cur := n
	for {
		switch t := cur.(type) {
		case *plan.Filter:
			filters = append(filters, t)
			cur = t.Input()
			continue
		case *plan.Select:
			selects = append(selects, t)
			cur = t.Input()
			continue
		}
		break
	}

	// cur is now the first non-Filter/Select node: recurse into it.
	below := rewrite(cur, res)

	filters = dedupFilters(filters)
	sortBySelectivity(filters)

	// filters is sorted ascending by selectivity (most selective
	// first); attach the most selective directly above `below` so it
	// sits closest to the Scan, per spec.md §4.F pass 1.
	out := below
	for _, f := range filters {
		nf := plan.NewFilter(out, f.Column, f.Op, f.Value)
		out = withID(nf, f.ID())
	}

	scanID, scanBeneathOnlyFilters := scanBelow(out)
	for i := len(selects) - 1; i >= 0; i-- {
		s := selects[i]
		ns := plan.NewSelect(out, s.Columns)
		out = withID(ns, s.ID())
		if scanBeneathOnlyFilters {
			res.PruneEligible[s.ID()] = true
		}
	}

	if scanID != 0 {
		for _, f := range filters {
			if f.IsScalarPushdown() {
				res.Pushdown[scanID] = append(res.Pushdown[scanID], PushdownPredicate{
					Column: f.Column, Op: f.Op, Value: f.Value,
				})
			}
		}
	}

	return out
}

// scanBelow reports whether out's input chain reaches a Scan through
// only Filter/Select nodes, and that Scan's id (0 if none).
func scanBelow(n plan.Node) (plan.ID, bool) {
	cur := n
	for {
		switch t := cur.(type) {
		case *plan.Scan:
			return t.ID(), true
		case *plan.Filter:
			cur = t.Input()
		case *plan.Select:
			cur = t.Input()
		default:
			return 0, false
		}
	}
}

// dedupFilters collapses adjacent filters with an identical
// (column, op, value) triple to one, per spec.md §4.F pass 5.
func dedupFilters(filters []*plan.Filter) []*plan.Filter {
	return slices.CompactFunc(filters, func(a, b *plan.Filter) bool {
		if a.Column != b.Column || a.Op != b.Op {
			return false
		}
		// In/NotIn carry []any values, which aren't comparable with
		// ==; such filters are never treated as duplicates.
		_, aList := a.Value.([]any)
		_, bList := b.Value.([]any)
		if aList || bList {
			return false
		}
		return a.Value == b.Value
	})
}

type filterSel struct {
	f   *plan.Filter
	sel float64
}

func sortBySelectivity(filters []*plan.Filter) {
	pairs := make([]filterSel, len(filters))
	for i, f := range filters {
		pairs[i] = filterSel{f: f, sel: selectivityOf(f)}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].sel < pairs[j].sel })
	for i, p := range pairs {
		filters[i] = p.f
	}
}

func selectivityOf(f *plan.Filter) float64 {
	switch f.Op {
	case plan.Eq:
		if _, ok := f.Value.(string); ok {
			return selEqString
		}
		return selEqNumeric
	case plan.Neq:
		return selNeq
	case plan.Lt, plan.Lte, plan.Gt, plan.Gte:
		return selRange
	case plan.In:
		return selIn
	case plan.NotIn:
		return selNotIn
	case plan.Contains:
		return selContains
	default:
		return selPassThrough
	}
}

// annotateStats computes each node's selectivity/cost bottom-up: the
// base case is the Scan (cumulative selectivity 1.0, cost 1.0), and
// each wrapping node derives its own stat from its input's (cost is the
// input's cost plus this node's cumulative selectivity), which is
// annotated first. It returns the stat it recorded for n so its caller
// can fold it into the next node up without re-deriving it.
func annotateStats(n plan.Node, res *Result) NodeStat {
	var mySel float64
	var inStat NodeStat

	switch t := n.(type) {
	case *plan.Scan:
		mySel = 1.0
	case *plan.Filter:
		mySel = selectivityOf(t)
		inStat = annotateStats(t.Input(), res)
	case *plan.Select:
		mySel = selPassThrough
		inStat = annotateStats(t.Input(), res)
	case *plan.GroupBy:
		mySel = selGroupBy
		inStat = annotateStats(t.Input(), res)
	case *plan.Sort:
		mySel = selPassThrough
		inStat = annotateStats(t.Input(), res)
	case *plan.Distinct:
		mySel = selDistinct
		inStat = annotateStats(t.Input(), res)
	case *plan.Join:
		mySel = selPassThrough
		// annotate both sides independently, each rooted at its own
		// selectivity product of 1.0.
		annotateStats(t.Left, res)
		annotateStats(t.Right, res)
	default:
		mySel = selPassThrough
		if in := n.Input(); in != nil {
			inStat = annotateStats(in, res)
		}
	}

	cumSel := inStat.CumulativeSelectivity
	if cumSel == 0 {
		cumSel = 1.0 // base case: no input stat recorded (Scan, or Join's own node)
	}
	newCum := cumSel * mySel
	newCost := inStat.Cost + newCum
	stat := NodeStat{Selectivity: mySel, CumulativeSelectivity: newCum, Cost: newCost}
	res.Stats.ByNode[n.ID()] = stat
	return stat
}

// withID rebuilds n's id to equal want, preserving the node's identity
// across optimization per spec.md §9 ("node id is assigned at
// construction and preserved under optimization").
func withID(n plan.Node, want plan.ID) plan.Node {
	switch t := n.(type) {
	case *plan.Filter:
		clone := *t
		clone.SetID(want)
		return &clone
	case *plan.Select:
		clone := *t
		clone.SetID(want)
		return &clone
	case *plan.GroupBy:
		clone := *t
		clone.SetID(want)
		return &clone
	case *plan.Sort:
		clone := *t
		clone.SetID(want)
		return &clone
	case *plan.Distinct:
		clone := *t
		clone.SetID(want)
		return &clone
	default:
		return n
	}
}

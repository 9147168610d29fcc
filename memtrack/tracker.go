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

// Package memtrack implements a process-wide byte budget shared across
// concurrently-running queries. It is purely advisory: it never aborts
// work on its own, it only grants or denies allocation requests and
// lets the caller decide how to proceed.
package memtrack

import (
	"sync"

	"github.com/colexdb/colex/colexerr"
	"github.com/colexdb/colex/sysmem"
	"github.com/google/uuid"
)

// WarnFraction is the soft warning threshold exposed to subsystems for
// voluntary degradation: once a task's allocation reaches this fraction of
// the global limit, Tracker.ShouldWarn reports true.
const WarnFraction = 0.78

type taskState struct {
	allocatedBytes int64
	usedBytes      int64
}

// Tracker is the process-wide memory budget. The zero value is not
// usable; construct one with New or Default.
type Tracker struct {
	mu           sync.Mutex
	limit        int64
	perTask      map[string]*taskState
	partialFills bool
}

// New constructs a Tracker with a fixed global byte budget. When
// allowPartial is true, requestAllocation may grant less than the
// requested amount instead of failing outright.
func New(globalLimitBytes int64, allowPartial bool) *Tracker {
	return &Tracker{
		limit:        globalLimitBytes,
		perTask:      make(map[string]*taskState),
		partialFills: allowPartial,
	}
}

// Default constructs a Tracker sized from the host/container's visible
// memory, the way the teacher's cgroup package sizes budgets from
// container introspection rather than a hardcoded constant. Partial
// fills are disabled by default.
func Default() *Tracker {
	return New(sysmem.DefaultBudget(), false)
}

// NewTaskID returns a fresh, process-unique task identifier suitable
// for passing to RequestAllocation.
func NewTaskID() string { return uuid.NewString() }

// AllocResult is the outcome of a RequestAllocation call.
type AllocResult struct {
	Success        bool
	AllocatedBytes int64
	Err            *colexerr.MemoryLimit
}

// RequestAllocation asks the tracker to reserve requested bytes on
// behalf of taskId, replacing any reservation taskId already holds. It
// succeeds in full when doing so would not push the sum of all tasks'
// allocations past the global limit. Otherwise, if partial fills are
// enabled and some headroom remains, it grants that headroom; if not,
// it denies the request outright and returns a MemoryLimit error
// describing why.
func (t *Tracker) RequestAllocation(taskID string, requested int64) AllocResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var inUse int64
	for id, st := range t.perTask {
		if id == taskID {
			continue
		}
		inUse += st.allocatedBytes
	}
	available := t.limit - inUse
	if available < 0 {
		available = 0
	}

	if requested <= available {
		t.setAllocated(taskID, requested)
		return AllocResult{Success: true, AllocatedBytes: requested}
	}

	if t.partialFills && available > 0 {
		t.setAllocated(taskID, available)
		return AllocResult{Success: true, AllocatedBytes: available}
	}

	return AllocResult{
		Success: false,
		Err: &colexerr.MemoryLimit{
			RequestedBytes:   requested,
			AvailableBytes:   available,
			GlobalLimitBytes: t.limit,
			ActiveTaskCount:  len(t.perTask),
		},
	}
}

func (t *Tracker) setAllocated(taskID string, allocated int64) {
	st := t.perTask[taskID]
	if st == nil {
		st = &taskState{}
		t.perTask[taskID] = st
	}
	st.allocatedBytes = allocated
}

// UpdateUsage records the current live bytes for taskId. Usage never
// exceeds a task's allocation in a well-behaved caller, but the
// tracker does not enforce that; it is advisory bookkeeping only.
func (t *Tracker) UpdateUsage(taskID string, usedBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.perTask[taskID]
	if st == nil {
		st = &taskState{}
		t.perTask[taskID] = st
	}
	st.usedBytes = usedBytes
}

// ReleaseAllocation removes taskId's reservation entirely. Releasing a
// task that was never registered is a no-op.
func (t *Tracker) ReleaseAllocation(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.perTask, taskID)
}

// ClearAllAllocations removes every task's reservation, freeing the
// entire global budget. Intended for test teardown and process-wide
// resets, not for routine use.
func (t *Tracker) ClearAllAllocations() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perTask = make(map[string]*taskState)
}

// ShouldWarn reports whether taskId's allocation has crossed
// WarnFraction of the global limit.
func (t *Tracker) ShouldWarn(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.perTask[taskID]
	if st == nil {
		return false
	}
	return float64(st.allocatedBytes) >= WarnFraction*float64(t.limit)
}

// ActiveTasks returns the number of tasks currently holding a
// reservation.
func (t *Tracker) ActiveTasks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.perTask)
}

// GlobalLimitBytes returns the tracker's configured budget.
func (t *Tracker) GlobalLimitBytes() int64 {
	return t.limit
}

// TotalAllocated returns the sum of every task's current allocation.
// Exposed primarily for tests asserting the conservation invariant
// (sum(allocated) <= globalLimitBytes at all times).
func (t *Tracker) TotalAllocated() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, st := range t.perTask {
		total += st.allocatedBytes
	}
	return total
}

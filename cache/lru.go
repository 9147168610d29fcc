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

// Package cache implements the chunked LRU cache: parsed, columnar
// chunks keyed by chunk index, evicted least-recently-used under a
// shared memory budget (package memtrack).
package cache

import (
	"github.com/colexdb/colex/colexerr"
	"github.com/colexdb/colex/memtrack"
	"github.com/colexdb/colex/schema"
)

// Config configures a Cache instance.
type Config struct {
	MaxMemoryBytes int64
	ChunkSize      int
}

// Logger is the minimal logging contract components accept for
// reporting non-fatal conditions, matching the teacher's dcache.Logger
// shape (and log.Logger, which satisfies it directly). A nil Logger is
// valid and every call site no-ops against it.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// entry is an intrusive doubly-linked-list node; head is the
// most-recently-used entry, tail is least-recently-used.
type entry struct {
	index int
	chunk *schema.Chunk
	prev  *entry
	next  *entry
}

// Cache is a chunked LRU cache of parsed CSV chunks, backed by a
// shared process-wide Tracker for its memory reservation.
type Cache struct {
	cfg     Config
	tracker *memtrack.Tracker
	taskID  string

	byIndex map[int]*entry
	head    *entry // MRU
	tail    *entry // LRU

	memoryUsed int64

	// Logger reports eviction storms (many evictions serving one
	// Set) when non-nil. Left unset, the cache is silent.
	Logger Logger
}

// New constructs a Cache that reserves its memory budget from tracker
// under taskID.
func New(cfg Config, tracker *memtrack.Tracker, taskID string) *Cache {
	return &Cache{
		cfg:     cfg,
		tracker: tracker,
		taskID:  taskID,
		byIndex: make(map[int]*entry),
	}
}

// CheckAllocation forwards a reservation request to the tracker,
// translating a denial into a *colexerr.MemoryLimit.
func (c *Cache) CheckAllocation(bytes int64) *colexerr.MemoryLimit {
	res := c.tracker.RequestAllocation(c.taskID, bytes)
	if !res.Success {
		return res.Err
	}
	return nil
}

// EstimateSize sums the per-column typed-buffer byte lengths plus the
// shared string backing store, counted once — the same arithmetic
// Chunk.SizeBytes performs, exposed here so callers can pre-check a
// chunk's cost before a Chunk value has been constructed.
func EstimateSize(cols []schema.Vector, sharedBytes int) int64 {
	var total int64
	for i := range cols {
		total += schema.VectorSizeBytes(&cols[i])
	}
	return total + int64(sharedBytes)
}

// Get returns the cached chunk for index i, promoting it to
// most-recently-used. The second return is false on a miss.
func (c *Cache) Get(i int) (*schema.Chunk, bool) {
	e, ok := c.byIndex[i]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.chunk, true
}

// Set inserts (or replaces) the chunk for index i, evicting
// least-recently-used entries until the new chunk fits within
// MaxMemoryBytes.
func (c *Cache) Set(i int, chunk *schema.Chunk) {
	size := chunk.SizeBytes()

	if old, ok := c.byIndex[i]; ok {
		c.memoryUsed -= old.chunk.SizeBytes()
		c.unlink(old)
		delete(c.byIndex, i)
	}

	evicted := 0
	for c.memoryUsed+size > c.cfg.MaxMemoryBytes && c.tail != nil {
		c.evictLRU()
		evicted++
	}
	// An eviction storm (clearing most of the cache to fit one
	// chunk) usually means ChunkSize/MaxMemoryBytes are mismatched
	// for the workload; surface it rather than silently thrashing.
	if evicted > 0 && evicted >= len(c.byIndex)+evicted/2 {
		logf(c.Logger, "cache: evicted %d entries to admit chunk %d (%d bytes)", evicted, i, size)
	}

	e := &entry{index: i, chunk: chunk}
	c.pushFront(e)
	c.byIndex[i] = e
	c.memoryUsed += size
}

// Clear discards every cached entry and resets memoryUsed to zero. The
// tracker's reservation is left untouched; callers that also want to
// release it should call Destroy instead.
func (c *Cache) Clear() {
	c.byIndex = make(map[int]*entry)
	c.head, c.tail = nil, nil
	c.memoryUsed = 0
}

// Destroy clears the cache and releases its tracker reservation.
func (c *Cache) Destroy() {
	c.Clear()
	c.tracker.ReleaseAllocation(c.taskID)
}

// MemoryUsed returns the sum of every cached chunk's SizeBytes.
func (c *Cache) MemoryUsed() int64 { return c.memoryUsed }

// Len returns the number of cached chunks.
func (c *Cache) Len() int { return len(c.byIndex) }

func (c *Cache) evictLRU() {
	victim := c.tail
	c.memoryUsed -= victim.chunk.SizeBytes()
	c.unlink(victim)
	delete(c.byIndex, victim.index)
}

func (c *Cache) pushFront(e *entry) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

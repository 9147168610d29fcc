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

// Package dict implements the shared string-intern table used by
// String columns. Column vectors keep String values as offsets into
// their chunk's raw bytes; the parser also interns each value here,
// and Dictionary.Lookup maps an id back to its string.
//
// Interning is serialized per-file (one Dictionary per source file, as
// the plan layer arranges it); reads (Lookup) are safe for concurrent
// use once a Dictionary is no longer being written to.
package dict

import "sync"

// Dictionary is a bidirectional string<->uint32 intern table. Ids are
// assigned monotonically starting at 0.
type Dictionary struct {
	mu      sync.RWMutex
	toID    map[string]uint32
	strings []string
}

// New constructs an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{toID: make(map[string]uint32)}
}

// Intern returns the id for s, assigning a new one if s hasn't been
// seen before.
func (d *Dictionary) Intern(s string) uint32 {
	d.mu.RLock()
	if id, ok := d.toID[s]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.toID[s]; ok {
		return id
	}
	id := uint32(len(d.strings))
	d.strings = append(d.strings, s)
	d.toID[s] = id
	return id
}

// Lookup reverses Intern: it returns the string for id, or ("", false)
// if id was never assigned.
func (d *Dictionary) Lookup(id uint32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.strings) {
		return "", false
	}
	return d.strings[id], true
}

// ID returns the id already assigned to s, without interning it.
func (d *Dictionary) ID(s string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.toID[s]
	return id, ok
}

// Len returns the number of distinct strings interned so far.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.strings)
}

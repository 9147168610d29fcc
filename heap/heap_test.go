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

package heap

import (
	"sort"
	"testing"
)

func lessInt(x, y int) bool { return x < y }

func TestOrderSlicePopGivesSortedOrder(t *testing.T) {
	x := []int{5, 3, 8, 1, 9, 2, 7, 4, 6, 0}
	OrderSlice(x, lessInt)

	var got []int
	for len(x) > 0 {
		got = append(got, PopSlice(&x, lessInt))
	}
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPushSliceMaintainsInvariant(t *testing.T) {
	var x []int
	for _, v := range []int{5, 1, 9, 3, 7} {
		PushSlice(&x, v, lessInt)
	}
	if x[0] != 1 {
		t.Fatalf("got root=%d, want 1", x[0])
	}
	var got []int
	for len(x) > 0 {
		got = append(got, PopSlice(&x, lessInt))
	}
	if !sort.IntsAreSorted(got) {
		t.Errorf("got %v, not sorted", got)
	}
}

func TestFixSlice(t *testing.T) {
	x := []int{1, 2, 3, 4, 5}
	OrderSlice(x, lessInt)
	x[0] = 100 // violate the invariant at the root
	FixSlice(x, 0, lessInt)
	prev := PopSlice(&x, lessInt)
	for len(x) > 0 {
		next := PopSlice(&x, lessInt)
		if next < prev {
			t.Fatalf("heap invariant violated: popped %d after %d", next, prev)
		}
		prev = next
	}
}

func TestEmptyOrderSlice(t *testing.T) {
	var x []int
	OrderSlice(x, lessInt) // must not panic
	if len(x) != 0 {
		t.Errorf("got %v", x)
	}
}

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

package sysmem

import "testing"

func TestDefaultBudgetAtLeastFallback(t *testing.T) {
	if got := DefaultBudget(); got < FallbackBudget {
		t.Errorf("got %d, want at least FallbackBudget %d", got, FallbackBudget)
	}
}

func TestTotalMemory(t *testing.T) {
	total, ok := totalMemory()
	if ok && total <= 0 {
		t.Errorf("totalMemory reported ok but total=%d", total)
	}
}

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

package csvparse

import (
	"strings"
	"testing"
)

func TestReadHeaderCSV(t *testing.T) {
	h := HeaderChopper{}
	got, err := h.ReadHeader(strings.NewReader("id,name,price\n1,alice,9.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "name", "price"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestReadHeaderTSV(t *testing.T) {
	h := HeaderChopper{Separator: '\t'}
	got, err := h.ReadHeader(strings.NewReader("id\tname\tprice\n1\talice\t9.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1] != "name" {
		t.Errorf("got %v", got)
	}
}

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

package schema

import "testing"

func TestDTypeString(t *testing.T) {
	cases := map[DType]string{
		Int32: "Int32", Float64: "Float64", Bool: "Bool",
		String: "String", Date: "Date", DateTime: "DateTime",
	}
	for dt, want := range cases {
		if got := dt.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", dt, got, want)
		}
	}
	if got := DType(99).String(); got != "DType(99)" {
		t.Errorf("got %q for an unknown dtype", got)
	}
}

func TestDTypeWidth(t *testing.T) {
	cases := map[DType]int{
		Int32: 4, String: 4, Float64: 8, Date: 8, DateTime: 8, Bool: 1,
	}
	for dt, want := range cases {
		if got := dt.Width(); got != want {
			t.Errorf("%s.Width() = %d, want %d", dt, got, want)
		}
	}
}

func TestDTypeNumeric(t *testing.T) {
	for dt, want := range map[DType]bool{
		Int32: true, Float64: true, Bool: false, String: false, Date: false, DateTime: false,
	} {
		if got := dt.Numeric(); got != want {
			t.Errorf("%s.Numeric() = %v, want %v", dt, got, want)
		}
	}
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	_, err := New([]Column{{Name: "a", DType: Int32}, {Name: "a", DType: String}})
	if err == nil {
		t.Fatal("expected an error for duplicate column names")
	}
}

func TestSchemaLookups(t *testing.T) {
	sc, err := New([]Column{{Name: "id", DType: Int32}, {Name: "name", DType: String}})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Len() != 2 {
		t.Errorf("got Len()=%d, want 2", sc.Len())
	}
	if sc.IndexOf("name") != 1 {
		t.Errorf("got IndexOf(name)=%d, want 1", sc.IndexOf("name"))
	}
	if sc.IndexOf("missing") != -1 {
		t.Errorf("got IndexOf(missing)=%d, want -1", sc.IndexOf("missing"))
	}
	dt, ok := sc.DTypeOf("id")
	if !ok || dt != Int32 {
		t.Errorf("got (%s, %v), want (Int32, true)", dt, ok)
	}
	if _, ok := sc.DTypeOf("missing"); ok {
		t.Error("expected ok=false for a missing column")
	}
	names := sc.Names()
	if len(names) != 2 || names[0] != "id" || names[1] != "name" {
		t.Errorf("got Names()=%v", names)
	}
}

func TestSchemaProject(t *testing.T) {
	sc, err := New([]Column{{Name: "a", DType: Int32}, {Name: "b", DType: String}, {Name: "c", DType: Bool}})
	if err != nil {
		t.Fatal(err)
	}
	sub, err := sc.Project([]string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Names()[0] != "c" || sub.Names()[1] != "a" {
		t.Errorf("got %v, want [c a]", sub.Names())
	}
	if _, err := sc.Project([]string{"nope"}); err == nil {
		t.Error("expected an error projecting a missing column")
	}
}

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
	"testing"

	"github.com/colexdb/colex/dict"
	"github.com/colexdb/colex/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sc, err := schema.New([]schema.Column{
		{Name: "id", DType: schema.Int32},
		{Name: "name", DType: schema.String},
		{Name: "price", DType: schema.Float64},
		{Name: "active", DType: schema.Bool},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestParseChunkBytesBasic(t *testing.T) {
	sc := testSchema(t)
	data := []byte("1,alice,9.5,true\n2,bob,3.25,false\n")
	opt := NewOptions(',', false, nil)
	c, err := ParseChunkBytes(data, 2, []string{"id", "name", "price", "active"}, sc, nil, opt)
	if err != nil {
		t.Fatal(err)
	}
	if c.RowCount != 2 {
		t.Fatalf("got RowCount=%d, want 2", c.RowCount)
	}
	id := c.Column("id")
	if id.Int32s[0] != 1 || id.Int32s[1] != 2 {
		t.Errorf("got id=%v", id.Int32s)
	}
	name := c.Column("name")
	if name.DecodeString(0) != "alice" || name.DecodeString(1) != "bob" {
		t.Errorf("got name[0]=%q name[1]=%q", name.DecodeString(0), name.DecodeString(1))
	}
	price := c.Column("price")
	if price.Float64s[0] != 9.5 || price.Float64s[1] != 3.25 {
		t.Errorf("got price=%v", price.Float64s)
	}
	active := c.Column("active")
	if active.Bools[0] != true || active.Bools[1] != false {
		t.Errorf("got active=%v", active.Bools)
	}
}

func TestParseChunkBytesColumnPruning(t *testing.T) {
	full := testSchema(t)
	proj, err := full.Project([]string{"name", "price"})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("1,alice,9.5,true\n")
	opt := NewOptions(',', false, nil)
	c, err := ParseChunkBytes(data, 1, []string{"id", "name", "price", "active"}, proj, nil, opt)
	if err != nil {
		t.Fatal(err)
	}
	if c.Schema.Len() != 2 {
		t.Fatalf("got %d columns, want 2", c.Schema.Len())
	}
	if c.Column("name").DecodeString(0) != "alice" {
		t.Errorf("got %q", c.Column("name").DecodeString(0))
	}
	if c.Column("price").Float64s[0] != 9.5 {
		t.Errorf("got %v", c.Column("price").Float64s)
	}
}

func TestParseChunkBytesQuotedFieldWithEmbeddedDelimiterAndEscape(t *testing.T) {
	sc, err := schema.New([]schema.Column{{Name: "name", DType: schema.String}})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte(`"smith, ""the"" jr"` + "\n")
	opt := NewOptions(',', false, nil)
	c, err := ParseChunkBytes(data, 1, []string{"name"}, sc, nil, opt)
	if err != nil {
		t.Fatal(err)
	}
	want := `smith, "the" jr`
	if got := c.Column("name").DecodeString(0); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseChunkBytesTrailingMissingFieldsDefault(t *testing.T) {
	sc := testSchema(t)
	data := []byte("1,alice\n")
	opt := NewOptions(',', false, nil)
	c, err := ParseChunkBytes(data, 1, []string{"id", "name", "price", "active"}, sc, nil, opt)
	if err != nil {
		t.Fatal(err)
	}
	if c.Column("price").Float64s[0] != 0 {
		t.Errorf("got price=%v, want 0 for a missing trailing field", c.Column("price").Float64s[0])
	}
	if c.Column("active").Bools[0] != false {
		t.Errorf("got active=%v, want false for a missing trailing field", c.Column("active").Bools[0])
	}
}

func TestParseChunkBytesNullTracking(t *testing.T) {
	sc, err := schema.New([]schema.Column{{Name: "price", DType: schema.Float64}})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("NA\n5.0\n")
	opt := NewOptions(',', true, nil)
	c, err := ParseChunkBytes(data, 2, []string{"price"}, sc, nil, opt)
	if err != nil {
		t.Fatal(err)
	}
	v := c.Column("price")
	if !v.IsNull(0) {
		t.Error("expected row 0 (NA) to be null")
	}
	if v.IsNull(1) {
		t.Error("row 1 should not be null")
	}
}

func TestParseChunkBytesInternsStrings(t *testing.T) {
	sc, err := schema.New([]schema.Column{{Name: "name", DType: schema.String}})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("alice\nbob\nalice\n")
	opt := NewOptions(',', false, nil)
	// the nil-dictionary path is covered above; here storeField interns
	// every non-null String value, so the three rows leave two entries.
	d := dict.New()
	c, err := ParseChunkBytes(data, 3, []string{"name"}, sc, d, opt)
	if err != nil {
		t.Fatal(err)
	}
	if c.RowCount != 3 {
		t.Fatalf("got RowCount=%d", c.RowCount)
	}
	if d.Len() != 2 {
		t.Fatalf("got dictionary Len()=%d, want 2", d.Len())
	}
}

func TestParseNumericHelpers(t *testing.T) {
	if got := parseInt64([]byte("-42")); got != -42 {
		t.Errorf("got %d", got)
	}
	if got := parseInt64([]byte("junk")); got != 0 {
		t.Errorf("got %d, want 0 for unparsable input", got)
	}
	if got := parseFloat64([]byte("3.5e2")); got != 350 {
		t.Errorf("got %v, want 350", got)
	}
	if got := parseFloat64([]byte("-1.25e-1")); got != -0.125 {
		t.Errorf("got %v, want -0.125", got)
	}
	if !parseBool([]byte("true")) || parseBool([]byte("no")) {
		t.Error("parseBool mismatch")
	}
}

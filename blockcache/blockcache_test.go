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

package blockcache

import (
	"testing"
	"time"

	"github.com/colexdb/colex/schema"
)

func testChunk(t *testing.T) *schema.Chunk {
	t.Helper()
	sc, err := schema.New([]schema.Column{
		{Name: "city", DType: schema.String},
		{Name: "amount", DType: schema.Float64},
	})
	if err != nil {
		t.Fatal(err)
	}
	cols := []schema.Vector{
		{DType: schema.String, Offsets: []uint32{0, 3}, Lengths: []uint32{3, 2}, NeedsUnescape: []bool{false, false}},
		{DType: schema.Float64, Float64s: []float64{10, 20}},
	}
	return schema.NewChunk(sc, 0, 2, cols, []byte("nycsf"))
}

func TestStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	c := testChunk(t)
	mtime := time.Unix(1700000000, 0)
	if err := s.Put("/data/x.csv", mtime, "sig1", []*schema.Chunk{c}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get("/data/x.csv", mtime, "sig1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if len(got) != 1 || got[0].RowCount != 2 {
		t.Fatalf("got %+v", got)
	}
	cityCol := got[0].Column("city")
	if cityCol.DecodeString(0) != "nyc" || cityCol.DecodeString(1) != "sf" {
		t.Fatalf("city values not round-tripped: %q %q", cityCol.DecodeString(0), cityCol.DecodeString(1))
	}
	amountCol := got[0].Column("amount")
	if amountCol.Float64At(0) != 10 || amountCol.Float64At(1) != 20 {
		t.Fatalf("amount values not round-tripped: %v %v", amountCol.Float64At(0), amountCol.Float64At(1))
	}
}

func TestStoreGetMissOnMtimeMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := testChunk(t)
	if err := s.Put("/data/x.csv", time.Unix(100, 0), "sig", []*schema.Chunk{c}); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Get("/data/x.csv", time.Unix(200, 0), "sig")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected a miss for a different mtime")
	}
}

func TestStoreEvictBySize(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0, 1) // near-zero budget forces eviction of everything
	if err != nil {
		t.Fatal(err)
	}
	c := testChunk(t)
	if err := s.Put("/data/x.csv", time.Unix(1, 0), "sig", []*schema.Chunk{c}); err != nil {
		t.Fatal(err)
	}
	if err := s.Evict(); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Get("/data/x.csv", time.Unix(1, 0), "sig")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected entry to be evicted under a tiny size budget")
	}
}

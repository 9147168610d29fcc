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

package groupby

import (
	"testing"

	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

func buildChunk(t *testing.T, cities []string, amounts []float64) *schema.Chunk {
	t.Helper()
	sc, err := schema.New([]schema.Column{
		{Name: "city", DType: schema.String},
		{Name: "amount", DType: schema.Float64},
	})
	if err != nil {
		t.Fatal(err)
	}
	var raw []byte
	cityV := schema.Vector{DType: schema.String}
	for _, c := range cities {
		cityV.Offsets = append(cityV.Offsets, uint32(len(raw)))
		cityV.Lengths = append(cityV.Lengths, uint32(len(c)))
		cityV.NeedsUnescape = append(cityV.NeedsUnescape, false)
		raw = append(raw, c...)
	}
	amtV := schema.Vector{DType: schema.Float64, Float64s: amounts}
	return schema.NewChunk(sc, 0, len(cities), []schema.Vector{cityV, amtV}, raw)
}

func TestTableSumAndCount(t *testing.T) {
	chunk := buildChunk(t,
		[]string{"nyc", "sf", "nyc", "sf", "nyc"},
		[]float64{10, 20, 5, 7, 1})

	aggs := []plan.Agg{
		{Column: "amount", Func: plan.Sum, OutName: "total"},
		{Column: "amount", Func: plan.Count, OutName: "n"},
		{Column: "amount", Func: plan.Mean, OutName: "avg"},
	}
	tbl, err := New([]string{"city"}, aggs, chunk.Schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Ingest(chunk); err != nil {
		t.Fatal(err)
	}
	if tbl.Groups() != 2 {
		t.Fatalf("got %d groups, want 2", tbl.Groups())
	}

	outSchema, err := schema.New([]schema.Column{
		{Name: "city", DType: schema.String},
		{Name: "total", DType: schema.Float64},
		{Name: "n", DType: schema.Int32},
		{Name: "avg", DType: schema.Float64},
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := tbl.Finalize(outSchema)
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount != 2 {
		t.Fatalf("got %d output rows, want 2", out.RowCount)
	}

	cityCol := out.Column("city")
	totalCol := out.Column("total")
	countCol := out.Column("n")
	got := map[string]float64{}
	gotN := map[string]int32{}
	for i := 0; i < out.RowCount; i++ {
		got[cityCol.DecodeString(i)] = totalCol.Float64s[i]
		gotN[cityCol.DecodeString(i)] = countCol.Int32s[i]
	}
	if got["nyc"] != 16 || got["sf"] != 27 {
		t.Fatalf("unexpected sums: %v", got)
	}
	if gotN["nyc"] != 3 || gotN["sf"] != 2 {
		t.Fatalf("unexpected counts: %v", gotN)
	}
}

func TestTableGrowsPastInitialBuckets(t *testing.T) {
	var cities []string
	var amounts []float64
	for i := 0; i < initialBuckets*4; i++ {
		cities = append(cities, string(rune('a'+i%26))+string(rune('A'+(i/26)%26)))
		amounts = append(amounts, float64(i))
	}
	chunk := buildChunk(t, cities, amounts)
	aggs := []plan.Agg{{Column: "amount", Func: plan.Max, OutName: "mx"}}
	tbl, err := New([]string{"city"}, aggs, chunk.Schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Ingest(chunk); err != nil {
		t.Fatal(err)
	}
	if tbl.Groups() != len(cities) {
		t.Fatalf("got %d groups, want %d (all distinct keys)", tbl.Groups(), len(cities))
	}
}

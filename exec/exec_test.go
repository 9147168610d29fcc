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

package exec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colexdb/colex/memtrack"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newScan(t *testing.T, path string) *plan.Scan {
	t.Helper()
	sc, err := schema.New([]schema.Column{
		{Name: "city", DType: schema.String},
		{Name: "amount", DType: schema.Float64},
	})
	if err != nil {
		t.Fatal(err)
	}
	return plan.NewScan(path, sc, []string{"city", "amount"}, plan.ScanOptions{
		HasHeader: true, Delimiter: ',', ChunkSize: 4,
	})
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	tracker := memtrack.New(1<<30, true)
	return New(tracker, memtrack.NewTaskID(), 1<<20, t.TempDir())
}

func drain(t *testing.T, it ChunkIter) []*schema.Chunk {
	t.Helper()
	var out []*schema.Chunk
	for {
		c, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func TestExecutorScanFilter(t *testing.T) {
	path := writeCSV(t, "city,amount\nnyc,10\nsf,20\nnyc,30\nsf,40\n")
	scan := newScan(t, path)
	f := plan.NewFilter(scan, "city", plan.Eq, "nyc")

	e := newExecutor(t)
	defer e.Close()

	res, err := e.Run(f)
	if err != nil {
		t.Fatal(err)
	}
	if res.MemErr != nil {
		t.Fatalf("unexpected memory denial: %v", res.MemErr)
	}
	chunks := drain(t, res.Chunks)

	total := 0
	for _, c := range chunks {
		total += c.RowCount
		col := c.Column("city")
		for row := 0; row < c.RowCount; row++ {
			if col.DecodeString(row) != "nyc" {
				t.Fatalf("unexpected row %q passed filter", col.DecodeString(row))
			}
		}
	}
	if total != 2 {
		t.Fatalf("got %d rows, want 2", total)
	}
}

func TestExecutorGroupBy(t *testing.T) {
	path := writeCSV(t, "city,amount\nnyc,10\nsf,20\nnyc,30\nsf,40\n")
	scan := newScan(t, path)
	g := plan.NewGroupBy(scan, []string{"city"}, []plan.Agg{
		{Column: "amount", Func: plan.Sum, OutName: "total"},
	})

	e := newExecutor(t)
	defer e.Close()

	res, err := e.Run(g)
	if err != nil {
		t.Fatal(err)
	}
	chunks := drain(t, res.Chunks)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.RowCount != 2 {
		t.Fatalf("got %d groups, want 2", c.RowCount)
	}

	totals := make(map[string]float64)
	cityCol := c.Column("city")
	totalCol := c.Column("total")
	for row := 0; row < c.RowCount; row++ {
		totals[cityCol.DecodeString(row)] = totalCol.Float64At(row)
	}
	if totals["nyc"] != 40 {
		t.Fatalf("nyc total = %v, want 40", totals["nyc"])
	}
	if totals["sf"] != 60 {
		t.Fatalf("sf total = %v, want 60", totals["sf"])
	}
}

func TestExecutorSort(t *testing.T) {
	path := writeCSV(t, "city,amount\nnyc,30\nsf,10\nla,20\n")
	scan := newScan(t, path)
	s := plan.NewSort(scan, []string{"amount"}, []plan.Direction{plan.Asc}, 0)

	e := newExecutor(t)
	defer e.Close()

	res, err := e.Run(s)
	if err != nil {
		t.Fatal(err)
	}
	chunks := drain(t, res.Chunks)

	var amounts []float64
	for _, c := range chunks {
		col := c.Column("amount")
		for row := 0; row < c.RowCount; row++ {
			amounts = append(amounts, col.Float64At(row))
		}
	}
	want := []float64{10, 20, 30}
	if len(amounts) != len(want) {
		t.Fatalf("got %v, want %v", amounts, want)
	}
	for i := range want {
		if amounts[i] != want[i] {
			t.Fatalf("got %v, want %v", amounts, want)
		}
	}
}

func TestExecutorDistinct(t *testing.T) {
	path := writeCSV(t, "city,amount\nnyc,10\nnyc,10\nsf,20\n")
	scan := newScan(t, path)
	d := plan.NewDistinct(scan, nil)

	e := newExecutor(t)
	defer e.Close()

	res, err := e.Run(d)
	if err != nil {
		t.Fatal(err)
	}
	chunks := drain(t, res.Chunks)
	total := 0
	for _, c := range chunks {
		total += c.RowCount
	}
	if total != 2 {
		t.Fatalf("got %d rows, want 2", total)
	}
}

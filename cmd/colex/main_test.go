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

package main

import (
	"testing"

	"github.com/colexdb/colex/plan"
)

func TestParseKV(t *testing.T) {
	got := parseKV("path=other.yaml,on=id,how=left")
	want := map[string]string{"path": "other.yaml", "on": "id", "how": "left"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestParseFilterValue(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"42", float64(42)},
		{"3.5", 3.5},
		{"true", true},
		{`"hello"`, "hello"},
		{"hello", "hello"},
	}
	for _, c := range cases {
		got := parseFilterValue(c.in)
		if got != c.want {
			t.Errorf("parseFilterValue(%q) = %v (%T), want %v (%T)", c.in, got, got, c.want, c.want)
		}
	}
}

func TestApplyFilter(t *testing.T) {
	scan := plan.NewScan("data.csv", nil, []string{"amount"}, plan.ScanOptions{})
	n, err := applyFilter(scan, "amount >= 100")
	if err != nil {
		t.Fatal(err)
	}
	f, ok := n.(*plan.Filter)
	if !ok {
		t.Fatalf("got %T, want *plan.Filter", n)
	}
	if f.Column != "amount" || f.Op != plan.Gte || f.Value != float64(100) {
		t.Errorf("got Column=%q Op=%q Value=%v", f.Column, f.Op, f.Value)
	}
}

func TestApplyFilterNoOperator(t *testing.T) {
	scan := plan.NewScan("data.csv", nil, []string{"amount"}, plan.ScanOptions{})
	if _, err := applyFilter(scan, "amount 100"); err == nil {
		t.Fatal("expected an error for a missing operator")
	}
}

func TestApplyGroupBy(t *testing.T) {
	scan := plan.NewScan("data.csv", nil, []string{"region", "amount"}, plan.ScanOptions{})
	n, err := applyGroupBy(scan, "region", "sum(amount)=total,count(amount)=n")
	if err != nil {
		t.Fatal(err)
	}
	g, ok := n.(*plan.GroupBy)
	if !ok {
		t.Fatalf("got %T, want *plan.GroupBy", n)
	}
	if len(g.Keys) != 1 || g.Keys[0] != "region" {
		t.Errorf("got Keys=%v", g.Keys)
	}
	if len(g.Aggs) != 2 {
		t.Fatalf("got %d aggs, want 2", len(g.Aggs))
	}
	if g.Aggs[0].Func != plan.Sum || g.Aggs[0].Column != "amount" || g.Aggs[0].OutName != "total" {
		t.Errorf("got agg[0]=%+v", g.Aggs[0])
	}
}

func TestApplySort(t *testing.T) {
	scan := plan.NewScan("data.csv", nil, []string{"amount", "name"}, plan.ScanOptions{})
	n, err := applySort(scan, "amount:desc,name")
	if err != nil {
		t.Fatal(err)
	}
	s, ok := n.(*plan.Sort)
	if !ok {
		t.Fatalf("got %T, want *plan.Sort", n)
	}
	want := []string{"amount", "name"}
	for i, c := range want {
		if s.Columns[i] != c {
			t.Errorf("Columns[%d] = %q, want %q", i, s.Columns[i], c)
		}
	}
	if s.Directions[0] != plan.Desc || s.Directions[1] != plan.Asc {
		t.Errorf("got Directions=%v", s.Directions)
	}
}

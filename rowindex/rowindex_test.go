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

package rowindex

import (
	"strings"
	"testing"
)

func TestBuildWithHeader(t *testing.T) {
	data := "id,name\n1,a\n2,b\n3,c\n"
	idx, err := Build(strings.NewReader(data), int64(len(data)), true)
	if err != nil {
		t.Fatal(err)
	}
	if idx.RowCount() != 3 {
		t.Fatalf("got RowCount()=%d, want 3", idx.RowCount())
	}
	headerLen := int64(len("id,name\n"))
	start, end, err := idx.GetRowsRange(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if start != headerLen || end != headerLen+int64(len("1,a\n")) {
		t.Errorf("got range [%d,%d)", start, end)
	}
}

func TestBuildWithoutHeader(t *testing.T) {
	data := "1,a\n2,b\n"
	idx, err := Build(strings.NewReader(data), int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.RowCount() != 2 {
		t.Fatalf("got RowCount()=%d, want 2", idx.RowCount())
	}
	off, err := idx.GetRowOffset(0)
	if err != nil || off != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", off, err)
	}
}

func TestBuildNoTrailingNewline(t *testing.T) {
	data := "1,a\n2,b"
	idx, err := Build(strings.NewReader(data), int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.RowCount() != 2 {
		t.Fatalf("got RowCount()=%d, want 2", idx.RowCount())
	}
	start, end, err := idx.GetRowsRange(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[start:end]) != "2,b" {
		t.Errorf("got row 1 = %q, want %q", data[start:end], "2,b")
	}
}

func TestBuildTrimsTrailingBlankLine(t *testing.T) {
	data := "1,a\n2,b\n\n"
	idx, err := Build(strings.NewReader(data), int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.RowCount() != 2 {
		t.Fatalf("got RowCount()=%d, want 2 (trailing blank line trimmed)", idx.RowCount())
	}
}

func TestGetRowsRangeOutOfBounds(t *testing.T) {
	data := "1,a\n2,b\n"
	idx, err := Build(strings.NewReader(data), int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := idx.GetRowsRange(0, idx.RowCount()+1); err == nil {
		t.Error("expected an out-of-bounds error")
	}
	if _, _, err := idx.GetRowsRange(-1, 1); err == nil {
		t.Error("expected an out-of-bounds error for a negative start")
	}
}

func TestBuildManySegments(t *testing.T) {
	var b strings.Builder
	const rows = 2_500_003 // spans three segments of segmentCapacity=1,000,000
	for i := 0; i < rows; i++ {
		b.WriteString("x\n")
	}
	data := b.String()
	idx, err := Build(strings.NewReader(data), int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.RowCount() != rows {
		t.Fatalf("got RowCount()=%d, want %d", idx.RowCount(), rows)
	}
	start, end, err := idx.GetRowsRange(rows-1, rows)
	if err != nil {
		t.Fatal(err)
	}
	if end-start != 2 {
		t.Errorf("got last row length %d, want 2", end-start)
	}
}

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

package colexerr

import (
	"errors"
	"io/fs"
	"testing"
)

func TestErrorsImplementHinted(t *testing.T) {
	var errs = []Hinted{
		&ColumnNotFound{Column: "x"},
		&TypeMismatch{Column: "x", Op: "sum", Got: "string", Want: "numeric"},
		&IndexOutOfBounds{Index: 5, Bound: 3},
		&Schema{Msg: "duplicate column"},
		&Parse{Msg: "bad header"},
		&IO{Path: "/tmp/x.csv", Err: fs.ErrNotExist},
		&Cancelled{},
		&MemoryLimit{RequestedBytes: 100, AvailableBytes: 10, GlobalLimitBytes: 50, ActiveTaskCount: 2},
	}
	for _, e := range errs {
		if e.Error() == "" {
			t.Errorf("%T: empty Error()", e)
		}
		if e.Hint() == "" {
			t.Errorf("%T: empty Hint()", e)
		}
	}
}

func TestIOUnwrap(t *testing.T) {
	e := &IO{Path: "/tmp/x.csv", Err: fs.ErrNotExist}
	if !errors.Is(e, fs.ErrNotExist) {
		t.Error("errors.Is should see through IO.Unwrap to the wrapped error")
	}
}

func TestErrorsAs(t *testing.T) {
	var err error = &ColumnNotFound{Column: "amount"}
	var cnf *ColumnNotFound
	if !errors.As(err, &cnf) {
		t.Fatal("errors.As should match *ColumnNotFound")
	}
	if cnf.Column != "amount" {
		t.Errorf("got Column=%q", cnf.Column)
	}
}

func TestMemoryLimitCode(t *testing.T) {
	e := &MemoryLimit{}
	if e.Code() != "MEMORY_LIMIT_EXCEEDED" {
		t.Errorf("got Code()=%q", e.Code())
	}
}

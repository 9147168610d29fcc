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

// Package date implements the datetime-parsing boundary collaborator:
// per-column formats are parsed to epoch-milliseconds, the wire
// representation colex stores DateTime columns in.
package date

import (
	"strconv"
	"strings"
	"time"

	"github.com/colexdb/colex/colexerr"
)

// Format names a per-column datetime format, per spec.md §6.
type Format string

const (
	ISO    Format = "iso"
	SQL    Format = "sql"
	DATE   Format = "date"
	UnixS  Format = "unix-s"
	UnixMS Format = "unix-ms"
)

const (
	sqlLayoutSec    = "2006-01-02 15:04:05"
	sqlLayoutMillis = "2006-01-02 15:04:05.000"
	sqlLayoutMin    = "2006-01-02 15:04"
	dateLayout      = "2006-01-02"
)

// ParseMillis parses text as the given format (default zone UTC unless
// loc is supplied) and returns epoch-milliseconds.
func ParseMillis(format Format, text string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	text = strings.TrimSpace(text)
	switch format {
	case ISO:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			t, err = time.ParseInLocation("2006-01-02T15:04:05", text, loc)
			if err != nil {
				return 0, &colexerr.Parse{Msg: "invalid iso datetime " + strconv.Quote(text)}
			}
		}
		return t.UnixMilli(), nil
	case SQL:
		for _, layout := range []string{sqlLayoutMillis, sqlLayoutSec, sqlLayoutMin} {
			if t, err := time.ParseInLocation(layout, text, loc); err == nil {
				return t.UnixMilli(), nil
			}
		}
		return 0, &colexerr.Parse{Msg: "invalid sql datetime " + strconv.Quote(text)}
	case DATE:
		t, err := time.ParseInLocation(dateLayout, text, loc)
		if err != nil {
			return 0, &colexerr.Parse{Msg: "invalid date " + strconv.Quote(text)}
		}
		return t.UnixMilli(), nil
	case UnixS:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, &colexerr.Parse{Msg: "invalid unix-s timestamp " + strconv.Quote(text)}
		}
		return n * 1000, nil
	case UnixMS:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, &colexerr.Parse{Msg: "invalid unix-ms timestamp " + strconv.Quote(text)}
		}
		return n, nil
	default:
		return 0, &colexerr.Parse{Msg: "unknown datetime format " + strconv.Quote(string(format))}
	}
}

// EpochDays converts a DATE-formatted value to epoch-days (colex's
// Date column representation), rather than epoch-ms.
func EpochDays(text string, loc *time.Location) (int64, error) {
	ms, err := ParseMillis(DATE, text, loc)
	if err != nil {
		return 0, err
	}
	return ms / (24 * 60 * 60 * 1000), nil
}

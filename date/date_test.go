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

package date

import "testing"

func TestParseMillis(t *testing.T) {
	cases := []struct {
		format Format
		text   string
		want   int64
	}{
		{ISO, "2024-01-02T03:04:05Z", 1704164645000},
		{SQL, "2024-01-02 03:04:05", 1704164645000},
		{DATE, "2024-01-02", 1704153600000},
		{UnixS, "1704164645", 1704164645000},
		{UnixMS, "1704164645000", 1704164645000},
	}
	for _, c := range cases {
		got, err := ParseMillis(c.format, c.text, nil)
		if err != nil {
			t.Errorf("ParseMillis(%s, %q): %v", c.format, c.text, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMillis(%s, %q) = %d, want %d", c.format, c.text, got, c.want)
		}
	}
}

func TestParseMillisErrors(t *testing.T) {
	cases := []struct {
		format Format
		text   string
	}{
		{ISO, "not-a-date"},
		{SQL, "not-a-date"},
		{DATE, "2024/01/02"},
		{UnixS, "abc"},
		{UnixMS, "abc"},
		{Format("bogus"), "2024-01-02"},
	}
	for _, c := range cases {
		if _, err := ParseMillis(c.format, c.text, nil); err == nil {
			t.Errorf("ParseMillis(%s, %q): expected an error", c.format, c.text)
		}
	}
}

func TestEpochDays(t *testing.T) {
	got, err := EpochDays("2024-01-02", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(19724); got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestEpochDaysRejectsFullDatetime(t *testing.T) {
	if _, err := EpochDays("2024-01-02T03:04:05Z", nil); err == nil {
		t.Error("expected an error for a full datetime string under the strict DATE layout")
	}
}

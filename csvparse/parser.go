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

// Package csvparse implements the byte-level CSV parser: it decodes a
// byte range into a columnar schema.Chunk whose String columns hold
// offsets into the source bytes rather than copies of each cell; when
// a dictionary is given, each non-null String value is also decoded
// and interned into it. Numeric/bool columns are
// decoded directly into typed buffers via in-place byte routines.
//
// The parser does not support newlines inside quoted fields (see
// spec.md §8.2 and §9); the row-offset index scan and this parser
// agree on that restriction.
package csvparse

import (
	"github.com/colexdb/colex/dict"
	"github.com/colexdb/colex/schema"
)

// DefaultNullValues is the built-in null-value set, unioned with any
// user-supplied values.
var DefaultNullValues = []string{"NA", "null", "-", ""}

// Options configure a parse pass.
type Options struct {
	Delimiter   byte
	NullValues  map[string]bool // decoded textual value -> is-null
	TrackNulls  bool            // whether to populate a null bitmap
}

// NewOptions builds Options with DefaultNullValues unioned with extra.
func NewOptions(delimiter byte, trackNulls bool, extra []string) Options {
	set := make(map[string]bool, len(DefaultNullValues)+len(extra))
	for _, v := range DefaultNullValues {
		set[v] = true
	}
	for _, v := range extra {
		set[v] = true
	}
	return Options{Delimiter: delimiter, NullValues: set, TrackNulls: trackNulls}
}

// ParseChunkBytes decodes bytes (a half-open byte range covering whole
// CSV rows, no trailing partial row) into a columnar chunk. columnOrder
// names the fields present in the raw bytes in file order; sc is the
// (possibly narrower, for column-pruned scans) target schema. Columns
// in columnOrder absent from sc are skipped during decode but still
// consume their field during line scanning.
func ParseChunkBytes(bytes []byte, expectedRows int, columnOrder []string, sc *schema.Schema, dictionary *dict.Dictionary, opt Options) (*schema.Chunk, error) {
	p := newPlan(columnOrder, sc)
	cols := make([]schema.Vector, sc.Len())
	for i, c := range sc.Columns {
		cols[i] = newVector(c.DType, expectedRows)
		if c.DType == schema.String {
			cols[i].Bytes = bytes // storeField decodes against it when interning
		}
	}

	row := 0
	pos := 0
	n := len(bytes)
	for pos < n && row < expectedRows+1 {
		fieldIdx := 0
		for {
			raw, off, ln, unesc, next, isLast := scanField(bytes, pos, opt.Delimiter)
			_ = raw
			if fieldIdx < len(p.srcToDst) {
				dst := p.srcToDst[fieldIdx]
				if dst >= 0 {
					text := bytes[off : off+ln]
					storeField(&cols[dst], sc.Columns[dst].DType, text, unesc, off, ln, opt, dictionary)
				}
			}
			pos = next
			fieldIdx++
			if isLast {
				break
			}
		}
		// default trailing missing fields to zero value/empty.
		for ; fieldIdx < len(p.srcToDst); fieldIdx++ {
			dst := p.srcToDst[fieldIdx]
			if dst >= 0 {
				storeField(&cols[dst], sc.Columns[dst].DType, nil, false, 0, 0, opt, dictionary)
			}
		}
		row++
	}

	return schema.NewChunk(sc, 0, row, cols, bytes), nil
}

// parsePlan maps a field position in the raw row (source column order) to
// the destination index in sc, or -1 if that field is pruned.
type parsePlan struct {
	srcToDst []int
}

func newPlan(columnOrder []string, sc *schema.Schema) *parsePlan {
	p := &parsePlan{srcToDst: make([]int, len(columnOrder))}
	for i, name := range columnOrder {
		p.srcToDst[i] = sc.IndexOf(name)
	}
	return p
}

func newVector(dt schema.DType, capRows int) schema.Vector {
	v := schema.Vector{DType: dt}
	switch dt {
	case schema.Int32:
		v.Int32s = make([]int32, 0, capRows)
	case schema.Float64:
		v.Float64s = make([]float64, 0, capRows)
	case schema.Bool:
		v.Bools = make([]bool, 0, capRows)
	case schema.Date, schema.DateTime:
		v.Int64s = make([]int64, 0, capRows)
	case schema.String:
		v.Offsets = make([]uint32, 0, capRows)
		v.Lengths = make([]uint32, 0, capRows)
		v.NeedsUnescape = make([]bool, 0, capRows)
	}
	return v
}

// scanField consumes one field starting at pos, returning its raw
// bytes, its [off,off+ln) location within bytes, whether it required
// unescaping, the position just past the field's terminator, and
// whether this was the line's last field.
func scanField(data []byte, pos int, delim byte) (raw []byte, off, ln int, needsUnescape bool, next int, isLast bool) {
	n := len(data)
	if pos < n && data[pos] == '"' {
		// quoted field
		start := pos + 1
		i := start
		for i < n {
			if data[i] == '"' {
				if i+1 < n && data[i+1] == '"' {
					needsUnescape = true
					i += 2
					continue
				}
				break
			}
			i++
		}
		off, ln = start, i-start
		i++ // skip closing quote
		// consume until delimiter/newline
		for i < n && data[i] != delim && data[i] != '\n' {
			i++
		}
		next, isLast = afterField(data, i, delim)
		return data[off : off+ln], off, ln, needsUnescape, next, isLast
	}

	start := pos
	i := pos
	for i < n && data[i] != delim && data[i] != '\n' {
		i++
	}
	end := i
	if end > start && data[end-1] == '\r' && (i >= n || data[i] == '\n') {
		end--
	}
	off, ln = start, end-start
	next, isLast = afterField(data, i, delim)
	return data[off : off+ln], off, ln, false, next, isLast
}

func afterField(data []byte, i int, delim byte) (next int, isLast bool) {
	n := len(data)
	if i >= n {
		return i, true
	}
	if data[i] == delim {
		return i + 1, false
	}
	// data[i] == '\n'
	return i + 1, true
}

func storeField(v *schema.Vector, dt schema.DType, text []byte, needsUnescape bool, off, ln int, opt Options, d *dict.Dictionary) {
	row := v.Len()
	isNull := false
	if len(opt.NullValues) > 0 {
		// only decode for the null check when cheap (no escapes,
		// or zero-length); this keeps the common numeric-field path
		// allocation-free.
		if !needsUnescape {
			isNull = opt.NullValues[string(text)]
		}
	}

	switch dt {
	case schema.Int32:
		var val int32
		if !isNull {
			val = parseInt32(text)
		}
		v.Int32s = append(v.Int32s, val)
		maybeTrackNull(v, row, isNull, opt)
	case schema.Float64:
		var val float64
		if !isNull {
			val = parseFloat64(text)
		}
		v.Float64s = append(v.Float64s, val)
		maybeTrackNull(v, row, isNull, opt)
	case schema.Bool:
		var val bool
		if !isNull {
			val = parseBool(text)
		}
		v.Bools = append(v.Bools, val)
		maybeTrackNull(v, row, isNull, opt)
	case schema.Date, schema.DateTime:
		var val int64
		if !isNull {
			val = parseInt64(text)
		}
		v.Int64s = append(v.Int64s, val)
		maybeTrackNull(v, row, isNull, opt)
	case schema.String:
		if isNull {
			v.Offsets = append(v.Offsets, 0)
			v.Lengths = append(v.Lengths, 0)
			v.NeedsUnescape = append(v.NeedsUnescape, false)
		} else {
			v.Offsets = append(v.Offsets, uint32(off))
			v.Lengths = append(v.Lengths, uint32(ln))
			v.NeedsUnescape = append(v.NeedsUnescape, needsUnescape)
		}
		maybeTrackNull(v, row, isNull, opt)
		if d != nil && !isNull {
			// proactively intern so downstream group/sort/distinct
			// can work off dictionary ids without re-scanning bytes.
			d.Intern(v.DecodeString(row))
		}
	}
}

func maybeTrackNull(v *schema.Vector, row int, isNull bool, opt Options) {
	if !opt.TrackNulls {
		return
	}
	v.SetNull(row, !isNull)
}

// parseInt32 reads a (possibly signed) decimal integer from text. Per
// spec.md §9, non-digit bytes terminate the value rather than
// signalling an error; unparsable input yields 0.
func parseInt32(text []byte) int32 {
	return int32(parseInt64(text))
}

func parseInt64(text []byte) int64 {
	i := 0
	neg := false
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}
	var val int64
	any := false
	for ; i < len(text); i++ {
		c := text[i]
		if c < '0' || c > '9' {
			break
		}
		val = val*10 + int64(c-'0')
		any = true
	}
	if !any {
		return 0
	}
	if neg {
		val = -val
	}
	return val
}

// parseFloat64 handles sign, decimal point, and scientific exponent;
// invalid characters terminate the value the same way parseInt64 does.
func parseFloat64(text []byte) float64 {
	i := 0
	neg := false
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}
	var mantissa float64
	any := false
	for ; i < len(text); i++ {
		c := text[i]
		if c < '0' || c > '9' {
			break
		}
		mantissa = mantissa*10 + float64(c-'0')
		any = true
	}
	if i < len(text) && text[i] == '.' {
		i++
		frac := 0.1
		for ; i < len(text); i++ {
			c := text[i]
			if c < '0' || c > '9' {
				break
			}
			mantissa += float64(c-'0') * frac
			frac /= 10
			any = true
		}
	}
	if !any {
		return 0
	}
	exp := 0
	expNeg := false
	if i < len(text) && (text[i] == 'e' || text[i] == 'E') {
		j := i + 1
		if j < len(text) && (text[j] == '+' || text[j] == '-') {
			expNeg = text[j] == '-'
			j++
		}
		expAny := false
		for ; j < len(text); j++ {
			c := text[j]
			if c < '0' || c > '9' {
				break
			}
			exp = exp*10 + int(c-'0')
			expAny = true
		}
		if expAny {
			i = j
		}
	}
	if exp != 0 {
		scale := pow10(exp)
		if expNeg {
			mantissa /= scale
		} else {
			mantissa *= scale
		}
	}
	if neg {
		mantissa = -mantissa
	}
	return mantissa
}

func pow10(n int) float64 {
	r := 1.0
	b := 10.0
	for n > 0 {
		if n&1 == 1 {
			r *= b
		}
		b *= b
		n >>= 1
	}
	return r
}

func parseBool(text []byte) bool {
	switch string(text) {
	case "true", "TRUE", "True", "1", "t", "T":
		return true
	default:
		return false
	}
}

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

// Package colexcfg loads a Scan's schema and options from a YAML
// definition file (sigs.k8s.io/yaml, the same definition.yaml
// convention the teacher's db/sync.go uses for table definitions), and
// offers a schema-sniffing convenience wrapper for callers that have
// no schema of their own.
package colexcfg

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/colexdb/colex/csvparse"
	"github.com/colexdb/colex/date"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
)

// ColumnDef names one scan column and its dtype, in on-disk order.
type ColumnDef struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
}

// OptionsDef mirrors plan.ScanOptions in YAML-friendly form.
type OptionsDef struct {
	ChunkSize  int      `json:"chunkSize,omitempty"`
	Delimiter  string   `json:"delimiter,omitempty"`
	HasHeader  *bool    `json:"hasHeader,omitempty"`
	NullValues []string `json:"nullValues,omitempty"`
}

// Config is a fully-specified Scan definition.
type Config struct {
	Path    string      `json:"path"`
	Columns []ColumnDef `json:"columns"`
	Options OptionsDef  `json:"options,omitempty"`
}

// DefaultChunkSize matches exec.Source's fallback when a Scan's
// ChunkSize is left unset.
const DefaultChunkSize = 65536

// Load reads and parses path as a YAML Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("colexcfg: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("colexcfg: parsing %s: %w", path, err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("colexcfg: %s: missing path", path)
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("colexcfg: %s: no columns defined", path)
	}
	return &cfg, nil
}

// Schema builds the schema.Schema described by c's column defs.
func (c *Config) Schema() (*schema.Schema, error) {
	cols := make([]schema.Column, len(c.Columns))
	for i, cd := range c.Columns {
		dt, err := parseDType(cd.DType)
		if err != nil {
			return nil, err
		}
		cols[i] = schema.Column{Name: cd.Name, DType: dt}
	}
	return schema.New(cols)
}

// ColumnOrder returns the scan's on-disk field order.
func (c *Config) ColumnOrder() []string {
	names := make([]string, len(c.Columns))
	for i, cd := range c.Columns {
		names[i] = cd.Name
	}
	return names
}

// ScanOptions translates c's OptionsDef into plan.ScanOptions. Unset
// fields default to a ',' delimiter, DefaultChunkSize (exec.OpenSource's
// own fallback for a zero ChunkSize) and HasHeader true; a zero-value
// plan.ScanOptions, by contrast, has no header row.
func (c *Config) ScanOptions() plan.ScanOptions {
	delim := byte(',')
	if c.Options.Delimiter != "" {
		delim = c.Options.Delimiter[0]
	}
	hasHeader := true
	if c.Options.HasHeader != nil {
		hasHeader = *c.Options.HasHeader
	}
	chunkSize := c.Options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return plan.ScanOptions{
		ChunkSize:  chunkSize,
		Delimiter:  delim,
		HasHeader:  hasHeader,
		NullValues: c.Options.NullValues,
	}
}

// NewScan builds the plan.Scan node c describes.
func (c *Config) NewScan() (*plan.Scan, error) {
	sc, err := c.Schema()
	if err != nil {
		return nil, err
	}
	return plan.NewScan(c.Path, sc, c.ColumnOrder(), c.ScanOptions()), nil
}

// TSV returns opt with its delimiter set to tab. xsv/tsv_chopper.go
// treats CSV and TSV as the same chopper parameterized by separator
// byte; colex's ScanOptions.Delimiter already generalizes this, so TSV
// support is just a one-field override.
func TSV(opt plan.ScanOptions) plan.ScanOptions {
	opt.Delimiter = '\t'
	return opt
}

func parseDType(s string) (schema.DType, error) {
	switch strings.ToLower(s) {
	case "int32", "int":
		return schema.Int32, nil
	case "float64", "float":
		return schema.Float64, nil
	case "bool", "boolean":
		return schema.Bool, nil
	case "string", "str":
		return schema.String, nil
	case "date":
		return schema.Date, nil
	case "datetime":
		return schema.DateTime, nil
	default:
		return 0, fmt.Errorf("colexcfg: unknown dtype %q", s)
	}
}

// boolLiterals is the set of textual values Sniff treats as
// unambiguously boolean, matching csvparse's parseBool/evalOne truthy
// spellings plus their falsy counterparts.
var boolLiterals = map[string]bool{
	"true": true, "TRUE": true, "True": true, "t": true, "T": true, "1": true,
	"false": true, "FALSE": true, "False": true, "f": true, "F": true, "0": true,
}

// columnCandidate tracks which dtypes remain consistent with every
// sampled non-null value seen so far for one column.
type columnCandidate struct {
	isInt32, isFloat64, isBool, isDate, isDateTime bool
	sawAny                                         bool
}

func newColumnCandidate() columnCandidate {
	return columnCandidate{isInt32: true, isFloat64: true, isBool: true, isDate: true, isDateTime: true}
}

func (c *columnCandidate) observe(v string) {
	if v == "" {
		return
	}
	c.sawAny = true
	if c.isInt32 {
		if _, err := strconv.ParseInt(v, 10, 32); err != nil {
			c.isInt32 = false
		}
	}
	if c.isFloat64 {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			c.isFloat64 = false
		}
	}
	if c.isBool && !boolLiterals[v] {
		c.isBool = false
	}
	if c.isDate {
		if _, err := date.EpochDays(v, nil); err != nil {
			c.isDate = false
		}
	}
	if c.isDateTime {
		if _, err := date.ParseMillis(date.ISO, v, nil); err != nil {
			c.isDateTime = false
		}
	}
}

// Sniff reads path's header row (via csvparse.HeaderChopper) plus up
// to sampleRows data rows, parsed in "probe" mode: every column is
// provisionally decoded as String with the byte-level parser
// (csvparse.ParseChunkBytes) rather than re-implementing a second CSV
// reader. Each column is then promoted to the narrowest dtype every
// sampled non-null value parses cleanly as, falling back to String.
// Returns the guessed schema and the header's column order.
func Sniff(path string, sampleRows int) (*schema.Schema, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: %w", path, err)
	}
	defer f.Close()

	header, err := (csvparse.HeaderChopper{}).ReadHeader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: reading header: %w", path, err)
	}

	var sample []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for rows := 0; sampleRows <= 0 || rows < sampleRows; rows++ {
		if !scanner.Scan() {
			break
		}
		sample = append(sample, scanner.Bytes()...)
		sample = append(sample, '\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: %w", path, err)
	}

	probeCols := make([]schema.Column, len(header))
	for i, name := range header {
		probeCols[i] = schema.Column{Name: name, DType: schema.String}
	}
	probeSchema, err := schema.New(probeCols)
	if err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: %w", path, err)
	}

	maxRows := sampleRows
	if maxRows <= 0 {
		maxRows = 1 << 20
	}
	opt := csvparse.NewOptions(',', false, nil)
	chunk, err := csvparse.ParseChunkBytes(sample, maxRows, header, probeSchema, nil, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: probing rows: %w", path, err)
	}

	candidates := make([]columnCandidate, len(header))
	for i := range candidates {
		candidates[i] = newColumnCandidate()
	}
	for col := range header {
		v := &chunk.Columns[col]
		for row := 0; row < chunk.RowCount; row++ {
			candidates[col].observe(v.DecodeString(row))
		}
	}

	cols := make([]schema.Column, len(header))
	for i, name := range header {
		cols[i] = schema.Column{Name: name, DType: candidates[i].resolve()}
	}
	outSchema, err := schema.New(cols)
	if err != nil {
		return nil, nil, fmt.Errorf("colexcfg: sniffing %s: %w", path, err)
	}
	return outSchema, header, nil
}

func (c *columnCandidate) resolve() schema.DType {
	switch {
	case !c.sawAny:
		return schema.String
	case c.isInt32:
		return schema.Int32
	case c.isFloat64:
		return schema.Float64
	case c.isBool:
		return schema.Bool
	case c.isDate:
		return schema.Date
	case c.isDateTime:
		return schema.DateTime
	default:
		return schema.String
	}
}

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

// colex is a single flag-based CLI over the colex engine: it builds a
// plan from a scan config plus a handful of pipeline flags, then
// either executes it (writing CSV to -o) or, with -g, prints the
// optimized plan tree instead.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/colexdb/colex/cache"
	"github.com/colexdb/colex/colexcfg"
	"github.com/colexdb/colex/exec"
	"github.com/colexdb/colex/memtrack"
	"github.com/colexdb/colex/optimize"
	"github.com/colexdb/colex/plan"
	"github.com/colexdb/colex/schema"
	"github.com/colexdb/colex/sysmem"
)

var (
	dashconfig   string
	dashselect   string
	dashfilter   string
	dashgroupby  string
	dashagg      string
	dashsort     string
	dashdistinct string
	dashjoin     string
	dasho        string
	dashg        bool
	dashmem      int64
	cachedir     string
	printStats   bool

	dashsniff  string
	dashsample int
)

func init() {
	flag.StringVar(&dashconfig, "config", "", "scan config YAML file (required, unless -sniff is given)")
	flag.StringVar(&dashselect, "select", "", "comma-separated column projection")
	flag.StringVar(&dashfilter, "filter", "", "filter expression: column op value (op one of == != < <= > >=)")
	flag.StringVar(&dashgroupby, "groupby", "", "comma-separated group-by key columns")
	flag.StringVar(&dashagg, "agg", "", "comma-separated aggregates: func(column)=outname, e.g. sum(amount)=total")
	flag.StringVar(&dashsort, "sort", "", "comma-separated sort columns, optionally suffixed :desc")
	flag.StringVar(&dashdistinct, "distinct", "", "enable distinct; comma-separated subset columns, or empty for every column")
	flag.StringVar(&dashjoin, "join", "", "join another scan config: path=config.yaml,on=column,how=inner")
	flag.StringVar(&dasho, "o", "", "output CSV file (default stdout)")
	flag.BoolVar(&dashg, "g", false, "dump the optimized plan tree instead of executing")
	flag.Int64Var(&dashmem, "mem", 0, "process-wide memory budget in bytes (default: sysmem.DefaultBudget)")
	flag.StringVar(&cachedir, "cachedir", "", "external-sort spill directory (default: os.TempDir)")
	flag.BoolVar(&printStats, "S", false, "print execution statistics on stderr")
	flag.StringVar(&dashsniff, "sniff", "", "sniff a schema from this CSV file and print the guessed column list, then exit")
	flag.IntVar(&dashsample, "sample", 200, "rows to sample for -sniff")
}

var logger = log.New(os.Stderr, "colex: ", 0)

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	if dashsniff != "" {
		runSniff(dashsniff, dashsample)
		return
	}
	if dashconfig == "" {
		flag.Usage()
		os.Exit(1)
	}

	root, err := buildPlan()
	if err != nil {
		exitf("%v", err)
	}

	if dashg {
		opt := optimize.Optimize(root)
		dumpPlan(os.Stdout, opt.Root, 0)
		return
	}

	dst := os.Stdout
	if dasho != "" {
		f, err := os.Create(dasho)
		if err != nil {
			exitf("%v", err)
		}
		defer f.Close()
		dst = f
	}

	if err := run(root, dst); err != nil {
		exitf("%v", err)
	}
}

func runSniff(path string, sampleRows int) {
	sc, header, err := colexcfg.Sniff(path, sampleRows)
	if err != nil {
		exitf("%v", err)
	}
	for _, name := range header {
		dt, _ := sc.DTypeOf(name)
		fmt.Printf("- name: %s\n  dtype: %s\n", name, strings.ToLower(dt.String()))
	}
}

// buildPlan constructs the plan tree named by dashconfig plus the
// pipeline flags, in the fixed order: scan -> join -> filter -> groupby
// -> distinct -> sort -> select.
func buildPlan() (plan.Node, error) {
	cfg, err := colexcfg.Load(dashconfig)
	if err != nil {
		return nil, err
	}
	var root plan.Node
	root, err = cfg.NewScan()
	if err != nil {
		return nil, err
	}

	if dashjoin != "" {
		root, err = applyJoin(root, dashjoin)
		if err != nil {
			return nil, err
		}
	}
	if dashfilter != "" {
		root, err = applyFilter(root, dashfilter)
		if err != nil {
			return nil, err
		}
	}
	if dashgroupby != "" {
		root, err = applyGroupBy(root, dashgroupby, dashagg)
		if err != nil {
			return nil, err
		}
	}
	if flagSeen("distinct") {
		var subset []string
		if dashdistinct != "" {
			subset = strings.Split(dashdistinct, ",")
		}
		root = plan.NewDistinct(root, subset)
	}
	if dashsort != "" {
		root, err = applySort(root, dashsort)
		if err != nil {
			return nil, err
		}
	}
	if dashselect != "" {
		root = plan.NewSelect(root, strings.Split(dashselect, ","))
	}
	return root, nil
}

func flagSeen(name string) bool {
	seen := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			seen = true
		}
	})
	return seen
}

func applyJoin(left plan.Node, spec string) (plan.Node, error) {
	fields := parseKV(spec)
	otherPath, ok := fields["path"]
	if !ok {
		return nil, fmt.Errorf("colex: -join requires path=<config.yaml>")
	}
	on, ok := fields["on"]
	if !ok {
		return nil, fmt.Errorf("colex: -join requires on=<column>")
	}
	how := plan.Inner
	if h, ok := fields["how"]; ok {
		how = plan.JoinHow(h)
	}
	rcfg, err := colexcfg.Load(otherPath)
	if err != nil {
		return nil, err
	}
	right, err := rcfg.NewScan()
	if err != nil {
		return nil, err
	}
	return plan.NewJoin(left, right, on, how, plan.DefaultSuffixes), nil
}

func parseKV(spec string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(spec, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return out
}

var compareOps = []plan.CompareOp{plan.Eq, plan.Neq, plan.Lte, plan.Gte, plan.Lt, plan.Gt}

func applyFilter(input plan.Node, spec string) (plan.Node, error) {
	for _, op := range compareOps {
		idx := strings.Index(spec, string(op))
		if idx <= 0 {
			continue
		}
		col := strings.TrimSpace(spec[:idx])
		val := strings.TrimSpace(spec[idx+len(op):])
		return plan.NewFilter(input, col, op, parseFilterValue(val)), nil
	}
	return nil, fmt.Errorf("colex: -filter %q: no comparison operator found", spec)
}

func parseFilterValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.Trim(s, `"`)
}

func applyGroupBy(input plan.Node, keysSpec, aggSpec string) (plan.Node, error) {
	keys := strings.Split(keysSpec, ",")
	var aggs []plan.Agg
	for _, part := range strings.Split(aggSpec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.SplitN(part, "=", 2)
		if len(eq) != 2 {
			return nil, fmt.Errorf("colex: -agg %q: expected func(column)=outname", part)
		}
		open := strings.Index(eq[0], "(")
		shut := strings.Index(eq[0], ")")
		if open < 0 || shut < open {
			return nil, fmt.Errorf("colex: -agg %q: expected func(column)=outname", part)
		}
		aggs = append(aggs, plan.Agg{
			Func:    plan.AggFunc(eq[0][:open]),
			Column:  eq[0][open+1 : shut],
			OutName: eq[1],
		})
	}
	return plan.NewGroupBy(input, keys, aggs), nil
}

func applySort(input plan.Node, spec string) (plan.Node, error) {
	parts := strings.Split(spec, ",")
	cols := make([]string, len(parts))
	dirs := make([]plan.Direction, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasSuffix(p, ":desc") {
			cols[i] = strings.TrimSuffix(p, ":desc")
			dirs[i] = plan.Desc
		} else {
			cols[i] = strings.TrimSuffix(p, ":asc")
			dirs[i] = plan.Asc
		}
	}
	return plan.NewSort(input, cols, dirs, 0), nil
}

func dumpPlan(w *os.File, n plan.Node, depth int) {
	if n == nil {
		return
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n)
	if j, ok := n.(*plan.Join); ok {
		dumpPlan(w, j.Left, depth+1)
		dumpPlan(w, j.Right, depth+1)
		return
	}
	dumpPlan(w, n.Input(), depth+1)
}

func run(root plan.Node, dst *os.File) error {
	mem := dashmem
	if mem <= 0 {
		mem = sysmem.DefaultBudget()
	}
	tmp := cachedir
	if tmp == "" {
		tmp = os.TempDir()
	}

	tracker := memtrack.New(mem, true)
	ex := exec.New(tracker, memtrack.NewTaskID(), mem/4, tmp)
	ex.SetLogger(cacheLoggerAdapter{logger})
	defer ex.Close()

	start := time.Now()
	res, err := ex.Run(root)
	if err != nil {
		return err
	}
	if res.MemErr != nil {
		return res.MemErr
	}

	outSchema, err := root.OutputSchema()
	if err != nil {
		return err
	}

	w := csv.NewWriter(dst)
	header := make([]string, outSchema.Len())
	for i, c := range outSchema.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}

	var rows int64
	for {
		c, ok, err := res.Chunks.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := writeChunk(w, c); err != nil {
			return err
		}
		rows += int64(c.RowCount)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if printStats {
		fmt.Fprintf(os.Stderr, "%d rows in %v\n", rows, time.Since(start))
	}
	return nil
}

func writeChunk(w *csv.Writer, c *schema.Chunk) error {
	record := make([]string, len(c.Columns))
	for row := 0; row < c.RowCount; row++ {
		for col := range c.Columns {
			record[col] = formatValue(&c.Columns[col], row)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v *schema.Vector, row int) string {
	if v.IsNull(row) {
		return ""
	}
	switch v.DType {
	case schema.Int32:
		return strconv.FormatInt(int64(v.Int32s[row]), 10)
	case schema.Float64:
		return strconv.FormatFloat(v.Float64s[row], 'g', -1, 64)
	case schema.Bool:
		return strconv.FormatBool(v.Bools[row])
	case schema.Date, schema.DateTime:
		return strconv.FormatInt(v.Int64s[row], 10)
	case schema.String:
		return v.DecodeString(row)
	default:
		return ""
	}
}

// cacheLoggerAdapter satisfies cache.Logger (and blockcache.Logger)
// with a *log.Logger, exactly as log.Logger already satisfies them
// structurally via Printf.
type cacheLoggerAdapter struct {
	l *log.Logger
}

func (a cacheLoggerAdapter) Printf(format string, args ...any) { a.l.Printf(format, args...) }

var _ cache.Logger = cacheLoggerAdapter{}

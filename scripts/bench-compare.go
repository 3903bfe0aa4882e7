//go:build ignore

// Compares two `go test -bench` output files and flags benchmarks whose
// ns/op regressed past a threshold. Trailing -N GOMAXPROCS suffixes are
// stripped so runs from machines with different core counts line up.
//
// Usage:
//
//	go test -bench . -benchmem ./... > new.txt
//	go run scripts/bench-compare.go new.txt baseline.txt
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	threshold  = flag.Float64("threshold", 0.20, "relative ns/op change that counts as a regression")
	outputJSON = flag.Bool("json", false, "emit the report as JSON")
)

// benchmark holds the measurements of one benchmark line, keyed by the
// unit go test printed (ns/op, B/op, allocs/op, custom units).
type benchmark map[string]float64

type row struct {
	Name      string  `json:"name"`
	Old       float64 `json:"old_ns_per_op"`
	New       float64 `json:"new_ns_per_op"`
	Delta     float64 `json:"delta"`
	Regressed bool    `json:"regressed"`
}

type report struct {
	Rows      []row    `json:"rows"`
	OnlyNew   []string `json:"only_new,omitempty"`
	OnlyOld   []string `json:"only_old,omitempty"`
	Geomean   float64  `json:"geomean_delta"`
	Regressed int      `json:"regressed"`
	Threshold float64  `json:"threshold"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: go run scripts/bench-compare.go [-threshold 0.2] [-json] <new.txt> <baseline.txt>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench-compare:", err)
		os.Exit(2)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench-compare:", err)
		os.Exit(2)
	}

	rep := compare(current, baseline, *threshold)
	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintln(os.Stderr, "bench-compare:", err)
			os.Exit(2)
		}
	} else {
		printReport(rep)
	}
	if rep.Regressed > 0 {
		os.Exit(1)
	}
}

func parseFile(path string) (map[string]benchmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]benchmark)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name, bm, ok := parseLine(sc.Text())
		if ok {
			out[name] = bm
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no benchmark lines in %s", path)
	}
	return out, nil
}

// parseLine reads one `BenchmarkName-8  N  value unit [value unit ...]`
// line. Everything after the iteration count comes in value/unit pairs.
func parseLine(line string) (string, benchmark, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return "", nil, false
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return "", nil, false
	}

	bm := make(benchmark)
	for i := 2; i+1 < len(fields); i += 2 {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return "", nil, false
		}
		bm[fields[i+1]] = v
	}
	if _, ok := bm["ns/op"]; !ok {
		return "", nil, false
	}
	return trimProcSuffix(fields[0]), bm, true
}

func trimProcSuffix(name string) string {
	i := strings.LastIndex(name, "-")
	if i < 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

func compare(current, baseline map[string]benchmark, threshold float64) report {
	rep := report{Threshold: threshold}

	logSum := 0.0
	for name, cur := range current {
		base, ok := baseline[name]
		if !ok {
			rep.OnlyNew = append(rep.OnlyNew, name)
			continue
		}
		delta := (cur["ns/op"] - base["ns/op"]) / base["ns/op"]
		r := row{
			Name:      strings.TrimPrefix(name, "Benchmark"),
			Old:       base["ns/op"],
			New:       cur["ns/op"],
			Delta:     delta,
			Regressed: delta > threshold,
		}
		if r.Regressed {
			rep.Regressed++
		}
		logSum += math.Log(cur["ns/op"] / base["ns/op"])
		rep.Rows = append(rep.Rows, r)
	}
	for name := range baseline {
		if _, ok := current[name]; !ok {
			rep.OnlyOld = append(rep.OnlyOld, name)
		}
	}

	sort.Slice(rep.Rows, func(i, j int) bool { return rep.Rows[i].Name < rep.Rows[j].Name })
	sort.Strings(rep.OnlyNew)
	sort.Strings(rep.OnlyOld)
	if len(rep.Rows) > 0 {
		rep.Geomean = math.Exp(logSum/float64(len(rep.Rows))) - 1
	}
	return rep
}

func printReport(rep report) {
	fmt.Printf("%-44s %14s %14s %9s\n", "benchmark", "old ns/op", "new ns/op", "delta")
	for _, r := range rep.Rows {
		mark := ""
		if r.Regressed {
			mark = "  SLOWER"
		}
		fmt.Printf("%-44s %14.1f %14.1f %+8.1f%%%s\n", r.Name, r.Old, r.New, r.Delta*100, mark)
	}
	for _, name := range rep.OnlyNew {
		fmt.Printf("%-44s %14s %14s %9s\n", strings.TrimPrefix(name, "Benchmark"), "-", "new", "")
	}
	for _, name := range rep.OnlyOld {
		fmt.Printf("%-44s %14s %14s %9s\n", strings.TrimPrefix(name, "Benchmark"), "gone", "-", "")
	}

	fmt.Printf("\ngeomean delta %+.1f%% across %d benchmarks\n", rep.Geomean*100, len(rep.Rows))
	if rep.Regressed > 0 {
		fmt.Printf("FAIL: %d benchmark(s) slower by more than %.0f%%\n", rep.Regressed, rep.Threshold*100)
	}
}

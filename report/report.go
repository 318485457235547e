// Package report formats sweep results into comparison tables.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/weiihann/sweepbench/harness"
)

// ErrNoBaseline means the first result of a sweep has no duration, so no
// speed-ups can be computed.
var ErrNoBaseline = errors.New("first result has no duration")

// Speedups returns t_first / t_i for every result. Results without a
// duration get NaN.
func Speedups(results []harness.RunResult) ([]float64, error) {
	if len(results) == 0 {
		return nil, nil
	}

	base, ok := results[0].Duration()
	if !ok || base <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBaseline, results[0].Label)
	}

	out := make([]float64, len(results))
	for i, r := range results {
		d, ok := r.Duration()
		if !ok || d <= 0 {
			out[i] = math.NaN()

			continue
		}

		out[i] = base / d
	}

	return out, nil
}

// Generate writes a markdown table for one sweep. Speed-ups are relative to
// the first step; they are left out when that step failed.
func Generate(w io.Writer, sweep string, results []harness.RunResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	speedups, err := Speedups(results)
	if err != nil {
		speedups = nil
	}

	fmt.Fprintf(w, "## Sweep: %s\n", sweep)
	fmt.Fprintln(w)

	if speedups == nil {
		fmt.Fprintf(w, "Baseline **%s** failed, speed-ups omitted.\n", results[0].Label)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "| # | Parameter | Time | Speedup | Status |")
	fmt.Fprintln(w, "|---|-----------|------|---------|--------|")

	for i, r := range results {
		speedup := "-"
		if speedups != nil && !math.IsNaN(speedups[i]) {
			speedup = fmt.Sprintf("%.2fx", speedups[i])
		}

		timing := "-"
		if d, ok := r.Duration(); ok {
			timing = formatSeconds(d)
		}

		fmt.Fprintf(w, "| %d | `%s` | %s | %s | %s |\n",
			i+1, r.Label, timing, speedup, status(r))
	}

	return nil
}

// Summary writes one line per failed step and returns the number of
// failures. Nothing is written when every step succeeded.
func Summary(w io.Writer, sweep string, results []harness.RunResult) int {
	failures := 0

	for _, r := range results {
		if r.Succeeded {
			continue
		}

		if failures == 0 {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "### Failures in %s\n", sweep)
			fmt.Fprintln(w)
		}

		failures++

		fmt.Fprintf(w, "- `%s` (%s): %s\n", r.Label, r.Stage, r.Error)
	}

	return failures
}

type jsonReport struct {
	Sweep   string    `json:"sweep"`
	Results []jsonRow `json:"results"`
}

type jsonRow struct {
	harness.RunResult

	Speedup *float64 `json:"speedup,omitempty"`
}

// GenerateJSON writes results and their speed-ups to w as a single JSON
// object on one line, so the reports of several sweeps form JSON Lines.
func GenerateJSON(w io.Writer, sweep string, results []harness.RunResult) error {
	speedups, _ := Speedups(results)

	rep := jsonReport{Sweep: sweep, Results: make([]jsonRow, len(results))}
	for i, r := range results {
		rep.Results[i].RunResult = r

		if speedups != nil && !math.IsNaN(speedups[i]) {
			rep.Results[i].Speedup = &speedups[i]
		}
	}

	return json.NewEncoder(w).Encode(rep)
}

// CSVHeader is the first record written by GenerateCSV.
var CSVHeader = []string{"sweep", "step", "label", "duration_s", "speedup", "succeeded", "stage", "error"}

// GenerateCSV writes one record per result. With header false the header
// record is skipped so several sweeps can share one file.
func GenerateCSV(w io.Writer, sweep string, results []harness.RunResult, header bool) error {
	speedups, _ := Speedups(results)

	cw := csv.NewWriter(w)

	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	for i, r := range results {
		duration := ""
		if d, ok := r.Duration(); ok {
			duration = strconv.FormatFloat(d, 'g', -1, 64)
		}

		speedup := ""
		if speedups != nil && !math.IsNaN(speedups[i]) {
			speedup = fmt.Sprintf("%.4f", speedups[i])
		}

		record := []string{
			sweep,
			strconv.Itoa(i + 1),
			r.Label,
			duration,
			speedup,
			strconv.FormatBool(r.Succeeded),
			string(r.Stage),
			r.Error,
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func status(r harness.RunResult) string {
	if r.Succeeded {
		return "ok"
	}

	return fmt.Sprintf("failed (%s)", r.Stage)
}

func formatSeconds(s float64) string {
	switch {
	case s < 1e-3:
		return fmt.Sprintf("%.1fµs", s*1e6)
	case s < 1:
		return fmt.Sprintf("%.2fms", s*1e3)
	default:
		return fmt.Sprintf("%.3fs", s)
	}
}

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/weiihann/sweepbench/harness"
)

func seconds(v float64) *float64 {
	return &v
}

func TestGenerateSucceededSweep(t *testing.T) {
	results := []harness.RunResult{
		{Label: "-O0", DurationSeconds: seconds(2.0), Succeeded: true, Stage: harness.StageDone},
		{Label: "-O2", DurationSeconds: seconds(0.5), Succeeded: true, Stage: harness.StageDone},
		{Label: "-O3", DurationSeconds: seconds(0.0004), Succeeded: true, Stage: harness.StageDone},
	}

	var buf bytes.Buffer
	if err := Generate(&buf, "levels", results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	for _, want := range []string{
		"## Sweep: levels",
		"| 1 | `-O0` | 2.000s | 1.00x | ok |",
		"| 2 | `-O2` | 500.00ms | 4.00x | ok |",
		"400.0µs",
		"5000.00x",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	var summary bytes.Buffer
	if n := Summary(&summary, "levels", results); n != 0 {
		t.Errorf("expected no failures, got %d", n)
	}
	if summary.Len() != 0 {
		t.Errorf("expected empty summary, got %q", summary.String())
	}
}

func TestGenerateFailedBaseline(t *testing.T) {
	results := []harness.RunResult{
		{Label: "1", Stage: harness.StageRun, Error: "run failed: exit 1"},
		{Label: "2", DurationSeconds: seconds(1), Succeeded: true, Stage: harness.StageDone},
	}

	var buf bytes.Buffer
	if err := Generate(&buf, "threads", results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "speed-ups omitted") {
		t.Error("expected baseline note")
	}
	if !strings.Contains(output, "| 1 | `1` | - | - | failed (run) |") {
		t.Errorf("expected failed baseline row in:\n%s", output)
	}
	if strings.Contains(output, "1.00x") {
		t.Error("expected no speed-ups without a baseline")
	}
}

func TestGenerateEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(&buf, "x", nil); err == nil {
		t.Error("expected error for empty results")
	}
}

func TestSpeedups(t *testing.T) {
	results := []harness.RunResult{
		{Label: "1", DurationSeconds: seconds(8.0), Succeeded: true},
		{Label: "2", Error: "boom"},
		{Label: "4", DurationSeconds: seconds(2.0), Succeeded: true},
	}

	got, err := Speedups(results)
	if err != nil {
		t.Fatalf("Speedups failed: %v", err)
	}

	if got[0] != 1 || got[2] != 4 {
		t.Errorf("unexpected speedups %v", got)
	}
	if !math.IsNaN(got[1]) {
		t.Errorf("expected NaN for missing duration, got %v", got[1])
	}

	_, err = Speedups(results[1:])
	if !errors.Is(err, ErrNoBaseline) {
		t.Errorf("expected ErrNoBaseline, got %v", err)
	}

	if got, err := Speedups(nil); err != nil || got != nil {
		t.Errorf("expected nil speedups for no results, got %v, %v", got, err)
	}
}

func TestSummary(t *testing.T) {
	results := []harness.RunResult{
		{Label: "-O1", DurationSeconds: seconds(1), Succeeded: true},
		{Label: "-fbogus", Stage: harness.StageCompile, Error: "compile failed: unrecognized option"},
		{Label: "-O3", Stage: harness.StageParse, Error: "unparseable output"},
	}

	var buf bytes.Buffer
	if n := Summary(&buf, "flags", results); n != 2 {
		t.Errorf("expected 2 failures, got %d", n)
	}

	output := buf.String()
	if !strings.Contains(output, "### Failures in flags") {
		t.Error("expected failure heading")
	}
	if !strings.Contains(output, "- `-fbogus` (compile): compile failed: unrecognized option") {
		t.Errorf("expected compile failure line in:\n%s", output)
	}
	if strings.Contains(output, "-O1") {
		t.Error("succeeded steps must not be listed")
	}
}

func TestGenerateJSON(t *testing.T) {
	results := []harness.RunResult{
		{Label: "1", DurationSeconds: seconds(4), Succeeded: true, Stage: harness.StageDone},
		{Label: "2", Stage: harness.StageRun, Error: "boom"},
	}

	var buf bytes.Buffer
	if err := GenerateJSON(&buf, "threads", results); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("expected one line, got %d:\n%s", n, buf.String())
	}

	var decoded struct {
		Sweep   string `json:"sweep"`
		Results []struct {
			Label           string   `json:"label"`
			DurationSeconds *float64 `json:"duration_seconds"`
			Succeeded       bool     `json:"succeeded"`
			Stage           string   `json:"stage"`
			Speedup         *float64 `json:"speedup"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Sweep != "threads" || len(decoded.Results) != 2 {
		t.Fatalf("unexpected report %+v", decoded)
	}
	if decoded.Results[0].Speedup == nil || *decoded.Results[0].Speedup != 1 {
		t.Error("expected baseline speedup 1")
	}
	if decoded.Results[1].Speedup != nil || decoded.Results[1].DurationSeconds != nil {
		t.Error("failed step must carry neither duration nor speedup")
	}
	if decoded.Results[1].Stage != "run" {
		t.Errorf("expected stage run, got %s", decoded.Results[1].Stage)
	}
}

func TestGenerateCSV(t *testing.T) {
	results := []harness.RunResult{
		{Label: "-O2 -march=native", DurationSeconds: seconds(0.25), Succeeded: true, Stage: harness.StageDone},
		{Label: "ALL", Stage: harness.StageCompile, Error: "error, with comma"},
	}

	var buf bytes.Buffer
	if err := GenerateCSV(&buf, "flags", results, true); err != nil {
		t.Fatalf("GenerateCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected header and 2 records, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeader, ",") {
		t.Errorf("unexpected header %v", records[0])
	}

	want := []string{"flags", "1", "-O2 -march=native", "0.25", "1.0000", "true", "done", ""}
	if strings.Join(records[1], "|") != strings.Join(want, "|") {
		t.Errorf("record = %v, want %v", records[1], want)
	}
	if records[2][3] != "" || records[2][4] != "" || records[2][7] != "error, with comma" {
		t.Errorf("unexpected failed record %v", records[2])
	}

	buf.Reset()
	if err := GenerateCSV(&buf, "flags", results, false); err != nil {
		t.Fatalf("GenerateCSV failed: %v", err)
	}
	if strings.HasPrefix(buf.String(), "sweep,") {
		t.Error("expected no header")
	}
}

// scriptedExec compiles successfully unless an argument is listed in fail,
// and answers runs with outputs in order.
type scriptedExec struct {
	fail    map[string]bool
	outputs []string
	runs    int
}

func (s *scriptedExec) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func (s *scriptedExec) Run(_ context.Context, c harness.Command) (*harness.ProcessResult, error) {
	if c.Path == "gcc" {
		for _, a := range c.Args {
			if s.fail[a] {
				return &harness.ProcessResult{ExitCode: 1, Stderr: "gcc: error: " + a}, nil
			}
		}

		return &harness.ProcessResult{}, nil
	}

	out := s.outputs[s.runs]
	s.runs++

	return &harness.ProcessResult{Stdout: out, Combined: out}, nil
}

func newRunner(t *testing.T, ex harness.Executor) *harness.Runner {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return harness.NewRunner(ex, harness.Config{WorkDir: t.TempDir()}, logger)
}

func TestThreadSweepSpeedups(t *testing.T) {
	ex := &scriptedExec{outputs: []string{
		"checksum 1\nTime: 8.0 s\n",
		"checksum 1\nTime: 4.0 s\n",
		"checksum 1\nTime: 2.1 s\n",
	}}

	sw, err := harness.ThreadSweep("threads",
		harness.NewCompileSpec("gcc", "saxpy_openmp.c", []string{"-O2", "-fopenmp"}),
		[]int{1, 2, 4})
	if err != nil {
		t.Fatalf("ThreadSweep failed: %v", err)
	}

	results, err := newRunner(t, ex).RunSweep(context.Background(), sw,
		harness.ThreadEnv(harness.DefaultThreadVar), nil)
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	got, err := Speedups(results)
	if err != nil {
		t.Fatalf("Speedups failed: %v", err)
	}

	want := []float64{1.0, 2.0, 3.81}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 0.01 {
			t.Errorf("speedup[%d] = %.4f, want %.2f", i, got[i], want[i])
		}
	}
}

func TestFlagSweepWithCompileFailure(t *testing.T) {
	ex := &scriptedExec{
		fail:    map[string]bool{"-fbogus": true},
		outputs: []string{"Time: 3.0 s\n", "Time: 1.5 s\n"},
	}

	labels, sets := harness.IndividualFlags([]string{"-O1", "-fbogus", "-O3"}, false)

	sw, err := harness.FlagSweep("flags", harness.NewCompileSpec("gcc", "saxpy.c", nil), labels, sets)
	if err != nil {
		t.Fatalf("FlagSweep failed: %v", err)
	}

	results, err := newRunner(t, ex).RunSweep(context.Background(), sw, nil, nil)
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var buf bytes.Buffer
	if err := Generate(&buf, "flags", results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "| 2 | `-fbogus` | - | - | failed (compile) |") {
		t.Errorf("expected failed row in:\n%s", output)
	}
	if !strings.Contains(output, "| 3 | `-O3` | 1.500s | 2.00x | ok |") {
		t.Errorf("expected third row in:\n%s", output)
	}

	buf.Reset()
	if n := Summary(&buf, "flags", results); n != 1 {
		t.Errorf("expected 1 failure, got %d", n)
	}
	if !strings.Contains(buf.String(), "gcc: error: -fbogus") {
		t.Errorf("expected compiler stderr in summary:\n%s", buf.String())
	}
}

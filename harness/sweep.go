package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/weiihann/sweepbench/extract"
	"gonum.org/v1/gonum/stat"
)

// DefaultThreadVar is the environment variable read by OpenMP runtimes.
const DefaultThreadVar = "OMP_NUM_THREADS"

// CombinedLabel labels the step that applies every flag of a list at once.
const CombinedLabel = "ALL"

// Step is one parameter of a sweep and the build it produces.
type Step struct {
	Label string
	Spec  CompileSpec
}

// Sweep is an ordered list of steps. Result order always matches step order.
type Sweep struct {
	Name  string
	Steps []Step
}

// Labels returns the step labels in order.
func (s Sweep) Labels() []string {
	labels := make([]string, len(s.Steps))
	for i, st := range s.Steps {
		labels[i] = st.Label
	}

	return labels
}

// EnvFunc returns the environment overrides for the step with the given label.
type EnvFunc func(label string) map[string]string

// ThreadEnv sets varName to the step label, e.g. OMP_NUM_THREADS=4.
func ThreadEnv(varName string) EnvFunc {
	if varName == "" {
		varName = DefaultThreadVar
	}

	return func(label string) map[string]string {
		return map[string]string{varName: label}
	}
}

// FlagSweep builds one step per flag set, each appended to base's flags.
func FlagSweep(name string, base CompileSpec, labels []string, sets [][]string) (Sweep, error) {
	if len(labels) != len(sets) {
		return Sweep{}, fmt.Errorf("sweep %s: %d labels for %d flag sets",
			name, len(labels), len(sets))
	}

	steps := make([]Step, len(sets))
	for i, set := range sets {
		steps[i] = Step{Label: labels[i], Spec: base.WithFlags(set...)}
	}

	return Sweep{Name: name, Steps: steps}, nil
}

// IndividualFlags turns a flag list into one single-flag set per flag,
// optionally followed by a set holding all of them labelled ALL.
func IndividualFlags(flags []string, combined bool) ([]string, [][]string) {
	labels := make([]string, 0, len(flags)+1)
	sets := make([][]string, 0, len(flags)+1)

	for _, f := range flags {
		labels = append(labels, f)
		sets = append(sets, []string{f})
	}

	if combined && len(flags) > 0 {
		labels = append(labels, CombinedLabel)
		sets = append(sets, append([]string(nil), flags...))
	}

	return labels, sets
}

// ThreadSweep builds one step per thread count, all sharing spec. The
// runner compiles it once and reuses the binary for later steps.
func ThreadSweep(name string, spec CompileSpec, counts []int) (Sweep, error) {
	steps := make([]Step, len(counts))

	for i, n := range counts {
		if n < 1 {
			return Sweep{}, fmt.Errorf("sweep %s: invalid thread count %d", name, n)
		}

		steps[i] = Step{Label: strconv.Itoa(n), Spec: spec}
	}

	return Sweep{Name: name, Steps: steps}, nil
}

// Doubling returns n values starting at start and doubling each time.
func Doubling(start, n int) []int {
	out := make([]int, 0, max(n, 0))
	for v := start; len(out) < n; v *= 2 {
		out = append(out, v)
	}

	return out
}

// RunSweep compiles, runs and measures every step in order. Each step yields
// exactly one RunResult. Under ContinueOnFailure the error is nil unless ctx
// is cancelled. Under AbortOnFailure the sweep stops at the first failed step
// and the results so far are returned with an error wrapping ErrSweepAborted.
func (r *Runner) RunSweep(
	ctx context.Context,
	sw Sweep,
	envFor EnvFunc,
	extractor extract.Func,
) ([]RunResult, error) {
	if extractor == nil {
		extractor = extract.LastFloat()
	}

	logger := r.Logger.With(slog.String("sweep", sw.Name))

	logger.InfoContext(ctx, "starting sweep",
		slog.Int("steps", len(sw.Steps)),
		slog.String("policy", r.Config.Policy.String()),
	)

	results := make([]RunResult, 0, len(sw.Steps))

	for i, step := range sw.Steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("sweep %s: %w", sw.Name, err)
		}

		res := r.runStep(ctx, step, envFor, extractor)
		results = append(results, res)

		if res.Succeeded {
			logger.InfoContext(ctx, "step finished",
				slog.Int("step", i+1),
				slog.String("label", res.Label),
				slog.Float64("seconds", *res.DurationSeconds),
			)

			continue
		}

		logger.WarnContext(ctx, "step failed",
			slog.Int("step", i+1),
			slog.String("label", res.Label),
			slog.String("stage", string(res.Stage)),
			slog.String("error", res.Error),
		)

		if r.Config.Policy == AbortOnFailure {
			return results, fmt.Errorf("%w: %s step %q: %w",
				ErrSweepAborted, sw.Name, step.Label, res.Err())
		}
	}

	return results, nil
}

func (r *Runner) runStep(
	ctx context.Context,
	step Step,
	envFor EnvFunc,
	extractor extract.Func,
) RunResult {
	build, err := r.Compile(ctx, step.Spec)
	if err != nil {
		return failed(step.Label, StageCompile, build.Stderr, err)
	}

	var env map[string]string
	if envFor != nil {
		env = envFor(step.Label)
	}

	repeats := max(r.Config.Repeats, 1)
	samples := make([]float64, 0, repeats)

	var raw strings.Builder

	for range repeats {
		run, err := r.Run(ctx, build.Binary, env)
		raw.WriteString(run.Output)

		if err != nil {
			return failed(step.Label, StageRun, raw.String(), err)
		}

		d, err := extractor(run.Output)
		if err != nil {
			return failed(step.Label, StageParse, raw.String(), err)
		}

		samples = append(samples, d)
	}

	mean := stat.Mean(samples, nil)

	res := RunResult{
		Label:           step.Label,
		DurationSeconds: &mean,
		Succeeded:       true,
		Stage:           StageDone,
		RawOutput:       raw.String(),
	}

	if len(samples) > 1 {
		res.Samples = samples
	}

	return res
}

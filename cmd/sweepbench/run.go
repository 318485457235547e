package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"github.com/weiihann/sweepbench/chart"
	"github.com/weiihann/sweepbench/config"
	"github.com/weiihann/sweepbench/harness"
	"github.com/weiihann/sweepbench/report"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		file string
		only []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sweeps defined in a sweep file",
		Long: `Load a sweep file and run its sweeps in order. Without --file the
current directory is searched for sweepbench.yaml, then sweep.yaml.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(file)
			if err != nil {
				return fmt.Errorf("load sweep file: %w", err)
			}

			return a.runSweeps(cmd.Context(), cfg, only)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "",
		"Path to the sweep file")
	flags.StringSliceVar(&only, "only", nil,
		"Run only the named sweeps")

	return cmd
}

// runSweeps checks every compiler the plans need, then runs the plans one
// after another, reporting each as soon as it finishes. Under the abort
// policy the partial results of the failed sweep are still reported.
func (a *app) runSweeps(ctx context.Context, cfg *config.Config, only []string) error {
	format, err := a.format()
	if err != nil {
		return err
	}

	plans, err := cfg.Plans()
	if err != nil {
		return err
	}

	plans, err = selectPlans(plans, only)
	if err != nil {
		return err
	}

	rc, err := cfg.RunnerConfig()
	if err != nil {
		return err
	}

	extractor, err := cfg.Extractor()
	if err != nil {
		return err
	}

	if err := a.checkToolchains(ctx, plans); err != nil {
		return err
	}

	runner := harness.NewRunner(a.exec, rc, a.logger)
	outDir := a.v.GetString("out-dir")

	for i, p := range plans {
		results, runErr := runner.RunSweep(ctx, p.Sweep, p.Env, extractor)

		if len(results) > 0 {
			if err := a.writeReport(format, p.Sweep.Name, results, i == 0); err != nil {
				return err
			}

			if err := a.renderChart(ctx, outDir, p, results); err != nil {
				return err
			}
		}

		if runErr != nil {
			return runErr
		}
	}

	a.logger.InfoContext(ctx, "sweeps complete", slog.Int("sweeps", len(plans)))

	return nil
}

func selectPlans(plans []config.Plan, only []string) ([]config.Plan, error) {
	if len(only) == 0 {
		return plans, nil
	}

	out := make([]config.Plan, 0, len(only))

	for _, name := range only {
		i := slices.IndexFunc(plans, func(p config.Plan) bool {
			return p.Sweep.Name == name
		})
		if i < 0 {
			return nil, fmt.Errorf("no sweep named %q", name)
		}

		out = append(out, plans[i])
	}

	return out, nil
}

// checkToolchains fails before any sweep work when a compiler is missing.
func (a *app) checkToolchains(ctx context.Context, plans []config.Plan) error {
	var seen []string

	for _, p := range plans {
		for _, st := range p.Sweep.Steps {
			if slices.Contains(seen, st.Spec.Compiler) {
				continue
			}

			seen = append(seen, st.Spec.Compiler)

			tc, err := harness.CheckToolchain(ctx, a.exec, st.Spec.Compiler)
			if err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "toolchain available",
				slog.String("compiler", tc.Name),
				slog.String("version", tc.Version),
			)
		}
	}

	return nil
}

func (a *app) writeReport(format, sweep string, results []harness.RunResult, first bool) error {
	switch format {
	case formatJSON:
		return report.GenerateJSON(a.stdout, sweep, results)

	case formatCSV:
		return report.GenerateCSV(a.stdout, sweep, results, first)

	default:
		if !first {
			fmt.Fprintln(a.stdout)
		}

		if err := report.Generate(a.stdout, sweep, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}

		report.Summary(a.stdout, sweep, results)

		return nil
	}
}

// renderChart writes the chart requested by p. A sweep that left nothing to
// plot only logs a warning.
func (a *app) renderChart(
	ctx context.Context,
	outDir string,
	p config.Plan,
	results []harness.RunResult,
) error {
	if p.Chart.Path == "" {
		return nil
	}

	path := p.Chart.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(outDir, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chart dir: %w", err)
	}

	var (
		pts []chart.Point
		err error
	)

	if p.Chart.Scaling {
		pts, err = chart.ScalingPoints(results)
	} else {
		pts, err = chart.Points(results, p.Numeric)
	}

	if err == nil {
		err = newScatter(p).Render(path, pts)
	}

	if errors.Is(err, chart.ErrNoPoints) || errors.Is(err, report.ErrNoBaseline) {
		a.logger.WarnContext(ctx, "chart skipped",
			slog.String("sweep", p.Sweep.Name),
			slog.String("reason", err.Error()),
		)

		return nil
	}

	if err != nil {
		return fmt.Errorf("chart %s: %w", p.Sweep.Name, err)
	}

	a.logger.InfoContext(ctx, "chart written",
		slog.String("sweep", p.Sweep.Name),
		slog.String("path", path),
	)

	return nil
}

func newScatter(p config.Plan) chart.Scatter {
	s := chart.Scatter{
		Title:       p.Chart.Title,
		XLabel:      p.Chart.XLabel,
		YLabel:      p.Chart.YLabel,
		Categorical: !p.Numeric,
		LogX:        p.Chart.LogX,
	}

	if s.Title == "" {
		s.Title = p.Sweep.Name
	}

	if s.XLabel == "" {
		s.XLabel = "parameter"
		if p.Numeric {
			s.XLabel = "threads"
		}
	}

	if s.YLabel == "" {
		s.YLabel = "time (s)"
		if p.Chart.Scaling {
			s.YLabel = "speed-up"
		}
	}

	return s
}

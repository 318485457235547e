package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/weiihann/sweepbench/config"
)

// sweepOptions are the flags shared by the ad-hoc sweep commands. They fill
// the same Config a sweep file would.
type sweepOptions struct {
	compiler      string
	source        string
	output        string
	workDir       string
	policy        string
	timeout       time.Duration
	repeats       int
	alwaysRebuild bool
	extractKind   string
	extractArg    string
	extractScale  float64
	base          []string
	env           map[string]string
	chart         config.ChartDef
}

func (o *sweepOptions) register(flags *pflag.FlagSet) {
	def := config.DefaultConfig()

	flags.StringVarP(&o.compiler, "compiler", "c", def.Compiler,
		"Compiler executable")
	flags.StringVarP(&o.source, "source", "s", "",
		"Kernel source file")
	flags.StringVarP(&o.output, "output", "o", def.Output,
		"Output binary name")
	flags.StringVar(&o.workDir, "work-dir", def.WorkDir,
		"Directory the compiler and the binary run in")
	flags.StringVar(&o.policy, "policy", def.Policy,
		"What to do after a failed step: continue or abort")
	flags.DurationVar(&o.timeout, "timeout", 0,
		"Limit for each compile and run (0 = none)")
	flags.IntVar(&o.repeats, "repeats", def.Repeats,
		"Runs per step; the mean time is reported")
	flags.BoolVar(&o.alwaysRebuild, "always-rebuild", false,
		"Recompile even when a step's build matches the previous one")
	flags.StringVar(&o.extractKind, "extract", def.Extract.Kind,
		"Time extraction: last-float, regexp, slice, json")
	flags.StringVar(&o.extractArg, "extract-arg", "",
		"Pattern, start:end range or field for --extract")
	flags.Float64Var(&o.extractScale, "extract-scale", def.Extract.Scale,
		"Factor converting the extracted value to seconds")
	flags.StringArrayVar(&o.base, "base", nil,
		"Flags applied to every step (repeatable, shell-quoted)")
	flags.StringToStringVar(&o.env, "env", nil,
		"Extra environment for the binary, NAME=VALUE")
	flags.StringVar(&o.chart.Path, "chart", "",
		"Write a chart to this file (png, svg, pdf)")
	flags.StringVar(&o.chart.Title, "title", "",
		"Chart title")
	flags.BoolVar(&o.chart.LogX, "log-x", false,
		"Use a logarithmic X axis")
}

func (o *sweepOptions) config(def config.SweepDef) (*config.Config, error) {
	def.BaseFlags = o.base
	def.Env = o.env
	def.Chart = o.chart

	cfg := config.DefaultConfig()
	cfg.Compiler = o.compiler
	cfg.Source = o.source
	cfg.Output = o.output
	cfg.WorkDir = o.workDir
	cfg.Policy = o.policy
	cfg.Timeout = o.timeout
	cfg.Repeats = o.repeats
	cfg.AlwaysRebuild = o.alwaysRebuild
	cfg.Extract = config.Extract{
		Kind:  o.extractKind,
		Arg:   o.extractArg,
		Scale: o.extractScale,
	}
	cfg.Sweeps = []config.SweepDef{def}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagsCmd(a *app) *cobra.Command {
	var (
		opts     sweepOptions
		name     string
		presetID string
		combined bool
	)

	cmd := &cobra.Command{
		Use:   "flags [flags...]",
		Short: "Sweep compiler flags, one build per flag",
		Long: `Compile the source once per flag and time each build. Flags are
given after "--" or taken from a preset; each argument may hold several
shell-quoted flags, and "@name" expands a preset inline.`,
		Example: `  sweepbench flags -s saxpy.c --preset gcc-o1 --chart o1.png
  sweepbench flags -s saxpy.c --combined -- -O1 -O2 "-O3 -march=native"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if presetID == "" && len(args) == 0 {
				return fmt.Errorf("give flags after -- or a --preset")
			}

			cfg, err := opts.config(config.SweepDef{
				Name:     name,
				Kind:     config.KindFlags,
				Preset:   presetID,
				Flags:    args,
				Combined: combined,
			})
			if err != nil {
				return err
			}

			return a.runSweeps(cmd.Context(), cfg, nil)
		},
	}

	flags := cmd.Flags()
	opts.register(flags)
	flags.StringVar(&name, "name", "flags",
		"Sweep name used in reports")
	flags.StringVarP(&presetID, "preset", "p", "",
		"Sweep the flags of a built-in preset")
	flags.BoolVar(&combined, "combined", false,
		"Add a final step with every flag at once")

	return cmd
}

func newScaleCmd(a *app) *cobra.Command {
	var (
		opts       sweepOptions
		name       string
		threads    []int
		maxThreads int
		envVar     string
	)

	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Sweep thread counts for one build",
		Long: `Compile the source once and run it with the thread count variable
set to each count in turn. Without --threads or --max-threads the counts
are 1, 2, 4, 8, 16 and 32.`,
		Example: `  sweepbench scale -s saxpy_openmp.c --base "-O2 -fopenmp" --max-threads 16 --chart scaling.png --scaling`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(config.SweepDef{
				Name:       name,
				Kind:       config.KindThreads,
				Threads:    threads,
				MaxThreads: maxThreads,
				EnvVar:     envVar,
			})
			if err != nil {
				return err
			}

			return a.runSweeps(cmd.Context(), cfg, nil)
		},
	}

	flags := cmd.Flags()
	opts.register(flags)
	flags.StringVar(&name, "name", "threads",
		"Sweep name used in reports")
	flags.IntSliceVarP(&threads, "threads", "t", nil,
		"Thread counts to run")
	flags.IntVar(&maxThreads, "max-threads", 0,
		"Double the thread count from 1 up to this value")
	flags.StringVar(&envVar, "env-var", "OMP_NUM_THREADS",
		"Environment variable holding the thread count")
	flags.BoolVar(&opts.chart.Scaling, "scaling", false,
		"Chart t1/tN instead of raw times")

	return cmd
}

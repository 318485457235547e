// Package config loads sweep files: YAML documents describing the compiler,
// the kernel source and the flag or thread sweeps to run against it.
package config

import (
	"errors"
	"fmt"
	"maps"
	"math/bits"
	"os"
	"time"

	"github.com/weiihann/sweepbench/extract"
	"github.com/weiihann/sweepbench/harness"
	"github.com/weiihann/sweepbench/preset"
	"gopkg.in/yaml.v3"
)

// Sweep kinds.
const (
	KindFlags   = "flags"
	KindThreads = "threads"
)

// DefaultThreadSteps is the number of doubling thread counts used when a
// threads sweep lists neither counts nor a maximum.
const DefaultThreadSteps = 6

// ErrNoConfigFile is returned by Load when no path is given and none of the
// default files exist.
var ErrNoConfigFile = errors.New("no sweep file found")

// DefaultFiles are searched in order when Load gets an empty path.
var DefaultFiles = []string{"sweepbench.yaml", "sweep.yaml"}

// Config is a sweep file.
type Config struct {
	Compiler      string        `yaml:"compiler"`
	Source        string        `yaml:"source"`
	Output        string        `yaml:"output"`
	WorkDir       string        `yaml:"work_dir"`
	Policy        string        `yaml:"policy"`
	Timeout       time.Duration `yaml:"timeout"`
	Repeats       int           `yaml:"repeats"`
	AlwaysRebuild bool          `yaml:"always_rebuild"`
	Extract       Extract       `yaml:"extract"`
	Sweeps        []SweepDef    `yaml:"sweeps"`

	path string
}

// Extract selects how durations are read from program output.
type Extract struct {
	Kind string `yaml:"kind"`
	Arg  string `yaml:"arg"`
	// Scale converts the extracted value to seconds, e.g. 0.001 for ms.
	Scale float64 `yaml:"scale"`
}

// SweepDef describes one sweep. Compiler, Source and Output override the
// file-level values when set.
type SweepDef struct {
	Name      string            `yaml:"name"`
	Kind      string            `yaml:"kind"`
	Compiler  string            `yaml:"compiler"`
	Source    string            `yaml:"source"`
	Output    string            `yaml:"output"`
	BaseFlags []string          `yaml:"base_flags"`
	Env       map[string]string `yaml:"env"`

	// Flag sweeps use exactly one of Preset, Flags or Sets.
	Preset   string    `yaml:"preset"`
	Flags    []string  `yaml:"flags"`
	Sets     []FlagSet `yaml:"sets"`
	Combined bool      `yaml:"combined"`

	// Thread sweeps.
	Threads    []int  `yaml:"threads"`
	MaxThreads int    `yaml:"max_threads"`
	EnvVar     string `yaml:"env_var"`

	Chart ChartDef `yaml:"chart"`
}

// FlagSet is one labelled step of a flag sweep.
type FlagSet struct {
	Label string   `yaml:"label"`
	Flags []string `yaml:"flags"`
}

// ChartDef controls the chart written after a sweep. An empty Path disables
// the chart.
type ChartDef struct {
	Path   string `yaml:"path"`
	Title  string `yaml:"title"`
	XLabel string `yaml:"x_label"`
	YLabel string `yaml:"y_label"`
	LogX   bool   `yaml:"log_x"`
	// Scaling plots t1/tN instead of raw durations. Thread sweeps only.
	Scaling bool `yaml:"scaling"`
}

// Plan is a sweep ready to hand to a harness.Runner.
type Plan struct {
	Sweep harness.Sweep
	Env   harness.EnvFunc
	Chart ChartDef
	// Numeric is true when step labels are numbers, as in thread sweeps.
	Numeric bool
}

// DefaultConfig returns the values used for fields a sweep file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Compiler: "gcc",
		Output:   harness.DefaultBinary,
		WorkDir:  ".",
		Policy:   harness.ContinueOnFailure.String(),
		Repeats:  1,
		Extract: Extract{
			Kind:  "last-float",
			Scale: 1,
		},
	}
}

// Load reads and validates a sweep file. An empty path searches DefaultFiles
// in the current directory.
func Load(path string) (*Config, error) {
	var (
		data []byte
		err  error
	)

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sweep file: %w", err)
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name

				break
			}
		}

		if path == "" {
			return nil, fmt.Errorf("%w (looked for %v)", ErrNoConfigFile, DefaultFiles)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.path = path

	return cfg, nil
}

// Parse decodes and validates a sweep file held in memory.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse sweep file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Validate checks the whole file, including every sweep definition.
func (c *Config) Validate() error {
	if _, err := harness.ParsePolicy(c.Policy); err != nil {
		return err
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	if c.Repeats < 0 {
		return fmt.Errorf("repeats must not be negative, got %d", c.Repeats)
	}

	if _, err := c.Extractor(); err != nil {
		return err
	}

	if len(c.Sweeps) == 0 {
		return errors.New("no sweeps defined")
	}

	seen := make(map[string]bool, len(c.Sweeps))

	for i, def := range c.Sweeps {
		if def.Name == "" {
			return fmt.Errorf("sweep %d has no name", i+1)
		}

		if seen[def.Name] {
			return fmt.Errorf("duplicate sweep name %q", def.Name)
		}

		seen[def.Name] = true

		if err := c.validateSweep(def); err != nil {
			return fmt.Errorf("sweep %s: %w", def.Name, err)
		}
	}

	return nil
}

func (c *Config) validateSweep(def SweepDef) error {
	if pick(def.Compiler, c.Compiler) == "" {
		return errors.New("no compiler")
	}

	if pick(def.Source, c.Source) == "" {
		return errors.New("no source file")
	}

	switch def.Kind {
	case KindFlags:
		n := 0
		for _, set := range []bool{def.Preset != "", len(def.Flags) > 0, len(def.Sets) > 0} {
			if set {
				n++
			}
		}

		if n != 1 {
			return errors.New("flag sweep needs exactly one of preset, flags or sets")
		}

		for i, s := range def.Sets {
			if s.Label == "" {
				return fmt.Errorf("set %d has no label", i+1)
			}
		}

		if def.Chart.Scaling {
			return errors.New("scaling charts need a threads sweep")
		}

	case KindThreads:
		for _, n := range def.Threads {
			if n < 1 {
				return fmt.Errorf("invalid thread count %d", n)
			}
		}

		if def.MaxThreads < 0 {
			return fmt.Errorf("invalid max_threads %d", def.MaxThreads)
		}

	default:
		return fmt.Errorf("unknown kind %q (want %s or %s)", def.Kind, KindFlags, KindThreads)
	}

	return nil
}

// RunnerConfig returns the harness settings shared by all sweeps.
func (c *Config) RunnerConfig() (harness.Config, error) {
	policy, err := harness.ParsePolicy(c.Policy)
	if err != nil {
		return harness.Config{}, err
	}

	return harness.Config{
		WorkDir:       c.WorkDir,
		Binary:        c.Output,
		Policy:        policy,
		Timeout:       c.Timeout,
		Repeats:       c.Repeats,
		AlwaysRebuild: c.AlwaysRebuild,
	}, nil
}

// Extractor returns the duration extraction strategy, scaled to seconds.
func (c *Config) Extractor() (extract.Func, error) {
	f, err := extract.ByName(c.Extract.Kind, c.Extract.Arg)
	if err != nil {
		return nil, err
	}

	if c.Extract.Scale != 0 && c.Extract.Scale != 1 {
		f = extract.Scaled(f, c.Extract.Scale)
	}

	return f, nil
}

// Plans translates every sweep definition into a Plan, in file order.
func (c *Config) Plans() ([]Plan, error) {
	plans := make([]Plan, 0, len(c.Sweeps))

	for _, def := range c.Sweeps {
		p, err := c.plan(def)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", def.Name, err)
		}

		plans = append(plans, p)
	}

	return plans, nil
}

func (c *Config) plan(def SweepDef) (Plan, error) {
	base, err := preset.Expand(def.BaseFlags)
	if err != nil {
		return Plan{}, err
	}

	spec := harness.NewCompileSpec(pick(def.Compiler, c.Compiler), pick(def.Source, c.Source), base)
	spec.Output = def.Output

	switch def.Kind {
	case KindThreads:
		sw, err := harness.ThreadSweep(def.Name, spec, ThreadCounts(def.Threads, def.MaxThreads))
		if err != nil {
			return Plan{}, err
		}

		return Plan{
			Sweep:   sw,
			Env:     withEnv(harness.ThreadEnv(def.EnvVar), def.Env),
			Chart:   def.Chart,
			Numeric: true,
		}, nil

	default:
		labels, sets, err := flagSets(def)
		if err != nil {
			return Plan{}, err
		}

		sw, err := harness.FlagSweep(def.Name, spec, labels, sets)
		if err != nil {
			return Plan{}, err
		}

		return Plan{
			Sweep: sw,
			Env:   withEnv(nil, def.Env),
			Chart: def.Chart,
		}, nil
	}
}

func flagSets(def SweepDef) ([]string, [][]string, error) {
	switch {
	case def.Preset != "":
		p, err := preset.Lookup(def.Preset)
		if err != nil {
			return nil, nil, err
		}

		labels, sets := harness.IndividualFlags(p.Flags, p.Combined || def.Combined)

		return labels, sets, nil

	case len(def.Sets) > 0:
		labels := make([]string, len(def.Sets))
		sets := make([][]string, len(def.Sets))

		for i, s := range def.Sets {
			flags, err := preset.Expand(s.Flags)
			if err != nil {
				return nil, nil, err
			}

			labels[i] = s.Label
			sets[i] = flags
		}

		return labels, sets, nil

	default:
		labels := make([]string, 0, len(def.Flags)+1)
		sets := make([][]string, 0, len(def.Flags)+1)

		var all []string

		for _, entry := range def.Flags {
			flags, err := preset.Expand([]string{entry})
			if err != nil {
				return nil, nil, err
			}

			labels = append(labels, entry)
			sets = append(sets, flags)
			all = append(all, flags...)
		}

		if def.Combined {
			labels = append(labels, harness.CombinedLabel)
			sets = append(sets, all)
		}

		return labels, sets, nil
	}
}

// ThreadCounts returns counts when given, otherwise doubling counts from 1
// up to maxThreads, or DefaultThreadSteps of them when maxThreads is zero.
func ThreadCounts(counts []int, maxThreads int) []int {
	if len(counts) > 0 {
		return counts
	}

	if maxThreads > 0 {
		return harness.Doubling(1, bits.Len(uint(maxThreads)))
	}

	return harness.Doubling(1, DefaultThreadSteps)
}

// withEnv layers fixed variables under the per-step ones from f.
func withEnv(f harness.EnvFunc, fixed map[string]string) harness.EnvFunc {
	if len(fixed) == 0 {
		return f
	}

	return func(label string) map[string]string {
		env := maps.Clone(fixed)
		if f != nil {
			maps.Copy(env, f(label))
		}

		return env
	}
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}

	return fallback
}

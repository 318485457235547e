package harness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBinary is the output binary name used when a CompileSpec sets none.
const DefaultBinary = "a.out"

// Policy decides what a sweep does after a failed step.
type Policy int

const (
	// ContinueOnFailure records the failure and moves to the next step.
	ContinueOnFailure Policy = iota
	// AbortOnFailure stops the sweep at the first failed step.
	AbortOnFailure
)

func (p Policy) String() string {
	switch p {
	case AbortOnFailure:
		return "abort"
	default:
		return "continue"
	}
}

// ParsePolicy accepts "continue" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueOnFailure, nil
	case "abort":
		return AbortOnFailure, nil
	default:
		return ContinueOnFailure, fmt.Errorf("unknown failure policy %q (want continue or abort)", s)
	}
}

// Config holds runner settings shared by every step of a sweep.
type Config struct {
	// WorkDir is where the compiler runs and the binary is written.
	WorkDir string
	// Binary is the default output binary name.
	Binary string
	Policy Policy
	// Timeout bounds each compile and each run. Zero means no limit.
	Timeout time.Duration
	// Repeats is the number of runs per step; the mean is reported.
	Repeats       int
	AlwaysRebuild bool
}

// Runner executes sweeps. Steps run strictly one after another because they
// share the output binary.
type Runner struct {
	Exec   Executor
	Config Config
	Logger *slog.Logger

	lastBuild *CompileOutcome
}

// NewRunner creates a Runner using ex to launch the compiler and binaries.
func NewRunner(ex Executor, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}

	if cfg.Repeats < 1 {
		cfg.Repeats = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		Exec:   ex,
		Config: cfg,
		Logger: logger,
	}
}

// RunOutcome is the result of executing a compiled binary once.
type RunOutcome struct {
	Binary   string
	Env      map[string]string
	ExitCode int
	Output   string
	Elapsed  time.Duration
}

// Run executes the binary at path with env applied to the child process only
// and captures its combined output.
func (r *Runner) Run(ctx context.Context, path string, env map[string]string) (*RunOutcome, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	outcome := &RunOutcome{Binary: path, Env: env, ExitCode: -1}

	res, err := r.Exec.Run(ctx, Command{
		Path: path,
		Env:  env,
		Dir:  r.Config.WorkDir,
	})
	if res != nil {
		outcome.ExitCode = res.ExitCode
		outcome.Output = res.Combined
		outcome.Elapsed = res.Elapsed
	}

	if err != nil {
		return outcome, fmt.Errorf("%w: %s: %w", ErrRunFailed, path, err)
	}

	if res == nil {
		return outcome, fmt.Errorf("%w: %s: no process result", ErrRunFailed, path)
	}

	if res.ExitCode != 0 {
		return outcome, fmt.Errorf("%w: %s exited with status %d",
			ErrRunFailed, path, res.ExitCode)
	}

	return outcome, nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Config.Timeout > 0 {
		return context.WithTimeout(ctx, r.Config.Timeout)
	}

	return context.WithCancel(ctx)
}

func (r *Runner) binaryPath(spec CompileSpec) (string, error) {
	name := spec.Output
	if name == "" {
		name = r.Config.Binary
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Config.WorkDir, name)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve binary path %s: %w", path, err)
	}

	return abs, nil
}

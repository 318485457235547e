package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// CompileSpec identifies one build invocation. Output is the binary path
// relative to the runner's work directory; empty means the runner default.
type CompileSpec struct {
	Compiler string   `json:"compiler"`
	Source   string   `json:"source"`
	Flags    []string `json:"flags"`
	Output   string   `json:"output,omitempty"`
}

// NewCompileSpec returns a CompileSpec holding its own copy of flags.
func NewCompileSpec(compiler, source string, flags []string) CompileSpec {
	return CompileSpec{
		Compiler: compiler,
		Source:   source,
		Flags:    slices.Clone(flags),
	}
}

// WithFlags returns a copy of s with extra flags appended.
func (s CompileSpec) WithFlags(extra ...string) CompileSpec {
	out := s
	out.Flags = slices.Concat(s.Flags, extra)

	return out
}

// Args returns the compiler arguments: flags, source, then the output path.
func (s CompileSpec) Args(binary string) []string {
	args := make([]string, 0, len(s.Flags)+3)
	args = append(args, s.Flags...)
	args = append(args, s.Source, "-o", binary)

	return args
}

// Equal reports whether two specs describe the same build.
func (s CompileSpec) Equal(o CompileSpec) bool {
	return s.Compiler == o.Compiler &&
		s.Source == o.Source &&
		s.Output == o.Output &&
		slices.Equal(s.Flags, o.Flags)
}

func (s CompileSpec) String() string {
	return strings.Join(append(append([]string{s.Compiler}, s.Flags...), s.Source), " ")
}

// CompileOutcome is the result of one build. It is returned on failure too so
// callers can report the captured stderr.
type CompileOutcome struct {
	Spec     CompileSpec
	Binary   string
	ExitCode int
	Stderr   string
	Elapsed  time.Duration
	Reused   bool
}

// Compile builds spec. When spec matches the last successful build the
// existing binary is reused unless the runner is configured to always
// rebuild.
func (r *Runner) Compile(ctx context.Context, spec CompileSpec) (*CompileOutcome, error) {
	binary, err := r.binaryPath(spec)
	if err != nil {
		return &CompileOutcome{Spec: spec}, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}

	if !r.Config.AlwaysRebuild && r.lastBuild != nil && r.lastBuild.Spec.Equal(spec) {
		out := *r.lastBuild
		out.Reused = true

		r.Logger.DebugContext(ctx, "reusing binary",
			slog.String("binary", binary),
		)

		return &out, nil
	}

	r.lastBuild = nil

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cmd := Command{
		Path: spec.Compiler,
		Args: spec.Args(binary),
		Dir:  r.Config.WorkDir,
	}

	r.Logger.DebugContext(ctx, "compiling", slog.String("cmd", cmd.String()))

	outcome := &CompileOutcome{Spec: spec, Binary: binary, ExitCode: -1}

	res, err := r.Exec.Run(ctx, cmd)
	if res != nil {
		outcome.ExitCode = res.ExitCode
		outcome.Stderr = res.Stderr
		outcome.Elapsed = res.Elapsed
	}

	if err != nil {
		return outcome, fmt.Errorf("%w: %s: %w", ErrCompileFailed, spec, err)
	}

	if res == nil {
		return outcome, fmt.Errorf("%w: %s: no process result", ErrCompileFailed, spec)
	}

	if res.ExitCode != 0 {
		return outcome, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrCompileFailed, spec, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	saved := *outcome
	r.lastBuild = &saved

	return outcome, nil
}

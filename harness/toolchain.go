package harness

import (
	"context"
	"fmt"
	"strings"
)

// Toolchain describes a compiler found on the search path.
type Toolchain struct {
	Name    string
	Path    string
	Version string
}

// CheckToolchain verifies that compiler can be located and invoked with
// --version. Callers are expected to abort before any sweep work when it
// fails.
func CheckToolchain(ctx context.Context, ex Executor, compiler string) (*Toolchain, error) {
	path, err := ex.LookPath(compiler)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found on PATH: %w",
			ErrToolchainUnavailable, compiler, err)
	}

	res, err := ex.Run(ctx, Command{Path: path, Args: []string{"--version"}})
	if err != nil {
		return nil, fmt.Errorf("%w: %s --version: %w",
			ErrToolchainUnavailable, compiler, err)
	}

	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s --version exited with status %d: %s",
			ErrToolchainUnavailable, compiler, res.ExitCode,
			strings.TrimSpace(res.Stderr))
	}

	return &Toolchain{
		Name:    compiler,
		Path:    path,
		Version: firstLine(res.Combined),
	}, nil
}

func firstLine(s string) string {
	for line := range strings.Lines(s) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}

	return ""
}

package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// Command describes one child process invocation. Env entries override the
// inherited environment for this child only.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ProcessResult is the captured outcome of a finished child process.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Combined string
	Elapsed  time.Duration
}

// Executor launches external programs. A non-zero exit status is reported
// through ProcessResult.ExitCode; the error is reserved for processes that
// could not be started or were stopped by the context.
type Executor interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, cmd Command) (*ProcessResult, error)
}

// OSExecutor runs commands with os/exec.
type OSExecutor struct{}

// LookPath resolves name against PATH.
func (OSExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run starts the command and waits for it to exit.
func (OSExecutor) Run(ctx context.Context, c Command) (*ProcessResult, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = 5 * time.Second

	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}

	var stdout, stderr bytes.Buffer

	combined := &syncBuffer{}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)

	start := time.Now()
	err := cmd.Run()

	res := &ProcessResult{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		Elapsed:  time.Since(start),
	}

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", c.Path, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}

		return res, fmt.Errorf("start %s: %w", c.Path, err)
	}

	return res, nil
}

// MergeEnv returns base with the keys of overrides replaced. Overrides are
// appended in key order so the result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}

		env = append(env, kv)
	}

	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		env = append(env, key+"="+overrides[key])
	}

	return env
}

// syncBuffer interleaves stdout and stderr, which exec copies from
// separate goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

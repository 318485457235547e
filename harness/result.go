// Package harness compiles benchmark kernels under parameterized flags, runs
// them, extracts their timings and collects the results of a parameter sweep.
package harness

import "errors"

var (
	// ErrToolchainUnavailable means the compiler cannot be located or invoked.
	ErrToolchainUnavailable = errors.New("toolchain unavailable")
	// ErrCompileFailed means one step's build failed.
	ErrCompileFailed = errors.New("compile failed")
	// ErrRunFailed means the compiled binary could not run or exited non-zero.
	ErrRunFailed = errors.New("run failed")
	// ErrSweepAborted is returned by RunSweep under AbortOnFailure.
	ErrSweepAborted = errors.New("sweep aborted")
)

// Stage is the last step reached for a sweep parameter.
type Stage string

const (
	StageCompile Stage = "compile"
	StageRun     Stage = "run"
	StageParse   Stage = "parse"
	StageDone    Stage = "done"
)

// RunResult holds the outcome of one sweep step. A nil DurationSeconds means
// no timing could be obtained.
type RunResult struct {
	Label           string    `json:"label"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Succeeded       bool      `json:"succeeded"`
	Stage           Stage     `json:"stage"`
	Error           string    `json:"error,omitempty"`
	Samples         []float64 `json:"samples,omitempty"`
	RawOutput       string    `json:"raw_output,omitempty"`

	err error
}

// Err returns the error that stopped the step, if any.
func (r RunResult) Err() error {
	return r.err
}

// Duration returns the measured duration and whether one exists.
func (r RunResult) Duration() (float64, bool) {
	if r.DurationSeconds == nil {
		return 0, false
	}

	return *r.DurationSeconds, true
}

func failed(label string, stage Stage, raw string, err error) RunResult {
	return RunResult{
		Label:     label,
		Stage:     stage,
		Error:     err.Error(),
		RawOutput: raw,
		err:       err,
	}
}

// Package main provides the CLI entry point for sweepbench, a tool that
// compiles a benchmark kernel under a sweep of compiler flags or thread
// counts, runs each build and charts how its timing changes.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/weiihann/sweepbench/harness"
)

// Report formats accepted by --format.
const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatCSV      = "csv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(newApp(os.Stdout, os.Stderr, harness.OSExecutor{}))

	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "sweepbench: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every command needs. Settings come from persistent flags
// or SWEEPBENCH_* environment variables through v.
type app struct {
	v      *viper.Viper
	exec   harness.Executor
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer, ex harness.Executor) *app {
	v := viper.New()
	v.SetEnvPrefix("SWEEPBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &app{
		v:      v,
		exec:   ex,
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.NewTextHandler(stderr, nil)),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sweepbench",
		Short: "Compiler flag and thread count sweeps for benchmark kernels",
		Long: `Sweepbench compiles a benchmark kernel once per sweep parameter
(a compiler flag set or an OpenMP thread count), runs each build, extracts
its reported time and prints a comparison table with speed-ups relative to
the first parameter. Charts of time against parameter are written on request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setupLogger()
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("format", formatMarkdown, "Report format: markdown, json (JSON Lines, one object per sweep), csv")
	pf.String("out-dir", ".", "Directory for charts and generated files")

	for _, name := range []string{"log-level", "format", "out-dir"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newCheckCmd(a),
		newRunCmd(a),
		newFlagsCmd(a),
		newScaleCmd(a),
		newPresetsCmd(a),
		newInitCmd(a),
	)

	return root
}

func (a *app) setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{
		Level: level,
	}))

	return nil
}

func (a *app) format() (string, error) {
	f := strings.ToLower(a.v.GetString("format"))

	switch f {
	case formatMarkdown, formatJSON, formatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want markdown, json or csv)", f)
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/weiihann/sweepbench/config"
	"github.com/weiihann/sweepbench/kernel"
)

type initConfig struct {
	kernel   string
	openmp   bool
	size     int
	reps     int
	seed     uint32
	compiler string
	threads  int
	force    bool
}

func newInitCmd(a *app) *cobra.Command {
	var cfg initConfig

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a benchmark kernel and a sample sweep file",
		Long: `Generate a deterministic C kernel (saxpy or matmul) that prints its
elapsed time as "Time: <seconds> s", plus a sweepbench.yaml running an
optimisation level sweep and, for OpenMP kernels, a thread sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.initWorkspace(cmd.Context(), a.v.GetString("out-dir"), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.kernel, "kernel", "k", kernel.SAXPY,
		"Kernel to generate: "+strings.Join(kernel.Names(), ", "))
	flags.BoolVar(&cfg.openmp, "openmp", false,
		"Generate the OpenMP variant")
	flags.IntVarP(&cfg.size, "size", "n", 0,
		"Problem size (0 = kernel default)")
	flags.IntVar(&cfg.reps, "reps", 0,
		"Timed repetitions (0 = kernel default)")
	flags.Uint32Var(&cfg.seed, "seed", 42,
		"Seed for the kernel's input data")
	flags.StringVarP(&cfg.compiler, "compiler", "c", "gcc",
		"Compiler written into the sweep file")
	flags.IntVar(&cfg.threads, "max-threads", runtime.NumCPU(),
		"Largest thread count of the sample thread sweep")
	flags.BoolVar(&cfg.force, "force", false,
		"Overwrite existing files")

	return cmd
}

func (a *app) initWorkspace(ctx context.Context, dir string, cfg initConfig) error {
	kc := kernel.DefaultConfig(cfg.kernel, cfg.openmp)
	kc.Seed = cfg.seed

	if cfg.size > 0 {
		kc.N = cfg.size
	}

	if cfg.reps > 0 {
		kc.Reps = cfg.reps
	}

	var src bytes.Buffer

	summary, err := kernel.Generate(&src, kc)
	if err != nil {
		return fmt.Errorf("generate kernel: %w", err)
	}

	threads := 0
	if cfg.openmp {
		threads = max(cfg.threads, 1)
	}

	binary := strings.TrimSuffix(kc.FileName(), ".c")
	sweepFile := config.Sample(cfg.compiler, kc.FileName(), binary, threads)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{kc.FileName(), src.Bytes()},
		{config.DefaultFiles[0], sweepFile},
	}

	for _, f := range files {
		if err := writeNew(filepath.Join(dir, f.name), f.data, cfg.force); err != nil {
			return err
		}

		fmt.Fprintln(a.stdout, filepath.Join(dir, f.name))
	}

	a.logger.InfoContext(ctx, "workspace initialised",
		slog.String("kernel", summary.Kernel),
		slog.Bool("openmp", cfg.openmp),
		slog.Float64("flops", summary.FLOPs),
		slog.Int("lines", summary.Lines),
	)

	return nil
}

func writeNew(path string, data []byte, force bool) error {
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("write %s: %w", path, err)
	}

	return f.Close()
}

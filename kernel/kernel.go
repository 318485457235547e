// Package kernel generates deterministic C sources for the numerical kernels
// the sweeps are usually run against: SAXPY and dense matrix multiplication,
// each in a serial and an OpenMP variant. Every kernel prints its elapsed
// time last, as "Time: <seconds> s".
package kernel

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// Known kernel names.
const (
	SAXPY  = "saxpy"
	MatMul = "matmul"
)

// Config controls source generation.
type Config struct {
	Kernel string
	OpenMP bool
	// N is the vector length for saxpy and the matrix order for matmul.
	N int
	// Reps is the number of times the timed loop runs.
	Reps int
	// Seed initializes the in-program generator filling the inputs.
	Seed uint32
}

// Summary describes a generated source.
type Summary struct {
	Kernel string
	Lines  int
	Bytes  int
	// FLOPs is the number of floating-point operations in the timed region.
	FLOPs float64
}

// Names returns the known kernel names.
func Names() []string {
	return []string{SAXPY, MatMul}
}

// DefaultConfig returns the problem sizes used by the sample sweeps.
func DefaultConfig(name string, openmp bool) Config {
	cfg := Config{Kernel: name, OpenMP: openmp, Seed: 42}

	switch name {
	case MatMul:
		cfg.N = 512
		cfg.Reps = 1
	default:
		cfg.N = 1 << 24
		cfg.Reps = 10
	}

	return cfg
}

// FileName returns the conventional file name for the source.
func (c Config) FileName() string {
	if c.OpenMP {
		return c.Kernel + "_openmp.c"
	}

	return c.Kernel + ".c"
}

// Validate checks that the config describes a kernel that can be generated.
func (c Config) Validate() error {
	if _, ok := templates[c.Kernel]; !ok {
		return fmt.Errorf("unknown kernel %q (want one of %s)",
			c.Kernel, strings.Join(Names(), ", "))
	}

	if c.N <= 0 {
		return fmt.Errorf("kernel size must be positive, got %d", c.N)
	}

	if c.Reps <= 0 {
		return fmt.Errorf("kernel repetitions must be positive, got %d", c.Reps)
	}

	return nil
}

// Generate writes the kernel source to w.
func Generate(w io.Writer, cfg Config) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}

	var buf bytes.Buffer
	if err := templates[cfg.Kernel].Execute(&buf, map[string]any{
		"Name":   cfg.FileName(),
		"OpenMP": cfg.OpenMP,
		"N":      cfg.N,
		"Reps":   cfg.Reps,
		"Seed":   seed,
	}); err != nil {
		return Summary{}, fmt.Errorf("render %s: %w", cfg.Kernel, err)
	}

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", cfg.FileName(), err)
	}

	return Summary{
		Kernel: cfg.Kernel,
		Lines:  bytes.Count(buf.Bytes(), []byte("\n")),
		Bytes:  n,
		FLOPs:  flops(cfg),
	}, nil
}

func flops(cfg Config) float64 {
	n := float64(cfg.N)
	reps := float64(cfg.Reps)

	switch cfg.Kernel {
	case MatMul:
		return 2 * n * n * n * reps
	default:
		return 2 * n * reps
	}
}

var templates = map[string]*template.Template{
	SAXPY:  template.Must(template.New(SAXPY).Parse(header + saxpySource)),
	MatMul: template.Must(template.New(MatMul).Parse(header + matmulSource)),
}

const header = `/* {{.Name}}: generated by sweepbench. */
#define _POSIX_C_SOURCE 199309L
#include <stdio.h>
#include <stdlib.h>
#include <time.h>
{{- if .OpenMP}}
#ifdef _OPENMP
#include <omp.h>
#endif
{{- end}}

#define N {{.N}}L
#define REPS {{.Reps}}

static unsigned int state = {{.Seed}}u;

static double next_value(void)
{
    state = state * 1664525u + 1013904223u;
    return (double)(state >> 8) / 16777216.0;
}

static double now(void)
{
{{- if .OpenMP}}
#ifdef _OPENMP
    return omp_get_wtime();
#else
{{- end}}
    struct timespec ts;
    clock_gettime(CLOCK_MONOTONIC, &ts);
    return (double)ts.tv_sec + (double)ts.tv_nsec * 1e-9;
{{- if .OpenMP}}
#endif
{{- end}}
}
`

const saxpySource = `
int main(void)
{
    float *x = malloc(N * sizeof(float));
    float *y = malloc(N * sizeof(float));
    const float a = 2.0f;
    if (x == NULL || y == NULL) {
        fprintf(stderr, "allocation failed\n");
        return 1;
    }

    for (long i = 0; i < N; i++) {
        x[i] = (float)next_value();
        y[i] = 1.0f - x[i];
    }

    double t0 = now();
    for (int r = 0; r < REPS; r++) {
{{- if .OpenMP}}
        #pragma omp parallel for
{{- end}}
        for (long i = 0; i < N; i++) {
            y[i] = a * x[i] + y[i];
        }
    }
    double t1 = now();

    double check = 0.0;
    for (long i = 0; i < N; i++) {
        check += y[i];
    }

    printf("checksum %g\n", check);
    printf("Time: %.9f s\n", t1 - t0);

    free(x);
    free(y);
    return 0;
}
`

const matmulSource = `
int main(void)
{
    double *a = malloc(N * N * sizeof(double));
    double *b = malloc(N * N * sizeof(double));
    double *c = calloc(N * N, sizeof(double));
    if (a == NULL || b == NULL || c == NULL) {
        fprintf(stderr, "allocation failed\n");
        return 1;
    }

    for (long i = 0; i < N * N; i++) {
        a[i] = next_value();
        b[i] = next_value();
    }

    double t0 = now();
    for (int r = 0; r < REPS; r++) {
{{- if .OpenMP}}
        #pragma omp parallel for
{{- end}}
        for (long i = 0; i < N; i++) {
            for (long k = 0; k < N; k++) {
                double aik = a[i * N + k];
                for (long j = 0; j < N; j++) {
                    c[i * N + j] += aik * b[k * N + j];
                }
            }
        }
    }
    double t1 = now();

    double check = 0.0;
    for (long i = 0; i < N * N; i++) {
        check += c[i];
    }

    printf("checksum %g\n", check);
    printf("Time: %.9f s\n", t1 - t0);

    free(a);
    free(b);
    free(c);
    return 0;
}
`

package kernel

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := Config{Kernel: SAXPY, N: 1024, Reps: 3, Seed: 7}

	var buf1, buf2 bytes.Buffer

	sum1, err := Generate(&buf1, cfg)
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}

	sum2, err := Generate(&buf2, cfg)
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}

	if buf1.String() != buf2.String() {
		t.Error("sources are not deterministic for the same config")
	}

	if sum1 != sum2 {
		t.Errorf("summaries differ: %+v vs %+v", sum1, sum2)
	}
}

func TestGenerateVariants(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantFile  string
		wantOMP   bool
		wantFLOPs float64
	}{
		{
			name:      "serial saxpy",
			cfg:       Config{Kernel: SAXPY, N: 100, Reps: 2, Seed: 1},
			wantFile:  "saxpy.c",
			wantFLOPs: 400,
		},
		{
			name:      "openmp saxpy",
			cfg:       Config{Kernel: SAXPY, OpenMP: true, N: 100, Reps: 1, Seed: 1},
			wantFile:  "saxpy_openmp.c",
			wantOMP:   true,
			wantFLOPs: 200,
		},
		{
			name:      "openmp matmul",
			cfg:       Config{Kernel: MatMul, OpenMP: true, N: 10, Reps: 1, Seed: 1},
			wantFile:  "matmul_openmp.c",
			wantOMP:   true,
			wantFLOPs: 2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			sum, err := Generate(&buf, tt.cfg)
			if err != nil {
				t.Fatalf("generation failed: %v", err)
			}

			src := buf.String()

			if got := tt.cfg.FileName(); got != tt.wantFile {
				t.Errorf("file name = %q, want %q", got, tt.wantFile)
			}
			if !strings.HasPrefix(src, "/* "+tt.wantFile) {
				t.Errorf("source header does not name %s", tt.wantFile)
			}
			if got := strings.Contains(src, "#pragma omp parallel for"); got != tt.wantOMP {
				t.Errorf("pragma present = %v, want %v", got, tt.wantOMP)
			}
			if got := strings.Contains(src, "#include <omp.h>"); got != tt.wantOMP {
				t.Errorf("omp.h included = %v, want %v", got, tt.wantOMP)
			}
			if sum.FLOPs != tt.wantFLOPs {
				t.Errorf("flops = %g, want %g", sum.FLOPs, tt.wantFLOPs)
			}
			if sum.Bytes != len(src) {
				t.Errorf("bytes = %d, want %d", sum.Bytes, len(src))
			}
		})
	}
}

func TestGenerateTimingIsLastLine(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := Generate(&buf, DefaultConfig(name, false)); err != nil {
				t.Fatalf("generation failed: %v", err)
			}

			src := buf.String()
			timing := strings.Index(src, `printf("Time: %.9f s\n", t1 - t0);`)
			checksum := strings.Index(src, `printf("checksum %g\n", check);`)

			if timing < 0 || checksum < 0 {
				t.Fatal("missing checksum or timing output")
			}
			if timing < checksum {
				t.Error("timing must be printed after the checksum")
			}
		})
	}
}

func TestGenerateInvalid(t *testing.T) {
	tests := []Config{
		{Kernel: "fft", N: 10, Reps: 1},
		{Kernel: SAXPY, N: 0, Reps: 1},
		{Kernel: MatMul, N: 10, Reps: 0},
	}

	for _, cfg := range tests {
		var buf bytes.Buffer
		if _, err := Generate(&buf, cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
		if buf.Len() != 0 {
			t.Errorf("wrote output for invalid config %+v", cfg)
		}
	}
}

func TestZeroSeedIsReplaced(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Generate(&buf, Config{Kernel: SAXPY, N: 8, Reps: 1}); err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if !strings.Contains(buf.String(), "state = 1u;") {
		t.Error("zero seed should be replaced by 1")
	}
}

package config

import (
	"fmt"
)

const sampleFlags = `# Sweep file written by "sweepbench init".
compiler: %[1]s
source: %[2]s
output: %[3]s
policy: continue
timeout: 5m
repeats: 1

extract:
  kind: last-float

sweeps:
  - name: levels
    kind: flags
    preset: levels
    chart:
      path: levels.png
      title: Optimisation levels
      x_label: flags
      y_label: time (s)
`

const sampleThreads = `
  - name: threads
    kind: threads
    base_flags: ["-O2 -fopenmp"]
    max_threads: %d
    chart:
      path: threads.png
      title: Thread scaling
      x_label: threads
      y_label: time (s)
      log_x: true
`

// Sample returns a sweep file for source. With threads > 0 it also holds a
// thread sweep up to that count.
func Sample(compiler, source, output string, threads int) []byte {
	out := fmt.Sprintf(sampleFlags, compiler, source, output)
	if threads > 0 {
		out += fmt.Sprintf(sampleThreads, threads)
	}

	return []byte(out)
}

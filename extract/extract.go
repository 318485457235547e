// Package extract pulls a duration out of the free-form output printed by a
// benchmark program. The position and formatting of the timing differ for
// every kernel, so callers pick or supply a Func per program.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseableOutput is returned when no duration can be read from output.
var ErrUnparseableOutput = errors.New("unparseable output")

// Func extracts a duration in seconds from captured program output.
type Func func(raw string) (float64, error)

// floatPattern matches decimal and exponent floating-point literals as
// printed by C printf and Fortran list-directed output.
var floatPattern = regexp.MustCompile(
	`[-+]?(?:\d+\.\d*|\.\d+|\d+)(?:[eE][-+]?\d+)?`,
)

// ParseDuration parses a clean numeric string. Surrounding whitespace is
// ignored; anything else must be a finite, non-negative float.
func ParseDuration(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty input", ErrUnparseableOutput)
	}

	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUnparseableOutput, trimmed)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrUnparseableOutput, trimmed)
	}

	if v < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrUnparseableOutput, trimmed)
	}

	return v, nil
}

// LastFloat returns the last floating-point literal found in the output.
func LastFloat() Func {
	return func(raw string) (float64, error) {
		matches := floatPattern.FindAllString(raw, -1)
		if len(matches) == 0 {
			return 0, fmt.Errorf("%w: no number in output", ErrUnparseableOutput)
		}

		return ParseDuration(matches[len(matches)-1])
	}
}

// Regexp returns a Func reading the first capture group of pattern, or the
// whole match when the pattern has no groups.
func Regexp(pattern string) (Func, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	return func(raw string) (float64, error) {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return 0, fmt.Errorf("%w: pattern %q did not match",
				ErrUnparseableOutput, pattern)
		}

		if len(m) > 1 {
			return ParseDuration(m[1])
		}

		return ParseDuration(m[0])
	}, nil
}

// unitStripper removes the characters fixed-offset extraction ignores: line
// breaks and every "s", so offsets into "0.12345678 s\n" see "0.12345678 ".
var unitStripper = strings.NewReplacer("\r", "", "\n", "", "s", "")

// Slice returns a Func that reads the duration at fixed character offsets.
// Offsets follow slice semantics where negative values count from the end,
// and are applied after line breaks and every "s" have been removed from
// the output.
func Slice(start, end int) Func {
	return func(raw string) (float64, error) {
		text := unitStripper.Replace(raw)

		lo, hi := clampIndex(start, len(text)), clampIndex(end, len(text))
		if lo >= hi {
			return 0, fmt.Errorf("%w: offsets [%d:%d] select nothing",
				ErrUnparseableOutput, start, end)
		}

		return ParseDuration(text[lo:hi])
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}

	return max(0, min(i, n))
}

// JSONField returns a Func that decodes the first JSON object in the output
// and reads the numeric value at a dot-separated field path.
func JSONField(path string) Func {
	keys := strings.Split(path, ".")

	return func(raw string) (float64, error) {
		idx := strings.IndexByte(raw, '{')
		if idx < 0 {
			return 0, fmt.Errorf("%w: no JSON object in output", ErrUnparseableOutput)
		}

		dec := json.NewDecoder(bytes.NewReader([]byte(raw[idx:])))
		dec.UseNumber()

		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return 0, fmt.Errorf("%w: decode JSON: %v", ErrUnparseableOutput, err)
		}

		var cur any = obj
		for _, k := range keys {
			m, ok := cur.(map[string]any)
			if !ok {
				return 0, fmt.Errorf("%w: field %q not found", ErrUnparseableOutput, path)
			}

			if cur, ok = m[k]; !ok {
				return 0, fmt.Errorf("%w: field %q not found", ErrUnparseableOutput, path)
			}
		}

		switch v := cur.(type) {
		case json.Number:
			return ParseDuration(v.String())
		case string:
			return ParseDuration(v)
		default:
			return 0, fmt.Errorf("%w: field %q is %T, not a number",
				ErrUnparseableOutput, path, cur)
		}
	}
}

// Scaled multiplies the value produced by f, e.g. 1e-3 for milliseconds.
func Scaled(f Func, factor float64) Func {
	return func(raw string) (float64, error) {
		v, err := f(raw)
		if err != nil {
			return 0, err
		}

		return v * factor, nil
	}
}

// Kinds lists the strategy names accepted by ByName.
func Kinds() []string {
	return []string{"last-float", "regexp", "slice", "json"}
}

// ByName resolves a strategy from its configuration name and argument:
// a pattern for "regexp", "start:end" for "slice", a field path for "json".
func ByName(kind, arg string) (Func, error) {
	switch kind {
	case "", "last-float":
		return LastFloat(), nil

	case "regexp":
		if arg == "" {
			return nil, fmt.Errorf("regexp extractor needs a pattern")
		}

		return Regexp(arg)

	case "slice":
		start, end, err := parseRange(arg)
		if err != nil {
			return nil, err
		}

		return Slice(start, end), nil

	case "json":
		if arg == "" {
			return nil, fmt.Errorf("json extractor needs a field")
		}

		return JSONField(arg), nil

	default:
		return nil, fmt.Errorf("unknown extractor %q (want one of %s)",
			kind, strings.Join(Kinds(), ", "))
	}
}

func parseRange(arg string) (int, int, error) {
	lo, hi, ok := strings.Cut(arg, ":")
	if !ok {
		return 0, 0, fmt.Errorf("slice extractor wants start:end, got %q", arg)
	}

	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("slice start %q: %w", lo, err)
	}

	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("slice end %q: %w", hi, err)
	}

	return start, end, nil
}

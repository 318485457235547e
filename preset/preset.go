// Package preset provides named compiler flag lists for common sweeps.
package preset

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// RefPrefix marks a flag entry that refers to a preset, e.g. "@gcc-o1".
const RefPrefix = "@"

// Preset is a named flag list. Combined presets get a trailing step that
// applies every flag at once.
type Preset struct {
	Name        string   `yaml:"-"`
	Description string   `yaml:"description"`
	Combined    bool     `yaml:"combined"`
	Flags       []string `yaml:"flags"`
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

var (
	loadOnce sync.Once
	builtin  map[string]Preset
	loadErr  error
)

// Parse decodes a presets document.
func Parse(data []byte) (map[string]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	out := make(map[string]Preset, len(f.Presets))
	for name, p := range f.Presets {
		if len(p.Flags) == 0 {
			return nil, fmt.Errorf("preset %q has no flags", name)
		}

		p.Name = name
		out[name] = p
	}

	return out, nil
}

func load() (map[string]Preset, error) {
	loadOnce.Do(func() {
		builtin, loadErr = Parse(presetsYAML)
	})

	return builtin, loadErr
}

// Lookup returns the built-in preset with the given name.
func Lookup(name string) (Preset, error) {
	all, err := load()
	if err != nil {
		return Preset{}, err
	}

	p, ok := all[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (known: %s)",
			name, strings.Join(Names(), ", "))
	}

	p.Flags = slices.Clone(p.Flags)

	return p, nil
}

// Names returns the built-in preset names in sorted order.
func Names() []string {
	all, err := load()
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Expand turns flag entries into compiler arguments. Entries starting with
// RefPrefix are replaced by the preset's flags; other entries are split with
// shell quoting rules so one entry may hold several arguments.
func Expand(entries []string) ([]string, error) {
	var out []string

	for _, e := range entries {
		if name, ok := strings.CutPrefix(e, RefPrefix); ok {
			p, err := Lookup(name)
			if err != nil {
				return nil, err
			}

			out = append(out, p.Flags...)

			continue
		}

		words, err := shellquote.Split(e)
		if err != nil {
			return nil, fmt.Errorf("split flags %q: %w", e, err)
		}

		out = append(out, words...)
	}

	return out, nil
}

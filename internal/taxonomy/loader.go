package taxonomy

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	defaultOnce sync.Once
	defaultTax  *Taxonomy
)

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("taxonomy: built-in table is invalid: %v", err))
		}
		defaultTax = t
	})
	return defaultTax
}

// Load reads a taxonomy from a YAML file. An empty path yields Default().
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy %s: %w", path, err)
	}

	slog.Info("taxonomy loaded", "path", path, "categories", len(t.Categories), "presets", len(t.Presets))
	return t, nil
}

// Parse decodes and validates a YAML taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.index()
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("taxonomy has no categories")
	}

	seen := make(map[string]bool, len(t.Categories))
	for i, c := range t.Categories {
		if c.Code == "" {
			return fmt.Errorf("category %d has no code", i)
		}
		if seen[c.Code] {
			return fmt.Errorf("duplicate category code %q", c.Code)
		}
		seen[c.Code] = true

		if c.Fragile && c.SubtypePrefix == "" {
			return fmt.Errorf("category %q is fragile but has no subtype_prefix", c.Code)
		}
		if c.DefaultSubtype != "" && !slices.Contains(c.Subtypes, c.DefaultSubtype) {
			return fmt.Errorf("category %q default_subtype %q is not one of its subtypes", c.Code, c.DefaultSubtype)
		}
	}

	for _, p := range t.Presets {
		if p.Name == "" {
			return fmt.Errorf("preset has no name")
		}
		for code, n := range p.Counts {
			if !seen[code] {
				return fmt.Errorf("preset %q references unknown category %q", p.Name, code)
			}
			if n < 0 {
				return fmt.Errorf("preset %q has negative count for %q", p.Name, code)
			}
		}
	}
	return nil
}

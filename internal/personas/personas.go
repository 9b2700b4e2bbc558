package personas

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Persona is one simulated discussion participant with a fixed descriptive
// trait used when building its prompt.
type Persona struct {
	Name  string `yaml:"name"`
	Trait string `yaml:"trait"`
}

// Set is the fixed pool of AI participants for a server instance.
type Set struct {
	Personas []Persona `yaml:"personas"`
}

// Default returns the built-in persona set.
func Default() *Set {
	set, err := parse(defaultsYAML)
	if err != nil {
		// The embedded file is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded personas are invalid: %v", err))
	}
	return set
}

// Load reads a persona set from a YAML file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	set, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}

	return set, nil
}

func parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}

	return &set, nil
}

// Validate checks the set is usable for round-robin selection.
func (s *Set) Validate() error {
	if len(s.Personas) < 2 {
		return fmt.Errorf("at least 2 personas are required, got %d", len(s.Personas))
	}

	seen := make(map[string]bool, len(s.Personas))
	for i, p := range s.Personas {
		if p.Name == "" {
			return fmt.Errorf("persona %d has an empty name", i)
		}
		if p.Trait == "" {
			return fmt.Errorf("persona %q has an empty trait", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate persona name %q", p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// Next advances the round-robin cursor. The previous index never repeats
// because the set holds at least two personas. Pass -1 for the first turn.
func (s *Set) Next(last int) (int, Persona) {
	next := (last + 1) % len(s.Personas)
	return next, s.Personas[next]
}

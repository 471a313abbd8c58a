package persona

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// pairFile is the on-disk shape of a personas file. Both entries are
// optional; omitted fields keep their built-in defaults.
type pairFile struct {
	A *Persona `yaml:"a"`
	B *Persona `yaml:"b"`
}

// LoadPair returns the speaker pair, overlaying the YAML file at path over
// the built-in defaults when path is non-empty.
func LoadPair(path string) (Persona, Persona, error) {
	a, b := DefaultPair()
	if path == "" {
		return a, b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return a, b, fmt.Errorf("failed to read personas file: %w", err)
	}

	// Unmarshal over the defaults so only keys present in the file change.
	f := pairFile{A: &a, B: &b}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return a, b, fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}

	if err := a.Validate(); err != nil {
		return a, b, err
	}
	if err := b.Validate(); err != nil {
		return a, b, err
	}

	log.Debug().Str("path", path).Msg("Loaded personas file")
	return a, b, nil
}

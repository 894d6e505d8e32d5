package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sources describes which parts of the filesystem get ingested.
type Sources struct {
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`
	Extensions []string `yaml:"extensions"`
}

// LoadSources reads the YAML source-roots file.
func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("read sources file: %w", err)
	}
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sources{}, fmt.Errorf("parse sources file: %w", err)
	}
	for i, ext := range s.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.Extensions[i] = ext
	}
	return s, nil
}

// ExtensionSet returns the include extensions as a lookup set.
func (s Sources) ExtensionSet() map[string]bool {
	set := make(map[string]bool, len(s.Extensions))
	for _, ext := range s.Extensions {
		set[ext] = true
	}
	return set
}

package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset ist eine benannte, gespeicherte Abfrage.
type Preset struct {
	Filters  Filters  `yaml:"filters"`
	Settings Settings `yaml:"settings"`
}

// LoadPresets liest eine YAML-Datei der Form
//
//	cardiology:
//	  filters: {journal: "heart*", published_after: 2020-01-01}
//	  settings: {authors: true}
func LoadPresets(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	presets := map[string]Preset{}
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	return presets, nil
}

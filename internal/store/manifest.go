package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// manifestFile marks a complete build. It is written last.
const manifestFile = "manifest.yaml"

// Manifest describes a built index.
type Manifest struct {
	Key        string    `yaml:"key" json:"key"`
	Sources    []string  `yaml:"sources" json:"sources"`
	Chunks     int       `yaml:"chunks" json:"chunks"`
	Dimensions int       `yaml:"dimensions" json:"dimensions"`
	Keyword    bool      `yaml:"keyword" json:"keyword"`
	BuiltAt    time.Time `yaml:"built_at" json:"built_at"`
	SizeBytes  int64     `yaml:"-" json:"size_bytes"`
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

package particle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Preset store errors.
var (
	// ErrUnsupportedFormat is returned for files that are neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("particle: unsupported config format")

	// ErrInvalidPresetName is returned for names that would escape the preset directory.
	ErrInvalidPresetName = errors.New("particle: invalid preset name")
)

// PresetDir is the default directory for saved configurations.
const PresetDir = "assets/particle_configs"

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// CheckFormat reports whether path has an extension LoadConfig and
// SaveConfig understand.
func CheckFormat(path string) error {
	_, err := formatOf(path)
	return err
}

// LoadConfig reads a configuration from a .json, .yaml or .yml file.
// The friction factor is recomputed, and a matrix whose size does not
// match m is replaced with a random one drawn from rng.
func LoadConfig(path string, rng *rand.Rand) (SimulationConfig, error) {
	f, err := formatOf(path)
	if err != nil {
		return SimulationConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("particle: read config: %w", err)
	}

	var cfg SimulationConfig
	switch f {
	case formatJSON:
		err = json.Unmarshal(data, &cfg)
	case formatYAML:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("particle: decode %s: %w", filepath.Base(path), err)
	}

	cfg = cfg.Normalize(rng)
	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, fmt.Errorf("particle: %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories. The recreate
// flag is not persisted.
func SaveConfig(path string, cfg SimulationConfig) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	cfg.Recreate = false

	var data []byte
	switch f {
	case formatJSON:
		data, err = json.MarshalIndent(cfg, "", "  ")
	case formatYAML:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("particle: encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("particle: create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("particle: write config: %w", err)
	}
	return nil
}

// PresetPath returns dir/<name>.json.
func PresetPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPresetName, name)
	}
	return filepath.Join(dir, name+".json"), nil
}

// ListPresets returns the names of the JSON presets in dir, sorted.
// A missing directory yields no presets.
func ListPresets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("particle: list presets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Loader resolves, parses, and validates configuration files, layering file
// contents and environment overrides on top of the defaults.
type Loader struct {
	searchPaths   []string
	envPrefix     string
	defaultConfig *Config
}

// NewLoader creates a loader with the standard search paths.
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
		},
		envPrefix:     "SIMCORE",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths replaces the file search paths.
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix replaces the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig replaces the base configuration.
func (l *Loader) SetDefaultConfig(cfg *Config) *Loader {
	l.defaultConfig = cfg
	return l
}

// Load reads the named file (searched across the configured paths when the
// name is relative and bare), applies environment overrides, and validates
// the result. An empty filename loads defaults plus environment only.
func (l *Loader) Load(filename string) (*Config, error) {
	cfg := l.defaultConfig
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.Clone()

	if filename != "" {
		path, err := l.resolve(filename)
		if err != nil {
			return nil, err
		}
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) resolve(filename string) (string, error) {
	if filepath.IsAbs(filename) || strings.ContainsRune(filename, os.PathSeparator) {
		if _, err := os.Stat(filename); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return filename, nil
	}
	for _, dir := range l.searchPaths {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("config: file %s not found in search paths", filename)
}

// DetectFormat maps a file extension to its format.
func DetectFormat(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("config: unsupported file format %q", filepath.Ext(path))
	}
}

func loadFromFile(path string, cfg *Config) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return json.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnv layers environment overrides on top of the loaded values.
func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.lookup("WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v, ok := l.lookup("DEFAULT_STRATEGY"); ok {
		cfg.DefaultStrategy = v
	}
	if v, ok := l.lookup("MONITORING"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Monitoring = b
		}
	}
	if v, ok := l.lookup("TARGET_INTERVAL_MS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TargetIntervalMS = f
		}
	}
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

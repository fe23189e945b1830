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

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data over the defaults.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return fromMap(m)
}

// FromJSON parses JSON data over the defaults.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return fromMap(m)
}

// fromMap applies decoded document keys over the defaults. Scalars are
// rendered back to text so file and environment inputs share one parser.
func fromMap(m map[string]any) (Config, error) {
	cfg := Default()
	for key, v := range m {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case bool:
			s = strconv.FormatBool(val)
		case int:
			s = strconv.Itoa(val)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			continue
		default:
			return Config{}, fmt.Errorf("%s: unsupported value type %T", key, v)
		}
		if err := cfg.set(key, s); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

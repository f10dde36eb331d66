package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. TREECKPT_MAX_TO_KEEP
// sets max_to_keep.
const EnvPrefix = "TREECKPT_"

// FromFile loads configuration from a file, picking the format by
// extension: .yaml, .yml or .json.
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

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv collects TREECKPT_* overrides. Values from the dotenv files are
// read first, in order, and the process environment wins over all of them.
// Missing dotenv files are skipped. Keys are lowercased with the prefix
// stripped; values stay strings and are converted by the accessors.
func FromEnv(dotenvFiles ...string) (Config, error) {
	out := make(map[string]any)
	for _, f := range dotenvFiles {
		vars, err := godotenv.Read(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read env file %s: %w", f, err)
		}
		collectEnv(out, vars)
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	collectEnv(out, env)
	return New(out), nil
}

func collectEnv(out map[string]any, vars map[string]string) {
	for k, v := range vars {
		name, ok := strings.CutPrefix(k, EnvPrefix)
		if !ok || name == "" {
			continue
		}
		out[strings.ToLower(name)] = v
	}
}

// Load reads path, when given, and layers the environment overrides on top.
func Load(path string, dotenvFiles ...string) (Config, error) {
	base := New(nil)
	if path != "" {
		var err error
		if base, err = FromFile(path); err != nil {
			return Config{}, err
		}
	}
	env, err := FromEnv(dotenvFiles...)
	if err != nil {
		return Config{}, err
	}
	return base.Merge(env), nil
}

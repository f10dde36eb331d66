/*
Package config loads checkpoint manager settings from YAML or JSON files
and TREECKPT_* environment overrides.

# Basic Usage

	cfg, err := config.Load("treeckpt.yaml", ".env")
	if err != nil {
	    log.Fatal(err)
	}
	mcfg, err := config.ManagerConfig(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	backend, err := storage.Open(config.Storage(cfg))

A file looks like:

	root: ./checkpoints
	storage: sqlite://./checkpoints.db
	max_to_keep: 5
	keep_period: 1000
	best_metric_key: loss
	best_metric_mode: min
	compression: zstd
	should_save: "steps_since_save >= 500 || seconds_since_save > 600"

# Type Coercion

Accessors return the default when a key is missing or cannot be
converted. Strings are parsed, so TREECKPT_MAX_TO_KEEP=5 and
max_to_keep: 5 read the same. Durations accept time.ParseDuration
strings or a number of seconds. Integers read from a float must have no
fractional part.

# Precedence

Load applies, lowest first: the config file, dotenv files in the order
given, then the process environment. Missing dotenv files are skipped.

Config is safe for concurrent reads. Merge returns a new Config and
leaves its inputs alone.
*/
package config

package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLUNDERS_"

// Config is the full scanner configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Detector  DetectorConfig  `yaml:"detector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Review    ReviewConfig    `yaml:"review"`
	ECODir    string          `yaml:"eco_dir"` // Directory of ECO .tsv tables (empty = no classification)
	Log       LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"` // Per-call limit, 0 = unbounded
}

type DetectorConfig struct {
	ShallowDepth int `yaml:"shallow_depth"`
	DeepDepth    int `yaml:"deep_depth"`
	Threshold    int `yaml:"threshold"` // centipawns
	SkipPlies    int `yaml:"skip_plies"`
}

type SchedulerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ReviewConfig struct {
	Depth   int `yaml:"depth"`
	HashMB  int `yaml:"hash_mb"`
	Threads int `yaml:"threads"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Store:  StoreConfig{Path: "blunders.yaml"},
		Engine: EngineConfig{Path: "stockfish"},
		Detector: DetectorConfig{
			ShallowDepth: 10,
			DeepDepth:    20,
			Threshold:    100,
			SkipPlies:    10,
		},
		Scheduler: SchedulerConfig{
			Workers:      workers,
			PollInterval: 20 * time.Millisecond,
		},
		Review: ReviewConfig{
			Depth:   24,
			HashMB:  256,
			Threads: 2,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with BLUNDERS_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment as seen through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("DB", &c.Store.Path)
	str("ENGINE", &c.Engine.Path)
	str("ECO_DIR", &c.ECODir)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "ENGINE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sENGINE_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Engine.Timeout = d
	}

	return errors.Join(
		num("WORKERS", &c.Scheduler.Workers),
		num("THRESHOLD", &c.Detector.Threshold),
		num("SHALLOW_DEPTH", &c.Detector.ShallowDepth),
		num("DEEP_DEPTH", &c.Detector.DeepDepth),
		num("SKIP_PLIES", &c.Detector.SkipPlies),
	)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.Engine.Path == "" {
		errs = append(errs, errors.New("engine path is required"))
	}
	if c.Engine.Timeout < 0 {
		errs = append(errs, fmt.Errorf("engine timeout must not be negative, got %v", c.Engine.Timeout))
	}
	if c.Detector.ShallowDepth < 1 {
		errs = append(errs, fmt.Errorf("shallow depth must be positive, got %d", c.Detector.ShallowDepth))
	}
	if c.Detector.DeepDepth < c.Detector.ShallowDepth {
		errs = append(errs, fmt.Errorf("deep depth %d is below shallow depth %d", c.Detector.DeepDepth, c.Detector.ShallowDepth))
	}
	if c.Detector.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must not be negative, got %d", c.Detector.Threshold))
	}
	if c.Detector.SkipPlies < 0 {
		errs = append(errs, fmt.Errorf("skip plies must not be negative, got %d", c.Detector.SkipPlies))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Scheduler.Workers))
	}
	if c.Review.Depth < 1 {
		errs = append(errs, fmt.Errorf("review depth must be positive, got %d", c.Review.Depth))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

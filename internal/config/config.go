// Package config loads the station configuration for the stk command: where
// the extractor binary and results database live, where artifacts go, how
// vehicle-bus frames map onto kinematic signals and which Redis instance
// receives job progress. Values come from a YAML file with STK_* environment
// variables layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openadas/stk/internal/canlog"
)

// Max accepted config file size.
const maxFileSize = 1 * 1024 * 1024

// Config is the root station configuration. Fields omitted from the YAML
// file keep their defaults, so partial configs are safe.
type Config struct {
	// ExtractorPath locates the RecFileExtractor executable.
	ExtractorPath string `yaml:"extractor_path"`

	// DBPath is the SQLite results database file.
	DBPath string `yaml:"db_path"`

	// OutputDir receives extracted images, plots and reports.
	OutputDir string `yaml:"output_dir"`

	// RedisAddr enables runtime job progress publishing when set.
	RedisAddr string `yaml:"redis_addr"`

	// ListenAddr is the serve command's HTTP bind address.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// WatchInterval debounces drop-folder events, as a duration string
	// like "2s".
	WatchInterval string `yaml:"watch_interval"`

	// CAN maps bus frames onto the ego kinematic signals.
	CAN canlog.Mapping `yaml:"can"`
}

// Default returns the built-in station configuration.
func Default() Config {
	return Config{
		ExtractorPath: "RecFileExtractor",
		DBPath:        "stk.db",
		OutputDir:     "out",
		ListenAddr:    ":8075",
		LogLevel:      "info",
		WatchInterval: "2s",
	}
}

// Load reads the configuration file at path, falling back to defaults when
// path is empty and no stk.yaml exists in the working directory. Environment
// overrides apply last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("stk.yaml"); err == nil {
			path = "stk.yaml"
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Environment variables overriding the file values.
const (
	EnvExtractor = "STK_EXTRACTOR"
	EnvDB        = "STK_DB"
	EnvOutputDir = "STK_OUTPUT_DIR"
	EnvRedis     = "STK_REDIS_ADDR"
	EnvListen    = "STK_LISTEN_ADDR"
	EnvLogLevel  = "STK_LOG_LEVEL"
	EnvLogFile   = "STK_LOG_FILE"
)

func (c *Config) applyEnv() {
	for _, e := range []struct {
		key string
		dst *string
	}{
		{EnvExtractor, &c.ExtractorPath},
		{EnvDB, &c.DBPath},
		{EnvOutputDir, &c.OutputDir},
		{EnvRedis, &c.RedisAddr},
		{EnvListen, &c.ListenAddr},
		{EnvLogLevel, &c.LogLevel},
		{EnvLogFile, &c.LogFile},
	} {
		if v, ok := os.LookupEnv(e.key); ok {
			*e.dst = v
		}
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.ExtractorPath == "" {
		return fmt.Errorf("extractor_path must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.WatchInterval != "" {
		if _, err := time.ParseDuration(c.WatchInterval); err != nil {
			return fmt.Errorf("invalid watch_interval %q: %w", c.WatchInterval, err)
		}
	}
	for name, sig := range map[string]canlog.Signal{
		"speed":    c.CAN.Speed,
		"accel":    c.CAN.Accel,
		"yaw_rate": c.CAN.YawRate,
	} {
		if sig.ID != 0 && (sig.Byte < 0 || sig.Byte > 6) {
			return fmt.Errorf("can.%s byte offset %d out of range", name, sig.Byte)
		}
	}
	return nil
}

// WatchEvery returns the parsed watch debounce interval, falling back to
// the default when unset.
func (c Config) WatchEvery() time.Duration {
	if c.WatchInterval == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.WatchInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// PlotDir returns the plot artifact directory under OutputDir.
func (c Config) PlotDir() string { return filepath.Join(c.OutputDir, "plots") }

// ReportDir returns the report artifact directory under OutputDir.
func (c Config) ReportDir() string { return filepath.Join(c.OutputDir, "reports") }

// ExtractDir returns the extraction output directory under OutputDir.
func (c Config) ExtractDir() string { return filepath.Join(c.OutputDir, "extract") }

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Environment variables that override the config file.
const (
	EnvDBPath          = "REELCUT_DB_PATH"
	EnvAddr            = "REELCUT_ADDR"
	EnvTargetWidth     = "REELCUT_TARGET_WIDTH"
	EnvLogLevel        = "REELCUT_LOG_LEVEL"
	EnvMaxStockOverrun = "REELCUT_MAX_STOCK_OVERRUN"
	EnvEvolve          = "REELCUT_EVOLVE"
)

// Config holds application-wide preferences and optimizer defaults.
type Config struct {
	DBPath   string `json:"db_path"`
	Addr     string `json:"addr"`
	LogLevel string `json:"log_level"` // "debug", "info", "warn", "error"

	TargetWidth     float64 `json:"target_width"`
	Epsilon         float64 `json:"epsilon"`
	MaxStockOverrun float64 `json:"max_stock_overrun"`
	Parallel        bool    `json:"parallel"`
	Evolve          bool    `json:"evolve"`

	// Candidate set widths tried by "reelcut compare" when --widths is not given.
	CompareWidths []float64 `json:"compare_widths"`
}

// DefaultDir returns the directory for application configuration, ~/.reelcut.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reelcut")
}

// DefaultPath returns the default path for the config file.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

// Default returns a Config populated from model.DefaultSettings.
func Default() Config {
	s := model.DefaultSettings()
	return Config{
		DBPath:          filepath.Join(DefaultDir(), "reelcut.db"),
		Addr:            ":8080",
		LogLevel:        "info",
		TargetWidth:     s.TargetWidth,
		Epsilon:         s.Epsilon,
		MaxStockOverrun: s.MaxStockOverrun,
		Parallel:        s.Parallel,
		Evolve:          s.Evolve,
		CompareWidths:   []float64{110, 118, 126},
	}
}

// Settings returns the optimizer settings described by the config.
func (c Config) Settings() model.Settings {
	return model.Settings{
		TargetWidth:     c.TargetWidth,
		Epsilon:         c.Epsilon,
		MaxStockOverrun: c.MaxStockOverrun,
		Parallel:        c.Parallel,
		Evolve:          c.Evolve,
	}.Normalized()
}

// Save persists a Config to path as JSON, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFile reads a Config from path. A missing file yields Default with no
// error. Fields absent from the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.CompareWidths == nil {
		cfg.CompareWidths = []float64{}
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the JSON file at
// path, then a .env file in the working directory, then the process
// environment. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvTargetWidth); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%s: invalid width %q", EnvTargetWidth, v)
		}
		c.TargetWidth = f
	}
	if v := os.Getenv(EnvMaxStockOverrun); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%s: invalid width %q", EnvMaxStockOverrun, v)
		}
		c.MaxStockOverrun = f
	}
	if v := os.Getenv(EnvEvolve); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvEvolve, v)
		}
		c.Evolve = b
	}
	return nil
}

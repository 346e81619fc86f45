// Package config loads application configuration from an optional TOML
// file with ROTSCAN_* environment variable overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Port   int    `toml:"port"`
	DBPath string `toml:"db_path"`
	Scan   Scan   `toml:"scan"`
}

// Scan holds the defaults applied to scans that do not override them.
type Scan struct {
	Algorithm       string   `toml:"algorithm"`
	Workers         int      `toml:"workers"`
	ExcludeDirs     []string `toml:"exclude_dirs"`
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:   8080,
		DBPath: "./data/rotscan.db",
		Scan: Scan{
			Algorithm: "sha256",
			Workers:   4,
		},
	}
}

// Load builds the effective configuration: defaults, then the TOML file
// at path (if it exists), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := cfg.read(f); err != nil {
				return nil, fmt.Errorf("reading config from %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) read(r io.Reader) error {
	if _, err := toml.NewDecoder(r).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("ROTSCAN_PORT", c.Port)
	c.DBPath = getEnv("ROTSCAN_DB_PATH", c.DBPath)
	c.Scan.Algorithm = getEnv("ROTSCAN_ALGORITHM", c.Scan.Algorithm)
	c.Scan.Workers = getEnvInt("ROTSCAN_WORKERS", c.Scan.Workers)

	if dirs := getEnv("ROTSCAN_EXCLUDE_DIRS", ""); dirs != "" {
		c.Scan.ExcludeDirs = splitList(dirs)
	}
	if patterns := getEnv("ROTSCAN_EXCLUDE_PATTERNS", ""); patterns != "" {
		c.Scan.ExcludePatterns = splitList(patterns)
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

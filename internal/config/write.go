package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const fileHeader = `# dlwatch configuration
#
# Every key is optional. Environment variables (DLWATCH_WATCH_DIR,
# DLWATCH_LOG_FILE, ...) and command-line flags take precedence.
# Durations use Go syntax: "500ms", "2s", "1m".

`

// fileConfig mirrors Config with durations as strings so the TOML output
// reads "500ms" rather than a nanosecond count.
type fileConfig struct {
	WatchDir     string        `toml:"watch_dir"`
	TargetDir    string        `toml:"target_dir"`
	Suffix       string        `toml:"suffix"`
	SettleDelay  string        `toml:"settle_delay"`
	SeenLimit    int           `toml:"seen_limit"`
	PollInterval string        `toml:"poll_interval"`
	Log          LogConfig     `toml:"log"`
	History      HistoryConfig `toml:"history"`
}

// Encode renders c as a commented TOML document.
func (c *Config) Encode() ([]byte, error) {
	fc := fileConfig{
		WatchDir:     c.WatchDir,
		TargetDir:    c.TargetDir,
		Suffix:       c.Suffix,
		SettleDelay:  c.SettleDelay.String(),
		SeenLimit:    c.SeenLimit,
		PollInterval: c.PollInterval.String(),
		Log:          c.Log,
		History:      c.History,
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes the config to TOML at path, creating parent directories.
// An existing file is only replaced when overwrite is true.
func (c *Config) Write(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := c.Encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Package config resolves dlwatch configuration from defaults, an optional
// TOML file, DLWATCH_* environment variables, and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. DLWATCH_WATCH_DIR.
const EnvPrefix = "DLWATCH"

// Config is the effective configuration of a dlwatch run.
type Config struct {
	WatchDir     string        `mapstructure:"watch_dir" yaml:"watch_dir"`
	TargetDir    string        `mapstructure:"target_dir" yaml:"target_dir"`
	Suffix       string        `mapstructure:"suffix" yaml:"suffix"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SeenLimit    int           `mapstructure:"seen_limit" yaml:"seen_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
	History      HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LogConfig controls console and file logging.
type LogConfig struct {
	Quiet      bool   `mapstructure:"quiet" yaml:"quiet" toml:"quiet"`
	File       string `mapstructure:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" toml:"compress"`
}

// HistoryConfig controls the optional relocation ledger.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" toml:"path"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"watch-dir":     "watch_dir",
	"target-dir":    "target_dir",
	"suffix":        "suffix",
	"settle-delay":  "settle_delay",
	"seen-limit":    "seen_limit",
	"poll-interval": "poll_interval",
	"quiet":         "log.quiet",
	"log-file":      "log.file",
	"history":       "history.enabled",
	"history-path":  "history.path",
}

// DownloadsDir returns ~/Downloads. Every supported OS uses the same
// home-relative location.
func DownloadsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

// DefaultTargetDir returns <workspace>/public/data, where <workspace> is the
// parent of the directory holding the running executable.
func DefaultTargetDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return TargetDirFor(exe), nil
}

// TargetDirFor returns the default target directory for an executable path.
func TargetDirFor(exe string) string {
	workspace := filepath.Dir(filepath.Dir(exe))
	return filepath.Join(workspace, "public", "data")
}

// Dir returns the per-user dlwatch configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "dlwatch"), nil
}

// DefaultPath returns the config file read when --config is not given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultHistoryPath returns the default ledger location.
func DefaultHistoryPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// DefaultLockPath returns the lock file that keeps a second watcher from
// starting.
func DefaultLockPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dlwatch.lock"), nil
}

// SetDefaults registers every default on v. Path defaults that cannot be
// resolved are left empty and reported by Validate.
func SetDefaults(v *viper.Viper) {
	watchDir, _ := DownloadsDir()
	v.SetDefault("watch_dir", watchDir)
	targetDir, _ := DefaultTargetDir()
	v.SetDefault("target_dir", targetDir)
	v.SetDefault("suffix", ".data.json")
	v.SetDefault("settle_delay", 500*time.Millisecond)
	v.SetDefault("seen_limit", 1000)
	v.SetDefault("poll_interval", time.Duration(0))

	v.SetDefault("log.quiet", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("history.enabled", false)
	historyPath, _ := DefaultHistoryPath()
	v.SetDefault("history.path", historyPath)
}

// BindFlags binds the known flags present in fs to their configuration keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads configuration into a Config. If configFile is empty, the
// default config file is read when it exists; a missing default is not an
// error. v should already have defaults set and flags bound.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else if path, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	var err error
	if c.WatchDir, err = expandPath(c.WatchDir); err != nil {
		return err
	}
	if c.TargetDir, err = expandPath(c.TargetDir); err != nil {
		return err
	}
	if c.Log.File, err = expandPath(c.Log.File); err != nil {
		return err
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error
	if c.WatchDir == "" {
		errs = append(errs, errors.New("watch_dir is not set and no home directory could be resolved"))
	}
	if c.TargetDir == "" {
		errs = append(errs, errors.New("target_dir is not set"))
	}
	if c.WatchDir != "" && c.WatchDir == c.TargetDir {
		errs = append(errs, fmt.Errorf("watch_dir and target_dir must differ (%s)", c.WatchDir))
	}
	if c.Suffix == "" {
		errs = append(errs, errors.New("suffix cannot be empty"))
	}
	if strings.ContainsAny(c.Suffix, `/\`) {
		errs = append(errs, fmt.Errorf("suffix %q cannot contain a path separator", c.Suffix))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("settle_delay cannot be negative"))
	}
	if c.SeenLimit < 0 {
		errs = append(errs, errors.New("seen_limit cannot be negative"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll_interval cannot be negative"))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// expandPath expands a leading ~ and makes path absolute. Empty stays empty.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/steveyegge/dlwatch/internal/config"
	"github.com/steveyegge/dlwatch/internal/logging"
	"github.com/steveyegge/dlwatch/internal/relocate"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "dlwatch",
	Short: "Move downloaded data files into a site's data directory",
	Long: `dlwatch watches your downloads directory for files ending in .data.json,
copies each one into the target data directory and deletes the original.

Files already present when dlwatch starts are moved by an initial sweep.
After that, new and modified files are moved as soon as they settle.

Running dlwatch without a subcommand is the same as 'dlwatch watch'.

Defaults:
  Watched directory: ~/Downloads
  Target directory:  <workspace>/public/data (next to the executable's directory)

Configuration is read from, in increasing order of precedence: built-in
defaults, the config file, DLWATCH_* environment variables, and flags.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run:           runWatch,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Relocation:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: <user config dir>/dlwatch/config.toml)")
	pf.String("watch-dir", "", "directory to watch (default: ~/Downloads)")
	pf.String("target-dir", "", "directory files are moved to (default: <workspace>/public/data)")
	pf.String("suffix", relocate.DefaultSuffix, "filename suffix of files to move")
	pf.Duration("settle-delay", relocate.DefaultConfig().SettleDelay, "wait after a notification before copying")
	pf.Int("seen-limit", relocate.DefaultConfig().SeenLimit, "seen-set size above which it is cleared (0 = never)")
	pf.Duration("poll-interval", 0, "also rescan the watched directory at this interval (0 = disabled)")
	pf.String("log-file", "", "also write logs to this rotating file")
	pf.Bool("quiet", false, "suppress console logging")
	pf.Bool("history", false, "record relocations in the history database")
	pf.String("history-path", "", "history database path (default: <user config dir>/dlwatch/history.db)")
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v, configFile)
}

// mustLoadConfig is loadConfig for Run functions.
func mustLoadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func logOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Quiet:      cfg.Log.Quiet,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/dlwatch/internal/config"
	"github.com/steveyegge/dlwatch/internal/ui"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "config",
	Short:   "Show or create the dlwatch configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration dlwatch would run with, after applying the
config file, DLWATCH_* environment variables and flags, as YAML.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(cmd)

		out, err := yaml.Marshal(newConfigView(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to render config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}

// configView is Config with durations rendered as "500ms" rather than
// nanosecond counts.
type configView struct {
	WatchDir     string               `yaml:"watch_dir"`
	TargetDir    string               `yaml:"target_dir"`
	Suffix       string               `yaml:"suffix"`
	SettleDelay  string               `yaml:"settle_delay"`
	SeenLimit    int                  `yaml:"seen_limit"`
	PollInterval string               `yaml:"poll_interval"`
	Log          config.LogConfig     `yaml:"log"`
	History      config.HistoryConfig `yaml:"history"`
}

func newConfigView(cfg *config.Config) configView {
	return configView{
		WatchDir:     cfg.WatchDir,
		TargetDir:    cfg.TargetDir,
		Suffix:       cfg.Suffix,
		SettleDelay:  cfg.SettleDelay.String(),
		SeenLimit:    cfg.SeenLimit,
		PollInterval: cfg.PollInterval.String(),
		Log:          cfg.Log,
		History:      cfg.History,
	}
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the current settings",
	Long: `Write the effective configuration to a TOML file.

Without a path the file is written to the default location, which dlwatch
reads automatically on every run. An existing file is left untouched unless
--force is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		cfg := mustLoadConfig(cmd)

		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			var err error
			path, err = config.DefaultPath()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := cfg.Write(path, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if !force {
				fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
			}
			os.Exit(1)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

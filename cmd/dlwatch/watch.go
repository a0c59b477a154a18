package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/dlwatch/internal/config"
	"github.com/steveyegge/dlwatch/internal/daemon"
	"github.com/steveyegge/dlwatch/internal/history"
	"github.com/steveyegge/dlwatch/internal/logging"
	"github.com/steveyegge/dlwatch/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "run",
	Short:   "Sweep the downloads directory, then move new files as they arrive",
	Long: `Run the relocator in the foreground.

The watcher will:
  1. Create the target directory if needed
  2. Move every matching file already in the watched directory
  3. Watch for new or modified matching files and move each one
     after the settle delay
  4. Optionally rescan every --poll-interval for missed notifications

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(cmd)

	sink := logging.NewSink(logOptions(cfg))
	defer sink.Close()

	daemonConfig := &daemon.Config{
		Suffix:       cfg.Suffix,
		SettleDelay:  cfg.SettleDelay,
		SeenLimit:    cfg.SeenLimit,
		PollInterval: cfg.PollInterval,
		Logger:       sink.Logger("daemon"),
	}
	if lockPath, err := config.DefaultLockPath(); err == nil {
		daemonConfig.LockPath = lockPath
	}

	var ledger *history.DB
	if cfg.History.Enabled {
		var err error
		ledger, err = openHistory(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()
		daemonConfig.Recorder = ledger
	}

	d, err := daemon.NewWithConfig(cfg.WatchDir, cfg.TargetDir, daemonConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Watching: %s\n", ui.RenderAccent("👀"), d.WatchDir())
	fmt.Printf("   Moving '%s' files to: %s\n", cfg.Suffix, d.TargetDir())
	if ledger != nil {
		fmt.Printf("   History: %s\n", ledger.Path())
	}
	fmt.Printf("\n%s\n\n", ui.RenderMuted("Press Ctrl+C to stop."))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start blocks until ctx is cancelled
	if err := d.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fmt.Fprintf(os.Stderr, "Stop the other instance first\n")
		}
		os.Exit(1)
	}

	stats := d.Stats()
	fmt.Printf("\n%s Stopped. Moved %d file(s)", ui.RenderPass("✓"), stats.Relocated)
	if stats.Failed > 0 {
		fmt.Printf(", %s", ui.RenderFail(fmt.Sprintf("%d failed", stats.Failed)))
	}
	fmt.Println()
}

// openHistory opens the ledger at cfg.History.Path and ensures its schema.
func openHistory(cfg *config.Config) (*history.DB, error) {
	ledger, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := ledger.InitSchema(); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	return ledger, nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/dlwatch/internal/logging"
	"github.com/steveyegge/dlwatch/internal/relocate"
	"github.com/steveyegge/dlwatch/internal/ui"
)

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	GroupID: "run",
	Short:   "Move matching files once and exit",
	Long: `Move every matching file currently in the watched directory, then exit.

This is the startup sweep of 'dlwatch watch' without the watcher. Files are
moved immediately (no settle delay). The exit code is 1 if the directory
cannot be read or any file failed to move.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(cmd)

		sink := logging.NewSink(logOptions(cfg))
		defer sink.Close()

		relocateConfig := &relocate.Config{
			Suffix:    cfg.Suffix,
			SeenLimit: cfg.SeenLimit,
			Logger:    sink.Logger("relocate"),
		}
		if cfg.History.Enabled {
			ledger, err := openHistory(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer ledger.Close()
			relocateConfig.Recorder = ledger
		}

		relocator, err := relocate.NewWithConfig(cfg.TargetDir, relocateConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Sweeping %s...\n", ui.RenderAccent("🔄"), cfg.WatchDir)
		start := time.Now()

		summary, err := relocator.Sweep(ctx, cfg.WatchDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Sweep complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Scanned: %d\n", summary.Scanned)
		fmt.Printf("   Moved: %d\n", summary.Relocated)
		fmt.Printf("   Skipped: %d\n", summary.Skipped)
		if summary.Failed > 0 {
			fmt.Printf("   Failed: %s\n", ui.RenderFail(fmt.Sprintf("%d", summary.Failed)))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

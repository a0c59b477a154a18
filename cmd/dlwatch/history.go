package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dlwatch/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "run",
	Short:   "List recent relocations",
	Long: `List relocations recorded in the history database, newest first.

Relocations are only recorded while history is enabled (--history, or
history.enabled = true in the config file).

--since takes natural language: "yesterday", "3 hours ago", "last monday".`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		sinceText, _ := cmd.Flags().GetString("since")
		cfg := mustLoadConfig(cmd)

		var since time.Time
		if sinceText != "" {
			var err error
			since, err = parseSince(sinceText, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
			fmt.Printf("\n%s No history recorded yet\n", ui.RenderWarn("⚠"))
			fmt.Printf("   %s\n\n", ui.RenderMuted("Run 'dlwatch --history' to start recording"))
			return
		}

		ledger, err := openHistory(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()

		ctx := context.Background()
		entries, err := ledger.RecentSince(ctx, since, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}
		total, err := ledger.Count(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting history: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Relocation history (%d of %d)\n\n", ui.RenderAccent("📊"), len(entries), total)
		if len(entries) == 0 {
			return
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.RelocatedAt.Local().Format("2006-01-02 15:04:05"),
				filepath.Base(e.Source),
				e.Target,
				formatSize(e.Size),
				e.Trigger,
			})
		}
		fmt.Println(renderTable([]string{"Moved", "File", "Target", "Size", "Trigger"}, rows, 3))
		fmt.Println()
	},
}

// parseSince resolves a --since value such as "yesterday", "3 hours ago" or
// "last monday" relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: no date or time found", text)
	}
	return r.Time, nil
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show (0 = all)")
	historyCmd.Flags().String("since", "", `only show relocations after this time (e.g. "yesterday", "2 hours ago")`)
	rootCmd.AddCommand(historyCmd)
}

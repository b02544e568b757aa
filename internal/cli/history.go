package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fair-price-alerts/internal/app"
)

var (
	historyLimit int
	historyPrune time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent alerts from the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if historyPrune < 0 {
			return fmt.Errorf("--prune-older-than cannot be negative")
		}

		opts := app.HistoryOptions{
			Limit:          historyLimit,
			PruneOlderThan: historyPrune,
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of alerts to display")
	historyCmd.Flags().DurationVar(&historyPrune, "prune-older-than", 0, "Delete alerts older than this before listing, e.g. 720h")
}

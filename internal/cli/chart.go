package cli

import (
	"github.com/spf13/cobra"

	"fair-price-alerts/internal/app"
)

var (
	chartInterval string
	chartLimit    int
	chartOutput   string
	chartLast     float64
	chartFair     float64
)

var chartCmd = &cobra.Command{
	Use:   "chart SYMBOL",
	Short: "Render the alert chart for one contract to a PNG file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ChartOptions{
			Symbol:   args[0],
			Interval: chartInterval,
			Limit:    chartLimit,
			Output:   chartOutput,
			Last:     chartLast,
			Fair:     chartFair,
		}
		return getApp().Chart(cmd.Context(), opts)
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartInterval, "interval", "", "Candle interval (defaults to config)")
	chartCmd.Flags().IntVar(&chartLimit, "limit", 0, "Number of candles (defaults to config)")
	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "Output path (defaults to <symbol>.png)")
	chartCmd.Flags().Float64Var(&chartLast, "last", 0, "Last price line (defaults to live ticker)")
	chartCmd.Flags().Float64Var(&chartFair, "fair", 0, "Fair price line (defaults to live ticker)")
}

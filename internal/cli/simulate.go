package cli

import (
	"github.com/spf13/cobra"

	"fair-price-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次 last/fair 价格偏差并推送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "BTC_USDT", "合约符号")
	simulateCmd.Flags().Float64Var(&simulateOpts.Last, "last", 0, "最新成交价")
	simulateCmd.Flags().Float64Var(&simulateOpts.Fair, "fair", 0, "合理价格")
	simulateCmd.Flags().Float64Var(&simulateOpts.Volume, "volume", 0, "24h 成交额 (USDT)")
	simulateCmd.Flags().BoolVar(&simulateOpts.WithChart, "chart", false, "拉取真实K线并附带图表")
}

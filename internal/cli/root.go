package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fair-price-alerts/internal/app"
	"fair-price-alerts/internal/config"
	"fair-price-alerts/internal/logging"
	"fair-price-alerts/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	threshold float64
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "fairwatch",
	Short:         "Alert on MEXC futures last/fair price divergence",
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := applyOverrides(cmd, cfg); err != nil {
			return err
		}

		appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
		return nil
	},
}

// applyOverrides lets command-line flags win over file and environment values.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Monitor.ThresholdPct = threshold
		return cfg.Validate()
	}
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if config.IsConfigError(err) {
			fmt.Fprintln(os.Stderr, "configuration error:", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file (default ./config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	flags.StringVar(&logFormat, "log-format", "", "Override log format: console or json")
	flags.Float64Var(&threshold, "threshold", 0, "Override monitor.threshold_pct (absolute deviation in percent)")

	rootCmd.AddCommand(runCmd, chartCmd, exportCmd, historyCmd, versionCmd, simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

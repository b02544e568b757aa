package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fair-price-alerts/internal/app"
)

var (
	exportFrom  string
	exportTo    string
	exportSince time.Duration
	exportOpts  app.ExportOptions
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the alert log as CSV and/or a deviation chart",
	Example: `  fairwatch export --since 24h --csv alerts.csv
  fairwatch export --from 2025-03-01T00:00:00Z --symbol BTC --png btc.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := exportOpts

		to, err := parseTimestampFlag("to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		switch {
		case exportSince > 0 && exportFrom != "":
			return fmt.Errorf("--since and --from are mutually exclusive")
		case exportSince > 0:
			end := time.Now().UTC()
			if to != nil {
				end = *to
			}
			from := end.Add(-exportSince)
			opts.From = &from
		default:
			if opts.From, err = parseTimestampFlag("from", exportFrom); err != nil {
				return err
			}
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimestampFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &ts, nil
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive; default 7 days before --to)")
	flags.StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive; default now)")
	flags.DurationVar(&exportSince, "since", 0, "Window length ending at --to, instead of --from")
	flags.StringVar(&exportOpts.Symbol, "symbol", "", "Only alerts whose contract contains this text")
	flags.StringVar(&exportOpts.PNGPath, "png", "", "Path to write the deviation chart")
	flags.StringVar(&exportOpts.CSVPath, "csv", "", "Path to write CSV rows")
	flags.IntVar(&exportOpts.MaxPoints, "max-points", 500, "Maximum alerts drawn in the PNG")
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"fair-price-alerts/internal/storage"
)

// History prints recent alerts from the audit log and optionally prunes old rows.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alert history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.PruneOlderThan > 0 {
		cutoff := time.Now().UTC().Add(-opts.PruneOlderThan)
		deleted, err := store.DeleteAlertsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		a.Logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned alert history")
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}
	return printAlerts(os.Stdout, alerts, total)
}

func printAlerts(w io.Writer, alerts []storage.AlertRecord, total int64) error {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tDirection\tDeviation%\tLast\tFair\tVolume 24h\tDelivery\tError")

	for _, alert := range alerts {
		errMsg := ""
		if alert.Error != nil {
			errMsg = sanitizeInline(*alert.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.AlertTS.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.Direction,
			alert.DeviationPct.StringFixed(2),
			alert.LastPrice.String(),
			alert.FairPrice.String(),
			alert.Volume24.StringFixed(0),
			alert.Delivery,
			errMsg,
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "showing %d of %d alerts\n", len(alerts), total)
	return err
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fair-price-alerts/internal/storage"
)

const defaultExportWindow = 7 * 24 * time.Hour

var csvHeader = []string{
	"alert_ts", "symbol", "direction", "deviation_pct", "last_price",
	"fair_price", "volume_24h", "delivery", "error",
}

// Export writes the alert log window as CSV and/or a deviation PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	alerts = filterBySymbol(alerts, opts.Symbol)
	if len(alerts) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Str("symbol", opts.Symbol).Msg("no alerts in export window")
		return nil
	}

	byDelivery := make(map[storage.Delivery]int)
	for _, alert := range alerts {
		byDelivery[alert.Delivery]++
	}
	a.Logger.Info().
		Int("total", len(alerts)).
		Int("photo", byDelivery[storage.DeliveryPhoto]).
		Int("text", byDelivery[storage.DeliveryText]).
		Int("failed", byDelivery[storage.DeliveryFailed]).
		Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, alerts); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := downsample(alerts, opts.MaxPoints)
		if len(points) < 2 {
			a.Logger.Warn().Msg("need at least two alerts to draw a chart; skipping png")
			return nil
		}
		if err := writeAlertsPNG(opts.PNGPath, points, a.Config.Monitor.ThresholdPct); err != nil {
			return err
		}
	}
	return nil
}

func filterBySymbol(alerts []storage.AlertRecord, symbol string) []storage.AlertRecord {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return alerts
	}
	kept := alerts[:0:0]
	for _, alert := range alerts {
		if strings.Contains(alert.Symbol, symbol) {
			kept = append(kept, alert)
		}
	}
	return kept
}

// downsample picks max evenly spaced items, always keeping the first and last.
func downsample[T any](items []T, max int) []T {
	if max <= 1 || len(items) <= max {
		return items
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := min(int(math.Round(step*float64(i))), len(items)-1)
		result = append(result, items[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	file, err := createOutput(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return encodeAlertsCSV(file, alerts)
}

func encodeAlertsCSV(w io.Writer, alerts []storage.AlertRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, alert := range alerts {
		errMsg := ""
		if alert.Error != nil {
			errMsg = *alert.Error
		}
		if err := writer.Write([]string{
			alert.AlertTS.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.Direction,
			alert.DeviationPct.StringFixed(2),
			alert.LastPrice.String(),
			alert.FairPrice.String(),
			alert.Volume24.String(),
			string(alert.Delivery),
			errMsg,
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeAlertsPNG plots signed deviation per alert with the ±threshold band.
func writeAlertsPNG(path string, alerts []storage.AlertRecord, threshold float64) error {
	file, err := createOutput(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return chartAlerts(alerts, threshold).Render(chart.PNG, file)
}

func chartAlerts(alerts []storage.AlertRecord, threshold float64) *chart.Chart {
	x := make([]time.Time, len(alerts))
	deviation := make([]float64, len(alerts))
	for i, alert := range alerts {
		x[i] = alert.AlertTS
		deviation[i] = alert.DeviationPct.InexactFloat64()
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Deviation %",
			XValues: x,
			YValues: deviation,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("3b82f6"),
				StrokeWidth: 1,
				DotColor:    drawing.ColorFromHex("1d4ed8"),
				DotWidth:    3,
			},
		},
	}
	if threshold > 0 {
		edges := []time.Time{x[0], x[len(x)-1]}
		band := chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"),
			StrokeWidth:     1,
			StrokeDashArray: []float64{4, 4},
		}
		series = append(series,
			chart.TimeSeries{Name: "+threshold", XValues: edges, YValues: []float64{threshold, threshold}, Style: band},
			chart.TimeSeries{Name: "-threshold", XValues: edges, YValues: []float64{-threshold, -threshold}, Style: band},
		)
	}

	graph := &chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Deviation (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%+.2f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(graph)}
	return graph
}

func createOutput(path string) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"fair-price-alerts/internal/market"
)

// Chart fetches recent candles for one contract and writes the alert chart to disk.
func (a *App) Chart(ctx context.Context, opts ChartOptions) error {
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if opts.Interval == "" {
		opts.Interval = a.Config.Chart.Interval
	}
	if opts.Limit <= 0 {
		opts.Limit = a.Config.Chart.Limit
	}
	if opts.Output == "" {
		opts.Output = strings.ToLower(symbol) + ".png"
	}

	client := a.newMarketClient()

	last, fair := opts.Last, opts.Fair
	if last <= 0 || fair <= 0 {
		t, err := lookupTicker(ctx, client, symbol)
		if err != nil {
			return err
		}
		if last <= 0 {
			last = t.LastPrice.InexactFloat64()
		}
		if fair <= 0 {
			fair = t.FairPrice.InexactFloat64()
		}
	}

	candles, err := client.GetCandles(ctx, symbol, opts.Interval, opts.Limit)
	if err != nil {
		return err
	}

	img, err := a.newRenderer().Render(symbol, candles, last, fair)
	if err != nil {
		return err
	}

	if err := ensureDir(opts.Output); err != nil {
		return err
	}
	if err := os.WriteFile(opts.Output, img, 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}

	a.Logger.Info().
		Str("symbol", symbol).
		Int("candles", len(candles)).
		Str("path", opts.Output).
		Msg("chart written")
	return nil
}

func lookupTicker(ctx context.Context, source market.TickerSource, symbol string) (market.Ticker, error) {
	tickers, err := source.ListTickers(ctx)
	if err != nil {
		return market.Ticker{}, err
	}
	for _, t := range tickers {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return market.Ticker{}, fmt.Errorf("symbol %s not found in ticker list", symbol)
}

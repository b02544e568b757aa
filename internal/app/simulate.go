package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/divergence"
	"fair-price-alerts/internal/market"
	"fair-price-alerts/internal/notify"
	"fair-price-alerts/internal/service"
)

// SimulateAlert 用给定的 last/fair 价格构造一个合成 ticker，走一遍完整的告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	return a.simulate(ctx, opts, notifier)
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions, notifier notify.Notifier) error {
	if opts.Last <= 0 || opts.Fair <= 0 {
		return errors.New("--last 与 --fair 必须大于 0")
	}
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		symbol = "BTC_USDT"
	}

	ticker := market.Ticker{
		Symbol:    symbol,
		LastPrice: decimal.NewFromFloat(opts.Last),
		FairPrice: decimal.NewFromFloat(opts.Fair),
		Volume24:  decimal.NewFromFloat(opts.Volume),
	}

	verdict := divergence.Evaluator{}.Evaluate(ticker)
	a.Logger.Info().
		Str("symbol", symbol).
		Str("deviation_pct", verdict.Deviation.StringFixed(2)).
		Str("direction", string(verdict.Direction())).
		Msg("simulated ticker")

	deps := service.Deps{
		Tickers:  &staticTickers{tickers: []market.Ticker{ticker}},
		Notifier: notifier,
	}
	if opts.WithChart {
		deps.Candles = a.newMarketClient()
		deps.Renderer = a.newRenderer()
	}

	cfg := *a.Config
	cfg.Monitor.SymbolFilter = ""
	cfg.Monitor.MinVolume = 0
	cfg.Chart.Enabled = opts.WithChart

	svc := service.New(&cfg, deps, a.Logger)
	if err := svc.Startup(ctx); err != nil {
		return err
	}
	if err := svc.RunCycle(ctx, 1); err != nil {
		return err
	}

	if svc.Stats().Alerts == 0 {
		return fmt.Errorf("deviation %s%% is below the %.2f%% threshold; nothing sent",
			verdict.Deviation.StringFixed(2), cfg.Monitor.ThresholdPct)
	}
	return nil
}

type staticTickers struct {
	tickers []market.Ticker
}

func (s *staticTickers) ListTickers(ctx context.Context) ([]market.Ticker, error) {
	return s.tickers, nil
}

var _ market.TickerSource = (*staticTickers)(nil)

package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fair-price-alerts/internal/chart"
	"fair-price-alerts/internal/config"
	"fair-price-alerts/internal/market"
	"fair-price-alerts/internal/notify"
	"fair-price-alerts/internal/scheduler"
	"fair-price-alerts/internal/service"
	"fair-price-alerts/internal/storage"
	"fair-price-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarketClient() *market.Client {
	return market.NewClient(market.ClientOptions{
		TickerURL:        a.Config.MEXC.TickerURL,
		SpotKlineURL:     a.Config.MEXC.SpotKlineURL,
		ContractKlineURL: a.Config.MEXC.ContractKlineURL,
		RequestTimeout:   a.Config.MEXC.RequestTimeout,
		CandleTimeout:    a.Config.MEXC.CandleTimeout,
		UserAgent:        a.Config.MEXC.UserAgent,
	}, a.Logger)
}

func (a *App) newRenderer() *chart.Renderer {
	offset := a.Config.Alerting.UTCOffset
	return chart.NewRenderer(chart.Options{
		Width:    a.Config.Chart.Width,
		Height:   a.Config.Chart.Height,
		Location: time.FixedZone("", int(offset/time.Second)),
	})
}

func (a *App) newNotifier() (*notify.TelegramNotifier, error) {
	if err := a.Config.ValidateTelegram(); err != nil {
		return nil, err
	}
	if err := notify.InstallBotLogger(a.Logger); err != nil {
		a.Logger.Warn().Err(err).Msg("keeping default telegram library logger")
	}

	tg := a.Config.Alerting.Telegram
	return notify.NewTelegramNotifier(notify.TelegramOptions{
		BotToken:       tg.BotToken,
		ChatID:         tg.ChatID,
		APIBase:        tg.APIBase,
		ParseMode:      tg.ParseMode,
		PhotoTimeout:   tg.PhotoTimeout,
		TextTimeout:    tg.TextTimeout,
		ChannelLabel:   a.Config.Alerting.ChannelLabel,
		ChannelURL:     a.Config.Alerting.ChannelURL,
		ExchangeLabel:  a.Config.Alerting.ExchangeLabel,
		ExchangeURLFmt: a.Config.Alerting.ExchangeURLFmt,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		StartupDelay: a.Config.Monitor.StartupDelay,
	}, a.Logger)

	client := a.newMarketClient()
	deps := service.Deps{
		Scheduler: sched,
		Tickers:   client,
		Candles:   client,
		Renderer:  a.newRenderer(),
		Notifier:  notifier,
	}
	if store != nil {
		deps.Alerts = store
		deps.Locker = store
	}

	svc := service.New(a.Config, deps, a.Logger)
	a.logBanner()

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) logBanner() {
	mon := a.Config.Monitor
	event := a.Logger.Info().
		Str("version", version.Short()).
		Float64("threshold_pct", mon.ThresholdPct).
		Dur("cooldown", mon.Cooldown).
		Dur("interval", mon.Interval)

	if mon.MinVolume == 0 {
		event = event.Str("min_volume", "disabled")
	} else {
		event = event.Float64("min_volume", mon.MinVolume)
	}
	if mon.SymbolFilter == "" {
		event = event.Str("symbol_filter", "all")
	} else {
		event = event.Str("symbol_filter", mon.SymbolFilter)
	}
	event.Msg("starting fair price monitor")
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	Symbol   string
	Interval string
	Limit    int
	Output   string
	// Last and Fair override the reference lines; zero looks them up.
	Last float64
	Fair float64
}

// ExportOptions hold parameters for exporting the alert log.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Symbol    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
	// PruneOlderThan deletes rows older than now minus this, when positive.
	PruneOlderThan time.Duration
}

// SimulateOptions describe a synthetic ticker for simulate-alert.
type SimulateOptions struct {
	Symbol    string
	Last      float64
	Fair      float64
	Volume    float64
	WithChart bool
}

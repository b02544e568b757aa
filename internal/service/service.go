package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"fair-price-alerts/internal/alertstate"
	"fair-price-alerts/internal/config"
	"fair-price-alerts/internal/divergence"
	"fair-price-alerts/internal/market"
	"fair-price-alerts/internal/notify"
	"fair-price-alerts/internal/scheduler"
	"fair-price-alerts/internal/storage"
)

var (
	// ErrNoTickers means the startup fetch produced no contracts to watch.
	ErrNoTickers = errors.New("service: no tickers on initial fetch")
	// ErrLockHeld means another instance holds the advisory lock.
	ErrLockHeld = errors.New("service: another instance holds the advisory lock")

	errChartDisabled = errors.New("chart disabled")
)

// ChartRenderer turns candles into an image.
type ChartRenderer interface {
	Render(symbol string, candles []market.Candle, last, fair float64) ([]byte, error)
}

// Deps are the collaborators the service drives. Candles, Renderer, Alerts and
// Locker are optional.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Tickers   market.TickerSource
	Candles   market.CandleSource
	Renderer  ChartRenderer
	Notifier  notify.Notifier
	Alerts    storage.AlertStore
	Locker    storage.AdvisoryLocker
}

// Stats summarises a run.
type Stats struct {
	Cycles    int
	Alerts    int
	Delivered map[storage.Delivery]int
	Tracker   alertstate.Stats
}

// Service orchestrates polling, detection, charting and delivery.
type Service struct {
	deps      Deps
	logger    zerolog.Logger
	evaluator divergence.Evaluator
	tracker   *alertstate.Tracker
	formatter notify.Formatter
	limiter   *rate.Limiter
	now       func() time.Time

	threshold     decimal.Decimal
	showMovements bool
	statsEvery    int
	chartEnabled  bool
	chartInterval string
	chartLimit    int
	lockKey       int64

	book      *market.SymbolBook
	cycles    int
	alerts    int
	delivered map[storage.Delivery]int
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	limit := rate.Inf
	if cfg.Monitor.AlertPacing > 0 {
		limit = rate.Every(cfg.Monitor.AlertPacing)
	}

	return &Service{
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
		evaluator: divergence.Evaluator{
			SymbolFilter: cfg.Monitor.SymbolFilter,
			MinVolume:    decimal.NewFromFloat(cfg.Monitor.MinVolume),
		},
		tracker: alertstate.New(cfg.Monitor.Cooldown, cfg.Monitor.SignalCapacity),
		formatter: notify.Formatter{
			UTCOffset: cfg.Alerting.UTCOffset,
			Signature: cfg.Alerting.Signature,
		},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,

		threshold:     decimal.NewFromFloat(cfg.Monitor.ThresholdPct),
		showMovements: cfg.Monitor.ShowMovements,
		statsEvery:    cfg.Monitor.StatsEvery,
		chartEnabled:  cfg.Chart.Enabled,
		chartInterval: cfg.Chart.Interval,
		chartLimit:    cfg.Chart.Limit,
		lockKey:       cfg.Database.LockKey,

		delivered: make(map[storage.Delivery]int),
	}
}

// SetClock replaces the wall clock used for cooldowns and alert timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run takes the optional instance lock, performs the startup fetch and then
// polls until ctx is cancelled. Cancellation is a clean stop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.Startup(ctx); err != nil {
		return err
	}

	s.logger.Info().
		Str("threshold_pct", s.threshold.String()).
		Msgf("watching for fair price divergence above %s%%", s.threshold.String())

	err = s.deps.Scheduler.Run(ctx, s.RunCycle)
	s.logSummary()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Startup fetches the ticker list once and indexes the symbols.
func (s *Service) Startup(ctx context.Context) error {
	s.logger.Info().Msg("fetching contract list")

	tickers, err := s.deps.Tickers.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoTickers, err)
	}
	if len(tickers) == 0 {
		return ErrNoTickers
	}

	s.book = market.NewSymbolBook(tickers)
	if s.book.Len() == 0 {
		return ErrNoTickers
	}

	s.logger.Info().
		Int("tickers", len(tickers)).
		Int("symbols", s.book.Len()).
		Strs("first", s.book.Symbols(5)).
		Msg("contracts loaded")
	return nil
}

// RunCycle performs one poll: fetch, evaluate, gate and deliver.
func (s *Service) RunCycle(ctx context.Context, cycle int) error {
	s.cycles++

	tickers, err := s.deps.Tickers.ListTickers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a failed fetch counts as an empty batch and keeps the normal cadence
		s.logger.Warn().Err(err).Int("cycle", cycle).Msg("ticker fetch failed")
		return nil
	}
	if len(tickers) == 0 {
		s.logger.Warn().Int("cycle", cycle).Msg("empty ticker batch")
		return nil
	}

	for _, ticker := range tickers {
		verdict := s.evaluator.Evaluate(ticker)
		if !verdict.Exceeds(s.threshold) {
			continue
		}

		now := s.now()
		if !s.tracker.ShouldFire(verdict.Symbol, verdict.Deviation, now) {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.dispatch(ctx, verdict, now)
	}

	if s.statsEvery > 0 && s.cycles%s.statsEvery == 0 {
		s.logger.Info().Int("cycles", s.cycles).Int("alerts", s.alerts).Msg("stats")
	}
	return nil
}

// dispatch formats and delivers one alert: chart first, text as fallback.
func (s *Service) dispatch(ctx context.Context, verdict divergence.Verdict, at time.Time) {
	alert := notify.NewAlert(verdict, s.book.Base(verdict.Symbol), at)
	text := s.formatter.Format(alert)
	s.alerts++

	if s.showMovements {
		s.logger.Info().
			Str("symbol", verdict.Symbol).
			Str("direction", string(alert.Direction)).
			Msgf("%s %s: %s%%", alert.Direction, verdict.Symbol, signed(verdict.Deviation))
	}
	s.logger.Info().
		Str("symbol", verdict.Symbol).
		Str("deviation_pct", verdict.Deviation.StringFixed(2)).
		Str("last", verdict.LastPrice.String()).
		Str("fair", verdict.FairPrice.String()).
		Msg("fair price alert")

	delivery := storage.DeliveryFailed
	var deliveryErr error

	image, err := s.chartFor(ctx, verdict)
	switch {
	case err == nil:
		if sendErr := s.deps.Notifier.SendWithImage(ctx, text, verdict.Symbol, image); sendErr != nil {
			s.logger.Warn().Err(sendErr).Str("symbol", verdict.Symbol).Msg("photo delivery failed, falling back to text")
		} else {
			delivery = storage.DeliveryPhoto
		}
	case errors.Is(err, errChartDisabled):
	default:
		s.logger.Warn().Err(err).Str("symbol", verdict.Symbol).Msg("chart unavailable, sending text")
	}

	if delivery != storage.DeliveryPhoto {
		if sendErr := s.deps.Notifier.SendText(ctx, text, verdict.Symbol); sendErr != nil {
			deliveryErr = sendErr
			s.logger.Error().Err(sendErr).Str("symbol", verdict.Symbol).Msg("alert lost")
		} else {
			delivery = storage.DeliveryText
		}
	}
	s.delivered[delivery]++

	s.record(ctx, alert, delivery, deliveryErr)
}

func (s *Service) chartFor(ctx context.Context, verdict divergence.Verdict) ([]byte, error) {
	if !s.chartEnabled || s.deps.Candles == nil || s.deps.Renderer == nil {
		return nil, errChartDisabled
	}

	candles, err := s.deps.Candles.GetCandles(ctx, verdict.Symbol, s.chartInterval, s.chartLimit)
	if err != nil {
		return nil, err
	}
	return s.deps.Renderer.Render(
		verdict.Symbol,
		candles,
		verdict.LastPrice.InexactFloat64(),
		verdict.FairPrice.InexactFloat64(),
	)
}

func (s *Service) record(ctx context.Context, alert notify.Alert, delivery storage.Delivery, deliveryErr error) {
	if s.deps.Alerts == nil {
		return
	}

	rec := storage.AlertRecord{
		Symbol:       alert.Symbol,
		DeviationPct: alert.Deviation,
		LastPrice:    alert.LastPrice,
		FairPrice:    alert.FairPrice,
		Volume24:     alert.Volume,
		Direction:    string(alert.Direction),
		Delivery:     delivery,
		AlertTS:      alert.At.UTC(),
	}
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		rec.Error = &msg
	}
	if _, err := s.deps.Alerts.InsertAlert(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", alert.Symbol).Msg("failed to persist alert record")
	}
}

// Stats returns counters for the run so far.
func (s *Service) Stats() Stats {
	delivered := make(map[storage.Delivery]int, len(s.delivered))
	for k, v := range s.delivered {
		delivered[k] = v
	}
	return Stats{
		Cycles:    s.cycles,
		Alerts:    s.alerts,
		Delivered: delivered,
		Tracker:   s.tracker.Stats(),
	}
}

func (s *Service) logSummary() {
	stats := s.Stats()
	s.logger.Info().
		Int("cycles", stats.Cycles).
		Int("alerts", stats.Alerts).
		Int("photo", stats.Delivered[storage.DeliveryPhoto]).
		Int("text", stats.Delivered[storage.DeliveryText]).
		Int("failed", stats.Delivered[storage.DeliveryFailed]).
		Msg("monitoring stopped")
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return unlock, nil
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fair-price-alerts/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. FAIRWATCH_MONITOR_THRESHOLD_PCT.
const EnvPrefix = "FAIRWATCH"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	MEXC     MEXCConfig     `mapstructure:"mexc"`
	Chart    ChartConfig    `mapstructure:"chart"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL alert log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockKey         int64         `mapstructure:"lock_key"`
}

// MonitorConfig governs detection and cadence.
type MonitorConfig struct {
	ThresholdPct   float64       `mapstructure:"threshold_pct"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	MinVolume      float64       `mapstructure:"min_volume"`
	Interval       time.Duration `mapstructure:"interval"`
	ShowMovements  bool          `mapstructure:"show_movements"`
	SymbolFilter   string        `mapstructure:"symbol_filter"`
	SignalCapacity int           `mapstructure:"signal_capacity"`
	AlertPacing    time.Duration `mapstructure:"alert_pacing"`
	StatsEvery     int           `mapstructure:"stats_every"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
}

// MEXCConfig covers the public market-data endpoints.
type MEXCConfig struct {
	TickerURL        string        `mapstructure:"ticker_url"`
	SpotKlineURL     string        `mapstructure:"spot_kline_url"`
	ContractKlineURL string        `mapstructure:"contract_kline_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	CandleTimeout    time.Duration `mapstructure:"candle_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// ChartConfig controls the image attached to alerts.
type ChartConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
	Limit    int    `mapstructure:"limit"`
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
}

// AlertingConfig defines message content and routing.
type AlertingConfig struct {
	Telegram       TelegramConfig `mapstructure:"telegram"`
	ChannelLabel   string         `mapstructure:"channel_label"`
	ChannelURL     string         `mapstructure:"channel_url"`
	ExchangeLabel  string         `mapstructure:"exchange_label"`
	ExchangeURLFmt string         `mapstructure:"exchange_url_fmt"`
	UTCOffset      time.Duration  `mapstructure:"utc_offset"`
	Signature      []string       `mapstructure:"signature"`
}

// TelegramConfig describes bot credentials and request budgets.
type TelegramConfig struct {
	BotToken     string        `mapstructure:"bot_token"`
	ChatID       string        `mapstructure:"chat_id"`
	APIBase      string        `mapstructure:"api_base"`
	ParseMode    string        `mapstructure:"parse_mode"`
	PhotoTimeout time.Duration `mapstructure:"photo_timeout"`
	TextTimeout  time.Duration `mapstructure:"text_timeout"`
}

// ConfigError reports a missing or invalid setting. It is always fatal.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is the normal case in containers
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindEnv keeps the plain variable names operators already use in their .env files.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"alerting.telegram.bot_token": {EnvPrefix + "_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"alerting.telegram.chat_id":   {EnvPrefix + "_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"database.dsn":                {EnvPrefix + "_DATABASE_DSN", "DATABASE_URL"},
	}
	for key, names := range bindings {
		input := append([]string{key}, names...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fairwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("monitor.threshold_pct", 7.0)
	v.SetDefault("monitor.cooldown", "60s")
	v.SetDefault("monitor.min_volume", 0.0)
	v.SetDefault("monitor.interval", "10s")
	v.SetDefault("monitor.show_movements", true)
	v.SetDefault("monitor.symbol_filter", "")
	v.SetDefault("monitor.signal_capacity", 100)
	v.SetDefault("monitor.alert_pacing", "1s")
	v.SetDefault("monitor.stats_every", 6)
	v.SetDefault("monitor.startup_delay", "0s")

	v.SetDefault("mexc.ticker_url", "https://contract.mexc.com/api/v1/contract/ticker")
	v.SetDefault("mexc.spot_kline_url", "https://api.mexc.com/api/v3/klines")
	v.SetDefault("mexc.contract_kline_url", "https://contract.mexc.com/api/v1/contract/kline")
	v.SetDefault("mexc.request_timeout", "10s")
	v.SetDefault("mexc.candle_timeout", "5s")
	v.SetDefault("mexc.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	v.SetDefault("chart.enabled", true)
	v.SetDefault("chart.interval", "5m")
	v.SetDefault("chart.limit", 30)
	v.SetDefault("chart.width", 1000)
	v.SetDefault("chart.height", 800)

	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.parse_mode", "HTML")
	v.SetDefault("alerting.telegram.photo_timeout", "30s")
	v.SetDefault("alerting.telegram.text_timeout", "10s")
	v.SetDefault("alerting.channel_label", "📢 LBScalp")
	v.SetDefault("alerting.channel_url", "https://t.me/LBScalp")
	v.SetDefault("alerting.exchange_label", "🔗 MEXC")
	v.SetDefault("alerting.exchange_url_fmt", "https://futures.mexc.com/contract/%s-USDT")
	v.SetDefault("alerting.utc_offset", "3h")
	v.SetDefault("alerting.signature", []string{"😎 @LBScalp", "📉 @aslgw"})

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_key", int64(0x66777463))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return &ConfigError{Key: "monitor.interval", Reason: "must be greater than zero"}
	}
	if c.Monitor.ThresholdPct < 0 {
		return &ConfigError{Key: "monitor.threshold_pct", Reason: "cannot be negative"}
	}
	if c.Monitor.Cooldown < 0 {
		return &ConfigError{Key: "monitor.cooldown", Reason: "cannot be negative"}
	}
	if c.Monitor.MinVolume < 0 {
		return &ConfigError{Key: "monitor.min_volume", Reason: "cannot be negative"}
	}
	if c.Monitor.SignalCapacity <= 0 {
		return &ConfigError{Key: "monitor.signal_capacity", Reason: "must be greater than zero"}
	}
	if c.Monitor.AlertPacing < 0 {
		return &ConfigError{Key: "monitor.alert_pacing", Reason: "cannot be negative"}
	}
	if c.MEXC.TickerURL == "" {
		return &ConfigError{Key: "mexc.ticker_url", Reason: "is required"}
	}
	if c.Chart.Limit < 2 {
		return &ConfigError{Key: "chart.limit", Reason: "must be at least 2"}
	}
	return nil
}

// ValidateTelegram checks the bot credentials needed by commands that deliver alerts.
func (c *Config) ValidateTelegram() error {
	if strings.TrimSpace(c.Alerting.Telegram.BotToken) == "" {
		return &ConfigError{Key: "TELEGRAM_BOT_TOKEN", Reason: "is not set (env, .env or alerting.telegram.bot_token)"}
	}
	if strings.TrimSpace(c.Alerting.Telegram.ChatID) == "" {
		return &ConfigError{Key: "TELEGRAM_CHAT_ID", Reason: "is not set (env, .env or alerting.telegram.chat_id)"}
	}
	return nil
}

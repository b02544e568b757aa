// Package notify formats divergence alerts and delivers them to Telegram.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"fair-price-alerts/internal/market"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	SendWithImage(ctx context.Context, text, symbol string, image []byte) error
	SendText(ctx context.Context, text, symbol string) error
}

// DeliveryError reports a rejected or failed Telegram call.
type DeliveryError struct {
	Method string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Method, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TelegramOptions 描述 Telegram 推送参数。
type TelegramOptions struct {
	BotToken string
	// ChatID is a numeric chat id or an @channel username.
	ChatID       string
	APIBase      string
	ParseMode    string
	PhotoTimeout time.Duration
	TextTimeout  time.Duration

	ChannelLabel  string
	ChannelURL    string
	ExchangeLabel string
	// ExchangeURLFmt receives the base asset, e.g. https://futures.mexc.com/contract/%s-USDT.
	ExchangeURLFmt string
}

// TelegramNotifier 通过 Telegram Bot API 推送告警。
type TelegramNotifier struct {
	opts     TelegramOptions
	bot      *tgbotapi.BotAPI
	chatID   int64
	username string
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。getMe 失败只记录告警，不阻止启动。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) (*TelegramNotifier, error) {
	if opts.PhotoTimeout <= 0 {
		opts.PhotoTimeout = 30 * time.Second
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = 10 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.telegram.org"
	}
	if opts.ParseMode == "" {
		opts.ParseMode = tgbotapi.ModeHTML
	}

	n := &TelegramNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "notify_telegram").Logger(),
	}

	chat := strings.TrimSpace(opts.ChatID)
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		n.chatID = id
	} else if strings.HasPrefix(chat, "@") {
		n.username = chat
	} else {
		return nil, fmt.Errorf("telegram chat id %q: must be numeric or @channel", opts.ChatID)
	}

	client := &budgetClient{
		photo: &http.Client{Timeout: opts.PhotoTimeout},
		text:  &http.Client{Timeout: opts.TextTimeout},
	}
	bot := &tgbotapi.BotAPI{
		Token:  opts.BotToken,
		Client: client,
		Buffer: 100,
	}
	bot.SetAPIEndpoint(strings.TrimRight(opts.APIBase, "/") + "/bot%s/%s")
	n.bot = bot

	// getMe is informational; an unreachable API must not block startup.
	if self, err := bot.GetMe(); err != nil {
		n.logger.Warn().Err(err).Msg("telegram getMe failed; alerts will still be attempted")
	} else {
		bot.Self = self
		n.logger.Debug().Str("bot", self.UserName).Msg("telegram bot authorised")
	}
	return n, nil
}

// SendWithImage 调用 sendPhoto，图片作为 multipart 上传，文本作为 caption。
func (n *TelegramNotifier) SendWithImage(ctx context.Context, text, symbol string, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileBytes{Name: "chart.png", Bytes: image})
	photo.ChannelUsername = n.username
	photo.Caption = text
	photo.ParseMode = n.opts.ParseMode
	photo.ReplyMarkup = n.keyboard(symbol)

	if _, err := n.bot.Send(photo); err != nil {
		return &DeliveryError{Method: "sendPhoto", Err: err}
	}
	n.logger.Info().Str("symbol", symbol).Int("bytes", len(image)).Msg("alert delivered with chart")
	return nil
}

// SendText 调用 sendMessage 推送纯文本。
func (n *TelegramNotifier) SendText(ctx context.Context, text, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ChannelUsername = n.username
	msg.ParseMode = n.opts.ParseMode
	msg.ReplyMarkup = n.keyboard(symbol)

	if _, err := n.bot.Send(msg); err != nil {
		return &DeliveryError{Method: "sendMessage", Err: err}
	}
	n.logger.Info().Str("symbol", symbol).Msg("alert delivered as text")
	return nil
}

func (n *TelegramNotifier) keyboard(symbol string) interface{} {
	var rows [][]tgbotapi.InlineKeyboardButton
	if n.opts.ChannelURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(n.opts.ChannelLabel, n.opts.ChannelURL),
		))
	}
	if n.opts.ExchangeURLFmt != "" {
		link := fmt.Sprintf(n.opts.ExchangeURLFmt, market.BaseAsset(symbol))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(n.opts.ExchangeLabel, link),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// budgetClient applies the photo budget to uploads and the text budget to
// every other Bot API call.
type budgetClient struct {
	photo *http.Client
	text  *http.Client
}

func (c *budgetClient) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/sendPhoto") {
		return c.photo.Do(req)
	}
	return c.text.Do(req)
}

// botLogger routes the Bot API library's own log lines through zerolog.
type botLogger struct {
	logger zerolog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

// InstallBotLogger replaces the Bot API library's stderr logger.
func InstallBotLogger(logger zerolog.Logger) error {
	return tgbotapi.SetLogger(botLogger{logger: logger.With().Str("component", "tgbotapi").Logger()})
}

var (
	_ Notifier            = (*TelegramNotifier)(nil)
	_ tgbotapi.HTTPClient = (*budgetClient)(nil)
)

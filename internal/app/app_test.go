package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/config"
	"fair-price-alerts/internal/storage"
)

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) SendWithImage(ctx context.Context, text, symbol string, image []byte) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingNotifier) SendText(ctx context.Context, text, symbol string) error {
	r.texts = append(r.texts, text)
	return nil
}

func testApp() *App {
	cfg := &config.Config{
		Monitor: config.MonitorConfig{
			ThresholdPct:   7,
			Cooldown:       time.Minute,
			Interval:       10 * time.Second,
			SignalCapacity: 100,
			SymbolFilter:   "ETH",
			MinVolume:      1e9,
		},
		Chart: config.ChartConfig{Interval: "5m", Limit: 30},
		Alerting: config.AlertingConfig{
			UTCOffset: 3 * time.Hour,
		},
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestSimulateSendsAlert(t *testing.T) {
	a := testApp()
	notifier := &recordingNotifier{}

	err := a.simulate(context.Background(), SimulateOptions{Symbol: "btc_usdt", Last: 65000, Fair: 60000, Volume: 1e6}, notifier)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("expected one message, got %d", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "🟢 LONG") || !strings.Contains(notifier.texts[0], "+8.33%") {
		t.Fatalf("unexpected message:\n%s", notifier.texts[0])
	}
	if a.Config.Monitor.SymbolFilter != "ETH" {
		t.Fatal("simulate must not mutate the shared config")
	}
}

func TestSimulateAlertWhileTelegramGetMeFails(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.WriteHeader(http.StatusBadGateway)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			sent = append(sent, r.Form.Get("text"))
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := testApp()
	a.Config.Alerting.Telegram = config.TelegramConfig{
		BotToken:    "123:abc",
		ChatID:      "42",
		APIBase:     srv.URL,
		TextTimeout: time.Second,
	}

	err := a.SimulateAlert(context.Background(), SimulateOptions{Symbol: "BTC_USDT", Last: 65000, Fair: 60000})
	if err != nil {
		t.Fatalf("SimulateAlert with getMe failing: %v", err)
	}
	if len(sent) != 1 || !strings.Contains(sent[0], "+8.33%") {
		t.Fatalf("expected the alert to be delivered as text, got %q", sent)
	}
}

func TestSimulateBelowThreshold(t *testing.T) {
	a := testApp()
	notifier := &recordingNotifier{}

	err := a.simulate(context.Background(), SimulateOptions{Last: 101, Fair: 100}, notifier)
	if err == nil || !strings.Contains(err.Error(), "below") {
		t.Fatalf("expected below-threshold error, got %v", err)
	}
	if len(notifier.texts) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestSimulateRejectsZeroPrices(t *testing.T) {
	a := testApp()
	if err := a.simulate(context.Background(), SimulateOptions{Last: 0, Fair: 100}, &recordingNotifier{}); err == nil {
		t.Fatal("zero last price should be rejected")
	}
}

func TestDownsample(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	got := downsample(items, 5)
	want := []int{0, 25, 50, 74, 99}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	if got[0] != 0 || got[len(got)-1] != 99 {
		t.Fatalf("endpoints must be kept: %v", got)
	}

	if same := downsample(items[:3], 5); len(same) != 3 {
		t.Fatalf("short input must pass through, got %v", same)
	}
	if same := downsample(items, 0); len(same) != 100 {
		t.Fatal("zero max disables downsampling")
	}
}

func sampleAlerts() []storage.AlertRecord {
	msg := "telegram sendMessage: Bad Request\nchat not found"
	return []storage.AlertRecord{
		{
			Symbol:       "BTC_USDT",
			DeviationPct: decimal.RequireFromString("8.3333"),
			LastPrice:    decimal.NewFromInt(65000),
			FairPrice:    decimal.NewFromInt(60000),
			Volume24:     decimal.NewFromInt(1_000_000),
			Direction:    "LONG",
			Delivery:     storage.DeliveryPhoto,
			AlertTS:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			Symbol:       "DOGE_USDT",
			DeviationPct: decimal.RequireFromString("-9.1"),
			LastPrice:    decimal.RequireFromString("0.091"),
			FairPrice:    decimal.RequireFromString("0.1"),
			Direction:    "SHORT",
			Delivery:     storage.DeliveryFailed,
			Error:        &msg,
			AlertTS:      time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC),
		},
	}
}

func TestPrintAlerts(t *testing.T) {
	var buf bytes.Buffer
	if err := printAlerts(&buf, sampleAlerts(), 12); err != nil {
		t.Fatalf("printAlerts: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BTC_USDT", "8.33", "photo", "DOGE_USDT", "-9.10", "chat not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "showing 2 of 12 alerts") {
		t.Errorf("total footer missing:\n%s", out)
	}
	if strings.Count(out, "\n") != 4 {
		t.Errorf("error text must stay on one line:\n%s", out)
	}

	buf.Reset()
	_ = printAlerts(&buf, nil, 0)
	if !strings.Contains(buf.String(), "no alerts found") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func TestWriteAlertsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "alerts.csv")
	if err := writeAlertsCSV(path, sampleAlerts()); err != nil {
		t.Fatalf("writeAlertsCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][1] != "BTC_USDT" || rows[2][7] != "failed" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestWriteAlertsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.png")
	if err := writeAlertsPNG(path, sampleAlerts(), 7); err != nil {
		t.Fatalf("writeAlertsPNG: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func TestFilterBySymbol(t *testing.T) {
	alerts := sampleAlerts()
	if got := filterBySymbol(alerts, ""); len(got) != len(alerts) {
		t.Fatalf("empty filter kept %d of %d", len(got), len(alerts))
	}
	got := filterBySymbol(alerts, " doge ")
	if len(got) != 1 || got[0].Symbol != "DOGE_USDT" {
		t.Fatalf("unexpected filter result %+v", got)
	}
	if len(alerts) != 2 {
		t.Fatal("filter must not modify its input")
	}
}

func TestExportValidatesWindow(t *testing.T) {
	a := testApp()
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("export without outputs should fail")
	}
	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	err := a.Export(context.Background(), ExportOptions{CSVPath: "x.csv", From: &from, To: &to})
	if err == nil || !strings.Contains(err.Error(), "from must be before to") {
		t.Fatalf("inverted window should fail, got %v", err)
	}
}

func TestHistoryRequiresDatabase(t *testing.T) {
	a := testApp()
	err := a.History(context.Background(), HistoryOptions{Limit: 5})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected a database error, got %v", err)
	}
}

package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/divergence"
	"fair-price-alerts/internal/market"
)

func TestFormatAlertLong(t *testing.T) {
	verdict := divergence.Evaluator{}.Evaluate(market.Ticker{
		Symbol:    "BTC_USDT",
		LastPrice: decimal.NewFromInt(65000),
		FairPrice: decimal.NewFromInt(60000),
		Volume24:  decimal.NewFromInt(1_000_000),
	})
	at := time.Date(2025, 3, 1, 9, 15, 30, 0, time.UTC)

	msg := FormatAlert(NewAlert(verdict, "BTC", at))

	for _, want := range []string{
		"⚠️ FAIR PRICE ALERT | 🟢 LONG",
		"🔖 Token: $BTC",
		"📊 Last Price: $65,000.00",
		"⚖️ Fair Price:  $60,000.00",
		"📈 Spread:      +8.33%",
		"📦 Volume 24h: $1.00M",
		"⏰ Time:       12:15:30 UTC+3",
		"😎 @LBScalp",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatAlertShortHasNoSign(t *testing.T) {
	alert := Alert{
		Symbol:    "DOGE_USDT",
		Direction: divergence.Short,
		Deviation: decimal.RequireFromString("-9.1234"),
		LastPrice: decimal.RequireFromString("0.091"),
		FairPrice: decimal.RequireFromString("0.1"),
		Volume:    decimal.NewFromInt(500),
		At:        time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC),
	}

	f := Formatter{UTCOffset: 0}
	msg := f.Format(alert)

	for _, want := range []string{
		"🔴 SHORT",
		"🔖 Token: $DOGE",
		"$0.091000",
		"$0.100000",
		"📈 Spread:      9.12%",
		"$500.00",
		"23:00:00 UTC\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.HasSuffix(msg, "\n") {
		t.Error("message must not end with a newline")
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{65000, "$65,000.00"},
		{1234.5, "$1,234.50"},
		{1.2345, "$1.23"},
		{0.00012345, "$0.000123"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.in); got != tc.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFairPriceFollowsLastPriceTier(t *testing.T) {
	alert := Alert{
		Symbol:    "ETH_USDT",
		Direction: divergence.Long,
		Deviation: decimal.NewFromInt(10),
		LastPrice: decimal.NewFromInt(1100),
		FairPrice: decimal.NewFromInt(999),
		At:        time.Unix(0, 0),
	}
	msg := FormatAlert(alert)
	if !strings.Contains(msg, "⚖️ Fair Price:  $999.00") {
		t.Fatalf("fair price should use the last price precision:\n%s", msg)
	}
}

func TestFormatVolume(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1.5e9, "$1.50B"},
		{2.5e6, "$2.50M"},
		{1500, "$1.50K"},
		{500, "$500.00"},
	}
	for _, tc := range cases {
		if got := FormatVolume(tc.in); got != tc.want {
			t.Errorf("FormatVolume(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOffsetLabel(t *testing.T) {
	cases := map[time.Duration]string{
		0:                            "UTC",
		3 * time.Hour:                "UTC+3",
		-5 * time.Hour:               "UTC-5",
		5*time.Hour + 30*time.Minute: "UTC+5:30",
	}
	for in, want := range cases {
		if got := offsetLabel(in); got != want {
			t.Errorf("offsetLabel(%v) = %q, want %q", in, got, want)
		}
	}
}

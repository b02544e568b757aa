package divergence

import (
	"testing"

	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/market"
)

func ticker(symbol, last, fair, volume string) market.Ticker {
	return market.Ticker{
		Symbol:    symbol,
		LastPrice: decimal.RequireFromString(last),
		FairPrice: decimal.RequireFromString(fair),
		Volume24:  decimal.RequireFromString(volume),
	}
}

func TestEvaluateRejectsZeroPrices(t *testing.T) {
	e := Evaluator{}
	cases := []market.Ticker{
		ticker("BTC_USDT", "0", "60000", "1000000"),
		ticker("BTC_USDT", "65000", "0", "1000000"),
		ticker("BTC_USDT", "0", "0", "0"),
	}
	for _, tc := range cases {
		if v := e.Evaluate(tc); v.Qualifies {
			t.Fatalf("zero price must not qualify: %+v", tc)
		}
	}
}

func TestEvaluateDeviation(t *testing.T) {
	tests := []struct {
		name      string
		last      string
		fair      string
		direction Direction
	}{
		{"above fair", "65000", "60000", Long},
		{"below fair", "0.0095", "0.01", Short},
		{"equal", "1.5", "1.5", Short},
	}

	e := Evaluator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := ticker("ABC_USDT", tt.last, tt.fair, "1")
			v := e.Evaluate(tk)
			if !v.Qualifies {
				t.Fatal("should qualify")
			}
			want := tk.LastPrice.Sub(tk.FairPrice).Div(tk.FairPrice).Mul(decimal.NewFromInt(100))
			if !v.Deviation.Equal(want) {
				t.Fatalf("deviation = %s, want %s", v.Deviation, want)
			}
			if v.Direction() != tt.direction {
				t.Fatalf("direction = %s, want %s", v.Direction(), tt.direction)
			}
		})
	}
}

func TestEvaluateSignMatchesDirection(t *testing.T) {
	e := Evaluator{}
	up := e.Evaluate(ticker("A_USDT", "101", "100", "1"))
	down := e.Evaluate(ticker("A_USDT", "99", "100", "1"))
	if !up.Deviation.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("up deviation = %s, want 1", up.Deviation)
	}
	if !down.Deviation.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("down deviation = %s, want -1", down.Deviation)
	}
}

func TestEvaluateSymbolFilter(t *testing.T) {
	e := Evaluator{SymbolFilter: "BTC"}
	if v := e.Evaluate(ticker("ETH_USDT", "2", "1", "1")); v.Qualifies {
		t.Fatal("ETH_USDT must be filtered out")
	}
	if v := e.Evaluate(ticker("BTC_USDT", "2", "1", "1")); !v.Qualifies {
		t.Fatal("BTC_USDT must be retained")
	}
}

func TestEvaluateMinVolume(t *testing.T) {
	e := Evaluator{MinVolume: decimal.NewFromInt(1000)}
	if v := e.Evaluate(ticker("BTC_USDT", "2", "1", "999")); v.Qualifies {
		t.Fatal("volume below minimum must be rejected")
	}
	if v := e.Evaluate(ticker("BTC_USDT", "2", "1", "1000")); !v.Qualifies {
		t.Fatal("volume at minimum must be retained")
	}

	disabled := Evaluator{}
	if v := disabled.Evaluate(ticker("BTC_USDT", "2", "1", "0")); !v.Qualifies {
		t.Fatal("zero minimum disables the volume check")
	}
}

func TestVerdictExceeds(t *testing.T) {
	e := Evaluator{}
	v := e.Evaluate(ticker("BTC_USDT", "65000", "60000", "1000000"))
	if !v.Exceeds(decimal.NewFromInt(7)) {
		t.Fatalf("8.33%% should exceed 7%%, deviation %s", v.Deviation)
	}
	if v.Exceeds(decimal.NewFromInt(9)) {
		t.Fatal("8.33% should not exceed 9%")
	}
	if got := v.Deviation.StringFixed(2); got != "8.33" {
		t.Fatalf("deviation rounded = %s, want 8.33", got)
	}

	short := e.Evaluate(ticker("BTC_USDT", "93", "100", "1"))
	if !short.Exceeds(decimal.NewFromInt(7)) {
		t.Fatal("-7% must meet a 7% threshold")
	}
	if (Verdict{Deviation: decimal.NewFromInt(50)}).Exceeds(decimal.NewFromInt(7)) {
		t.Fatal("a rejected verdict never exceeds")
	}
}

// Package divergence compares a contract's last traded price with its fair price.
package divergence

import (
	"strings"

	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Direction of the last price relative to the fair price.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Verdict is the outcome of evaluating one ticker.
type Verdict struct {
	Qualifies bool
	Symbol    string
	Deviation decimal.Decimal
	LastPrice decimal.Decimal
	FairPrice decimal.Decimal
	Volume    decimal.Decimal
}

// Direction is LONG when last trades above fair, SHORT otherwise.
func (v Verdict) Direction() Direction {
	if v.Deviation.IsPositive() {
		return Long
	}
	return Short
}

// Exceeds reports whether the verdict qualifies and |deviation| >= thresholdPct.
func (v Verdict) Exceeds(thresholdPct decimal.Decimal) bool {
	return v.Qualifies && v.Deviation.Abs().GreaterThanOrEqual(thresholdPct)
}

// Evaluator applies the symbol and volume filters and computes deviation.
type Evaluator struct {
	// SymbolFilter keeps only symbols containing it; empty keeps all.
	SymbolFilter string
	// MinVolume drops tickers with a lower 24h volume; zero disables the check.
	MinVolume decimal.Decimal
}

// Evaluate returns the signed percentage deviation of last from fair.
func (e Evaluator) Evaluate(t market.Ticker) Verdict {
	rejected := Verdict{Symbol: t.Symbol}

	if e.SymbolFilter != "" && !strings.Contains(t.Symbol, e.SymbolFilter) {
		return rejected
	}
	if t.LastPrice.IsZero() || t.FairPrice.IsZero() {
		return rejected
	}
	if e.MinVolume.IsPositive() && t.Volume24.LessThan(e.MinVolume) {
		return rejected
	}

	deviation := t.LastPrice.Sub(t.FairPrice).Div(t.FairPrice).Mul(hundred)

	return Verdict{
		Qualifies: true,
		Symbol:    t.Symbol,
		Deviation: deviation,
		LastPrice: t.LastPrice,
		FairPrice: t.FairPrice,
		Volume:    t.Volume24,
	}
}

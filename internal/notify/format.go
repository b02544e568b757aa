package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"fair-price-alerts/internal/divergence"
)

const separator = "───◇───────────────"

// Alert 封装一次告警所需的全部字段。
type Alert struct {
	Symbol    string
	Base      string
	Direction divergence.Direction
	Deviation decimal.Decimal
	LastPrice decimal.Decimal
	FairPrice decimal.Decimal
	Volume    decimal.Decimal
	At        time.Time
}

// NewAlert builds an Alert from a qualifying verdict.
func NewAlert(v divergence.Verdict, base string, at time.Time) Alert {
	return Alert{
		Symbol:    v.Symbol,
		Base:      base,
		Direction: v.Direction(),
		Deviation: v.Deviation,
		LastPrice: v.LastPrice,
		FairPrice: v.FairPrice,
		Volume:    v.Volume,
		At:        at,
	}
}

// Formatter renders alert text.
type Formatter struct {
	// UTCOffset shifts the displayed time; the label follows it (UTC+3).
	UTCOffset time.Duration
	Signature []string
}

// DefaultFormatter matches the channel's house format.
var DefaultFormatter = Formatter{
	UTCOffset: 3 * time.Hour,
	Signature: []string{"😎 @LBScalp", "📉 @aslgw"},
}

// FormatAlert renders a with DefaultFormatter.
func FormatAlert(a Alert) string {
	return DefaultFormatter.Format(a)
}

// Format renders the multi-line alert message.
func (f Formatter) Format(a Alert) string {
	direction := "🔴 SHORT"
	sign := ""
	if a.Direction == divergence.Long {
		direction = "🟢 LONG"
		sign = "+"
	}

	base := a.Base
	if base == "" {
		base, _, _ = strings.Cut(a.Symbol, "_")
	}

	last := a.LastPrice.InexactFloat64()
	tier := priceTier(last)

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ FAIR PRICE ALERT | %s\n\n", direction)
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "🔖 Token: $%s\n", base)
	fmt.Fprintf(&b, "📊 Last Price: %s\n", formatPriceTier(last, tier))
	fmt.Fprintf(&b, "⚖️ Fair Price:  %s\n", formatPriceTier(a.FairPrice.InexactFloat64(), tier))
	fmt.Fprintf(&b, "📈 Spread:      %s%s%%\n\n", sign, a.Deviation.Abs().StringFixed(2))
	fmt.Fprintf(&b, "📦 Volume 24h: %s\n", FormatVolume(a.Volume.InexactFloat64()))
	fmt.Fprintf(&b, "⏰ Time:       %s %s\n", a.At.UTC().Add(f.UTCOffset).Format(time.TimeOnly), offsetLabel(f.UTCOffset))
	b.WriteString(separator)
	for _, line := range f.Signature {
		b.WriteString("\n" + line)
	}
	return b.String()
}

type tier int

const (
	tierSmall tier = iota
	tierUnit
	tierLarge
)

func priceTier(v float64) tier {
	switch {
	case v >= 1000:
		return tierLarge
	case v >= 1:
		return tierUnit
	default:
		return tierSmall
	}
}

// FormatPrice renders a USD price: thousands separators from 1000, two decimals
// from 1, six decimals below.
func FormatPrice(v float64) string {
	return formatPriceTier(v, priceTier(v))
}

// formatPriceTier lets the fair price follow the last price's precision.
func formatPriceTier(v float64, t tier) string {
	switch t {
	case tierLarge:
		return "$" + humanize.FormatFloat("#,###.##", v)
	case tierUnit:
		return fmt.Sprintf("$%.2f", v)
	default:
		return fmt.Sprintf("$%.6f", v)
	}
}

// FormatVolume abbreviates a USD volume with B/M/K suffixes.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

func offsetLabel(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}

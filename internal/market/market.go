package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoCandles is returned when every candle source failed or returned nothing usable.
var ErrNoCandles = errors.New("market: no candle data from any source")

// TickerSource retrieves the full contract ticker list.
type TickerSource interface {
	ListTickers(ctx context.Context) ([]Ticker, error)
}

// CandleSource retrieves recent candles for one contract.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// Ticker is one contract snapshot from the ticker endpoint.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	FairPrice decimal.Decimal `json:"fairPrice"`
	Volume24  decimal.Decimal `json:"volume24"`
}

// Candle is a normalised OHLCV record reduced to what the chart needs.
type Candle struct {
	Time   time.Time
	Close  float64
	Volume float64
}

// FetchError wraps a failed request against an upstream endpoint.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a response body that could not be decoded.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BaseAsset derives the base asset from a contract symbol, e.g. BTC_USDT -> BTC.
func BaseAsset(symbol string) string {
	base, _, _ := strings.Cut(symbol, "_")
	return base
}

// SymbolBook maps contract symbols to base assets. It is built once from the
// first ticker batch and only read afterwards.
type SymbolBook struct {
	bases   map[string]string
	symbols []string
}

// NewSymbolBook indexes the symbols of a ticker batch.
func NewSymbolBook(tickers []Ticker) *SymbolBook {
	book := &SymbolBook{bases: make(map[string]string, len(tickers))}
	for _, t := range tickers {
		if t.Symbol == "" {
			continue
		}
		if _, ok := book.bases[t.Symbol]; ok {
			continue
		}
		book.bases[t.Symbol] = BaseAsset(t.Symbol)
		book.symbols = append(book.symbols, t.Symbol)
	}
	return book
}

// Base returns the base asset for symbol, deriving it for symbols listed after startup.
func (b *SymbolBook) Base(symbol string) string {
	if b != nil {
		if base, ok := b.bases[symbol]; ok {
			return base
		}
	}
	return BaseAsset(symbol)
}

// Len returns the number of indexed symbols.
func (b *SymbolBook) Len() int {
	if b == nil {
		return 0
	}
	return len(b.symbols)
}

// Symbols returns up to n symbols in listing order; n <= 0 returns all.
func (b *SymbolBook) Symbols(n int) []string {
	if b == nil {
		return nil
	}
	if n <= 0 || n > len(b.symbols) {
		n = len(b.symbols)
	}
	out := make([]string, n)
	copy(out, b.symbols[:n])
	return out
}

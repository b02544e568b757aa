package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientOptions{
		TickerURL:        srv.URL + "/api/v1/contract/ticker",
		SpotKlineURL:     srv.URL + "/api/v3/klines",
		ContractKlineURL: srv.URL + "/api/v1/contract/kline",
		RequestTimeout:   time.Second,
		CandleTimeout:    time.Second,
		UserAgent:        "test",
	}, noopLogger())
}

func TestListTickersSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT","lastPrice":"65000","fairPrice":"60000","volume24":"1000000"},
			{"symbol":"ETH_USDT","lastPrice":3100.5,"fairPrice":3100.1,"volume24":250},
			{"symbol":"BAD_USDT","lastPrice":"n/a"}
		]}`))
	}))
	defer srv.Close()

	tickers, err := newTestClient(srv).ListTickers(context.Background())
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("malformed ticker should be skipped, got %d", len(tickers))
	}
	if !tickers[0].LastPrice.Equal(decimal.NewFromInt(65000)) || !tickers[0].FairPrice.Equal(decimal.NewFromInt(60000)) {
		t.Fatalf("string prices not decoded: %+v", tickers[0])
	}
	if !tickers[1].LastPrice.Equal(decimal.RequireFromString("3100.5")) {
		t.Fatalf("numeric prices not decoded: %+v", tickers[1])
	}
}

func TestListTickersUnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"code":510,"data":[]}`))
	}))
	defer srv.Close()

	tickers, err := newTestClient(srv).ListTickers(context.Background())
	if err != nil {
		t.Fatalf("success=false is not an error: %v", err)
	}
	if len(tickers) != 0 {
		t.Fatalf("want empty list, got %d", len(tickers))
	}
}

func TestListTickersErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ticker") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListTickers(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("502 should be a FetchError, got %v", err)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer garbage.Close()

	_, err = newTestClient(garbage).ListTickers(context.Background())
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("html body should be a ParseError, got %v", err)
	}
}

func TestCandleRequestsOrder(t *testing.T) {
	c := NewClient(ClientOptions{
		SpotKlineURL:     "http://spot/klines",
		ContractKlineURL: "http://contract/kline/",
	}, noopLogger())

	reqs := c.CandleRequests("PEPE_USDC", "5m", 30)
	sources := make([]string, 0, len(reqs))
	for _, r := range reqs {
		sources = append(sources, r.Source)
	}
	want := []string{"spot:PEPEUSDT", "spot:PEPEUSDC", "spot:PEPE", "contract:PEPE_USDT"}
	if strings.Join(sources, ",") != strings.Join(want, ",") {
		t.Fatalf("sources = %v, want %v", sources, want)
	}
	last := reqs[len(reqs)-1]
	if !last.Envelope || !strings.HasPrefix(last.URL, "http://contract/kline/PEPE_USDT?") || !strings.Contains(last.URL, "interval=Min5") {
		t.Fatalf("unexpected contract request %+v", last)
	}
}

func TestGetCandlesFallsThroughSpotVariants(t *testing.T) {
	var mu sync.Mutex
	var tried []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		mu.Lock()
		tried = append(tried, symbol)
		mu.Unlock()

		switch symbol {
		case "BTCUSDT":
			w.WriteHeader(http.StatusBadRequest)
		case "BTCUSDC":
			_, _ = w.Write([]byte(`[
				[1700000000000,"1","1","1","60000","2"],
				[1700000300000,"1","1","1","60100","3"]
			]`))
		default:
			t.Errorf("unexpected attempt %q", symbol)
		}
	}))
	defer srv.Close()

	candles, err := newTestClient(srv).GetCandles(context.Background(), "BTC_USDT", "5m", 30)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 || candles[1].Close != 60100 {
		t.Fatalf("unexpected candles %+v", candles)
	}
	if strings.Join(tried, ",") != "BTCUSDT,BTCUSDC" {
		t.Fatalf("attempt order = %v", tried)
	}
}

func TestGetCandlesContractFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v3/klines") {
			if r.URL.Query().Get("symbol") == "BTC" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Path != "/api/v1/contract/kline/BTC_USDT" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"code":0,"data":{"time":[1700000000,1700000300],"close":[60000,60500],"vol":[1,2]}}`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv).GetCandles(context.Background(), "BTC_USDT", "5m", 30)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 || candles[1].Close != 60500 {
		t.Fatalf("unexpected candles %+v", candles)
	}
}

func TestGetCandlesAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v1/contract/kline") {
			_, _ = w.Write([]byte(`{"success":false,"code":1001,"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetCandles(context.Background(), "XYZ_USDT", "5m", 30)
	if !errors.Is(err, ErrNoCandles) {
		t.Fatalf("want ErrNoCandles, got %v", err)
	}
}

func TestGetCandlesTrimsToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1,0,0,0,1,1],[2,0,0,0,2,1],[3,0,0,0,3,1]]`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv).GetCandles(context.Background(), "ABC_USDT", "1m", 2)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 || candles[0].Close != 2 {
		t.Fatalf("want newest 2 candles, got %+v", candles)
	}
}

func TestSymbolBook(t *testing.T) {
	book := NewSymbolBook([]Ticker{{Symbol: "BTC_USDT"}, {Symbol: "ETH_USDC"}, {Symbol: "BTC_USDT"}, {}})
	if book.Len() != 2 {
		t.Fatalf("Len = %d, want 2", book.Len())
	}
	if book.Base("ETH_USDC") != "ETH" {
		t.Fatalf("Base(ETH_USDC) = %q", book.Base("ETH_USDC"))
	}
	if book.Base("NEW_USDT") != "NEW" {
		t.Fatalf("unknown symbols should be derived, got %q", book.Base("NEW_USDT"))
	}
	if got := book.Symbols(1); len(got) != 1 || got[0] != "BTC_USDT" {
		t.Fatalf("Symbols(1) = %v", got)
	}
}

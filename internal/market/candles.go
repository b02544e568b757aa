package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamps below this are treated as unix seconds, otherwise milliseconds.
const millisThreshold = 1_000_000_000_000

// ParseCandles normalises a kline payload into candles ordered by time.
//
// Accepted shapes: an array of positional arrays ([ts, open, high, low, close,
// volume, ...], volume optional when only five fields are present), an array of
// keyed records ({"time", "close", "volume"|"vol"}), and the contract API's
// columnar object ({"time": [...], "close": [...], "vol": [...]}). Records that
// cannot be read are skipped.
func ParseCandles(raw json.RawMessage) ([]Candle, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &ParseError{What: "candle list", Err: err}
		}
		candles := make([]Candle, 0, len(items))
		for _, item := range items {
			if c, ok := parseCandleRecord(item); ok {
				candles = append(candles, c)
			}
		}
		sortCandles(candles)
		return candles, nil
	case '{':
		candles, err := parseColumnar(trimmed)
		if err != nil {
			return nil, err
		}
		sortCandles(candles)
		return candles, nil
	default:
		return nil, &ParseError{What: "candle list", Err: errors.New("unexpected payload shape")}
	}
}

func parseCandleRecord(item json.RawMessage) (Candle, bool) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 {
		return Candle{}, false
	}

	switch trimmed[0] {
	case '[':
		var fields []json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil || len(fields) < 5 {
			return Candle{}, false
		}
		ts, ok := parseNumber(fields[0])
		if !ok {
			return Candle{}, false
		}
		closePrice, ok := parseNumber(fields[4])
		if !ok {
			return Candle{}, false
		}
		volume := decimal.Zero
		if len(fields) > 5 {
			if v, ok := parseNumber(fields[5]); ok {
				volume = v
			}
		}
		return newCandle(ts, closePrice, volume), true
	case '{':
		var record map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return Candle{}, false
		}
		rawTime, hasTime := record["time"]
		rawClose, hasClose := record["close"]
		if !hasTime || !hasClose {
			return Candle{}, false
		}
		ts, ok := parseNumber(rawTime)
		if !ok {
			return Candle{}, false
		}
		closePrice, ok := parseNumber(rawClose)
		if !ok {
			return Candle{}, false
		}
		volume := decimal.Zero
		for _, key := range []string{"volume", "vol"} {
			if rawVol, ok := record[key]; ok {
				if v, ok := parseNumber(rawVol); ok {
					volume = v
					break
				}
			}
		}
		return newCandle(ts, closePrice, volume), true
	default:
		return Candle{}, false
	}
}

type columnarKlines struct {
	Time   []json.RawMessage `json:"time"`
	Close  []json.RawMessage `json:"close"`
	Vol    []json.RawMessage `json:"vol"`
	Volume []json.RawMessage `json:"volume"`
}

func parseColumnar(raw []byte) ([]Candle, error) {
	var cols columnarKlines
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, &ParseError{What: "columnar candles", Err: err}
	}

	volumes := cols.Vol
	if len(volumes) == 0 {
		volumes = cols.Volume
	}

	n := min(len(cols.Time), len(cols.Close))
	candles := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		ts, ok := parseNumber(cols.Time[i])
		if !ok {
			continue
		}
		closePrice, ok := parseNumber(cols.Close[i])
		if !ok {
			continue
		}
		volume := decimal.Zero
		if i < len(volumes) {
			if v, ok := parseNumber(volumes[i]); ok {
				volume = v
			}
		}
		candles = append(candles, newCandle(ts, closePrice, volume))
	}
	return candles, nil
}

// parseNumber accepts both JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Decimal{}, false
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func newCandle(ts, closePrice, volume decimal.Decimal) Candle {
	stamp := ts.IntPart()
	var at time.Time
	if stamp < millisThreshold {
		at = time.Unix(stamp, 0)
	} else {
		at = time.UnixMilli(stamp)
	}
	return Candle{
		Time:   at.UTC(),
		Close:  closePrice.InexactFloat64(),
		Volume: volume.InexactFloat64(),
	}
}

func sortCandles(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
}

// Package chart renders the price/volume image attached to alerts.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fair-price-alerts/internal/market"
)

// ErrNotEnoughData is returned when fewer than two candles are usable.
var ErrNotEnoughData = errors.New("chart: need at least 2 candles")

// RenderError wraps a failure inside the charting library.
type RenderError struct {
	Panel string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("chart: render %s panel: %v", e.Panel, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

var (
	colorBackground = drawing.ColorFromHex("0d0d0d")
	colorCanvas     = drawing.ColorFromHex("1a1a1a")
	colorLegend     = drawing.ColorFromHex("2a2a2a")
	colorGrid       = drawing.ColorFromHex("333333")
	colorText       = drawing.ColorWhite
	colorMuted      = drawing.ColorFromHex("808080")
	colorPrice      = drawing.ColorFromHex("00aaff")
	colorLast       = drawing.ColorFromHex("ffaa00")
	colorFair       = drawing.ColorFromHex("00ff88")
	colorVolume     = drawing.ColorFromHex("ffaa00").WithAlpha(153)
)

// Options size the output image.
type Options struct {
	Width  int
	Height int
	// Location is used for the HH:MM axis labels; nil means UTC.
	Location *time.Location
}

// Renderer draws a price panel above a volume panel into one PNG.
type Renderer struct {
	opts Options
}

// NewRenderer constructs a Renderer with defaults for unset options.
func NewRenderer(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 1000
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Renderer{opts: opts}
}

// RenderRaw parses a kline payload and renders it.
func (r *Renderer) RenderRaw(symbol string, raw json.RawMessage, last, fair float64) ([]byte, error) {
	candles, err := market.ParseCandles(raw)
	if err != nil {
		return nil, err
	}
	return r.Render(symbol, candles, last, fair)
}

// Render returns PNG bytes for the candles with last/fair reference lines.
func (r *Renderer) Render(symbol string, candles []market.Candle, last, fair float64) (out []byte, err error) {
	if len(candles) < 2 {
		return nil, ErrNotEnoughData
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &RenderError{Panel: "chart", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	priceHeight := r.opts.Height * 3 / 4
	volumeHeight := r.opts.Height - priceHeight

	times := make([]time.Time, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		times[i] = c.Time
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	pricePNG, err := r.renderPrice(symbol, times, closes, last, fair, priceHeight)
	if err != nil {
		return nil, &RenderError{Panel: "price", Err: err}
	}

	volumePNG, err := r.renderVolume(times, volumes, volumeHeight)
	if err != nil {
		return nil, &RenderError{Panel: "volume", Err: err}
	}

	combined, err := stack(r.opts.Width, pricePNG, volumePNG)
	if err != nil {
		return nil, &RenderError{Panel: "compose", Err: err}
	}
	return combined, nil
}

func (r *Renderer) renderPrice(symbol string, times []time.Time, closes []float64, last, fair float64, height int) ([]byte, error) {
	start, end := times[0], times[len(times)-1]
	lo, hi := priceRange(closes, last, fair)

	graph := chart.Chart{
		Title:      fmt.Sprintf("%s Price Chart", symbol),
		TitleStyle: chart.Style{FontColor: colorText, FontSize: 14},
		Width:      r.opts.Width,
		Height:     height,
		Background: chart.Style{
			FillColor: colorBackground,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 10},
		},
		Canvas: chart.Style{FillColor: colorCanvas},
		XAxis: chart.XAxis{
			Style:          axisStyle(),
			ValueFormatter: r.timeFormatter,
			GridMajorStyle: gridStyle(),
		},
		YAxis: chart.YAxis{
			Name:           "Price (USDT)",
			NameStyle:      chart.Style{FontColor: colorText},
			Style:          axisStyle(),
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: lo, Max: hi},
			GridMajorStyle: gridStyle(),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				Style:   chart.Style{StrokeColor: colorPrice, StrokeWidth: 2},
				XValues: times,
				YValues: closes,
			},
			referenceLine(fmt.Sprintf("Last: $%.4f", last), start, end, last, colorLast),
			referenceLine(fmt.Sprintf("Fair: $%.4f", fair), start, end, fair, colorFair),
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph, chart.Style{
		FillColor:   colorLegend,
		FontColor:   colorText,
		StrokeColor: colorLegend,
	})}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderVolume(times []time.Time, volumes []float64, height int) ([]byte, error) {
	maxVolume := 0.0
	for _, v := range volumes {
		maxVolume = math.Max(maxVolume, v)
	}
	if maxVolume <= 0 {
		return r.renderNoVolume(times, height)
	}

	bars := make([]chart.Value, len(volumes))
	labelEvery := max(1, len(volumes)/6)
	for i, v := range volumes {
		label := ""
		if i%labelEvery == 0 {
			label = times[i].In(r.opts.Location).Format("15:04")
		}
		bars[i] = chart.Value{
			Label: label,
			Value: v,
			Style: chart.Style{FillColor: colorVolume, StrokeColor: colorVolume},
		}
	}

	barWidth := max(2, (r.opts.Width-200)/(len(bars)*2))
	graph := chart.BarChart{
		Width:      r.opts.Width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barWidth,
		Background: chart.Style{
			FillColor: colorBackground,
			Padding:   chart.Box{Top: 10, Left: 20, Right: 20, Bottom: 10},
		},
		Canvas: chart.Style{FillColor: colorCanvas},
		XAxis:  chart.Style{FontColor: colorText, StrokeColor: colorMuted, FontSize: 8},
		YAxis: chart.YAxis{
			Name:           "Volume",
			Style:          axisStyle(),
			ValueFormatter: volumeFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: maxVolume * 1.1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderNoVolume draws a flat placeholder when the source carried no volume.
func (r *Renderer) renderNoVolume(times []time.Time, height int) ([]byte, error) {
	ones := make([]float64, len(times))
	for i := range ones {
		ones[i] = 1
	}
	mid := times[0].Add(times[len(times)-1].Sub(times[0]) / 2)

	graph := chart.Chart{
		Width:  r.opts.Width,
		Height: height,
		Background: chart.Style{
			FillColor: colorBackground,
			Padding:   chart.Box{Top: 10, Left: 20, Right: 20, Bottom: 10},
		},
		Canvas: chart.Style{FillColor: colorCanvas},
		XAxis: chart.XAxis{
			Style:          axisStyle(),
			ValueFormatter: r.timeFormatter,
		},
		YAxis: chart.YAxis{
			Name:  "Volume",
			Style: axisStyle(),
			Range: &chart.ContinuousRange{Min: 0, Max: 2},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Style:   chart.Style{StrokeColor: colorLast.WithAlpha(77), StrokeWidth: 1},
				XValues: times,
				YValues: ones,
			},
			chart.AnnotationSeries{
				Style: chart.Style{FontColor: colorMuted, FillColor: colorCanvas, StrokeColor: colorCanvas},
				Annotations: []chart.Value2{{
					XValue: float64(mid.UnixNano()),
					YValue: 1.5,
					Label:  "No volume data",
				}},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) timeFormatter(v interface{}) string {
	switch typed := v.(type) {
	case time.Time:
		return typed.In(r.opts.Location).Format("15:04")
	case float64:
		return time.Unix(0, int64(typed)).In(r.opts.Location).Format("15:04")
	default:
		return ""
	}
}

func priceFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	switch {
	case math.Abs(f) >= 1000:
		return fmt.Sprintf("%.0f", f)
	case math.Abs(f) >= 1:
		return fmt.Sprintf("%.2f", f)
	default:
		return fmt.Sprintf("%.6f", f)
	}
}

func volumeFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	switch {
	case f >= 1e9:
		return fmt.Sprintf("%.1fB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.1fK", f/1e3)
	default:
		return fmt.Sprintf("%.0f", f)
	}
}

func referenceLine(name string, start, end time.Time, value float64, color drawing.Color) chart.TimeSeries {
	return chart.TimeSeries{
		Name: name,
		Style: chart.Style{
			StrokeColor:     color.WithAlpha(204),
			StrokeWidth:     2,
			StrokeDashArray: []float64{6, 4},
		},
		XValues: []time.Time{start, end},
		YValues: []float64{value, value},
	}
}

func axisStyle() chart.Style {
	return chart.Style{FontColor: colorText, StrokeColor: colorMuted}
}

func gridStyle() chart.Style {
	return chart.Style{StrokeColor: colorGrid, StrokeWidth: 1, StrokeDashArray: []float64{3, 3}}
}

// priceRange pads the data extent so flat series still have a drawable range.
func priceRange(closes []float64, last, fair float64) (float64, float64) {
	lo, hi := math.Min(last, fair), math.Max(last, fair)
	for _, c := range closes {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Abs(hi) * 0.01
	}
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

func stack(width int, panels ...[]byte) ([]byte, error) {
	images := make([]image.Image, 0, len(panels))
	total := 0
	for _, p := range panels {
		img, err := png.Decode(bytes.NewReader(p))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
		total += img.Bounds().Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, total))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	y := 0
	for _, img := range images {
		b := img.Bounds()
		draw.Draw(canvas, image.Rect(0, y, b.Dx(), y+b.Dy()), img, b.Min, draw.Over)
		y += b.Dy()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

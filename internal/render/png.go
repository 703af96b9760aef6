// Package render draws chart payloads outside the browser: PNG export through
// go-chart and a terminal drawer for the CLI.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/seuros/scalex/internal/chart"
)

// ErrNothingToRender is returned for payloads without a single value.
var ErrNothingToRender = errors.New("nothing to render")

// PNG renders the payload as a line chart, one line per series, x ticks taken
// from the labels. Missing values leave gaps; auxiliary series are dashed.
func PNG(p chart.Payload, meta chart.DisplayMeta, width, height int) ([]byte, error) {
	if meta.Error != "" {
		return nil, fmt.Errorf("%w: chart in error state: %s", ErrNothingToRender, meta.Error)
	}
	p = p.Clone().Normalize()

	series := make([]gochart.Series, 0, len(p.Series))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range p.Series {
		xs, ys := points(s.Values)
		if len(xs) == 0 {
			continue
		}
		for _, y := range ys {
			lo, hi = math.Min(lo, y), math.Max(hi, y)
		}
		// go-chart needs two x values for a valid range.
		if len(xs) == 1 {
			xs = append(xs, xs[0]+0.01)
			ys = append(ys, ys[0])
		}
		style := gochart.Style{
			StrokeColor: gochart.GetDefaultColor(i),
			StrokeWidth: 2,
			DotColor:    gochart.GetDefaultColor(i),
			DotWidth:    3,
		}
		if s.StyleHints["role"] == "auxiliary" {
			style.StrokeDashArray = []float64{5, 5}
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   style,
		})
	}
	if len(series) == 0 {
		return nil, ErrNothingToRender
	}

	ticks := make([]gochart.Tick, 0, len(p.Labels))
	for i, label := range p.Labels {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: label})
	}

	title := meta.Title
	if meta.Subtitle != "" {
		title = strings.TrimSpace(title + " (" + meta.Subtitle + ")")
	}

	ch := gochart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{Min: -0.5, Max: float64(len(p.Labels)) - 0.5},
		},
		Series: series,
	}
	if lo == hi {
		ch.YAxis.Range = &gochart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %q: %w", meta.Title, err)
	}
	return buf.Bytes(), nil
}

func points(values []*float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(values))
	ys := make([]float64, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, *v)
	}
	return xs, ys
}

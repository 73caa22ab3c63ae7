// Package charts renders per-metric trend lines as PNG images. Rendering is
// pure: same series in, an equivalent image out, and no failure modes the
// pipeline cares about beyond PNG encoding.
package charts

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

type Renderer struct {
	width  int
	height int
}

func NewRenderer() *Renderer {
	return &Renderer{width: 800, height: 500}
}

const (
	marginLeft   = 60.0
	marginRight  = 30.0
	marginTop    = 50.0
	marginBottom = 80.0
)

// Line draws one trend line over the labeled values, in input order.
func (r *Renderer) Line(title string, labels []string, values []float64) ([]byte, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(r.width) - marginLeft - marginRight
	plotH := float64(r.height) - marginTop - marginBottom

	lo, hi := bounds(values)

	toX := func(i int) float64 {
		if len(values) <= 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + plotW*float64(i)/float64(len(values)-1)
	}
	toY := func(v float64) float64 {
		if hi == lo {
			return marginTop + plotH/2
		}
		return marginTop + plotH*(1-(v-lo)/(hi-lo))
	}

	// horizontal grid + y tick labels
	dc.SetLineWidth(1)
	for t := 0; t <= 5; t++ {
		val := lo + (hi-lo)*float64(t)/5
		y := toY(val)
		dc.SetRGB(0.88, 0.88, 0.88)
		dc.DrawLine(marginLeft, y, float64(r.width)-marginRight, y)
		dc.Stroke()
		dc.SetRGB(0.25, 0.25, 0.25)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", val), marginLeft-8, y, 1, 0.5)
	}

	// axes
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.SetLineWidth(1.5)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	// series polyline with point markers
	dc.SetRGB(0.14, 0.38, 0.72)
	dc.SetLineWidth(2)
	for i := 1; i < len(values); i++ {
		dc.DrawLine(toX(i-1), toY(values[i-1]), toX(i), toY(values[i]))
		dc.Stroke()
	}
	for i, v := range values {
		dc.DrawCircle(toX(i), toY(v), 3.5)
		dc.Fill()
	}

	// x labels, thinned so they stay readable
	dc.SetRGB(0.25, 0.25, 0.25)
	stride := 1
	if len(labels) > 12 {
		stride = (len(labels) + 11) / 12
	}
	for i, label := range labels {
		if i%stride != 0 {
			continue
		}
		dc.DrawStringAnchored(clip(label, 14), toX(i), marginTop+plotH+18, 0.5, 0.5)
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(r.width)/2, marginTop/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

// Bar draws one labeled bar per value. The value axis starts at zero and
// always reaches past 5 so score charts stay comparable across reports.
func (r *Renderer) Bar(title string, labels []string, values []float64) ([]byte, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(r.width) - marginLeft - marginRight
	plotH := float64(r.height) - marginTop - marginBottom

	hi := 5.5
	for _, v := range values {
		if v*1.1 > hi {
			hi = v * 1.1
		}
	}
	toY := func(v float64) float64 {
		return marginTop + plotH*(1-v/hi)
	}

	// horizontal grid + y tick labels
	dc.SetLineWidth(1)
	for t := 0; t <= 5; t++ {
		val := hi * float64(t) / 5
		y := toY(val)
		dc.SetRGB(0.88, 0.88, 0.88)
		dc.DrawLine(marginLeft, y, float64(r.width)-marginRight, y)
		dc.Stroke()
		dc.SetRGB(0.25, 0.25, 0.25)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", val), marginLeft-8, y, 1, 0.5)
	}

	// axes
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.SetLineWidth(1.5)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	if len(values) > 0 {
		bw := plotW / float64(len(values))
		dc.SetRGB(0.14, 0.38, 0.72)
		for i, v := range values {
			x := marginLeft + bw*float64(i) + bw*0.2
			y := toY(v)
			dc.DrawRectangle(x, y, bw*0.6, marginTop+plotH-y)
			dc.Fill()
		}
		dc.SetRGB(0.25, 0.25, 0.25)
		for i, label := range labels {
			dc.DrawStringAnchored(clip(label, 14), marginLeft+bw*(float64(i)+0.5), marginTop+plotH+18, 0.5, 0.5)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(r.width)/2, marginTop/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

// Box draws a horizontal box plot of the values: whiskers at min and max, a
// box from the first to the third quartile, a line at the median.
func (r *Renderer) Box(title string, values []float64) ([]byte, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(r.width) - marginLeft - marginRight
	plotH := float64(r.height) - marginTop - marginBottom

	lo, hi := bounds(values)
	toX := func(v float64) float64 {
		return marginLeft + plotW*(v-lo)/(hi-lo)
	}

	// x tick labels
	dc.SetLineWidth(1)
	for t := 0; t <= 5; t++ {
		val := lo + (hi-lo)*float64(t)/5
		x := toX(val)
		dc.SetRGB(0.88, 0.88, 0.88)
		dc.DrawLine(x, marginTop, x, marginTop+plotH)
		dc.Stroke()
		dc.SetRGB(0.25, 0.25, 0.25)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", val), x, marginTop+plotH+18, 0.5, 0.5)
	}

	if len(values) > 0 {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		med := quantile(sorted, 0.5)
		q3 := quantile(sorted, 0.75)
		min, max := sorted[0], sorted[len(sorted)-1]

		midY := marginTop + plotH/2
		boxH := plotH * 0.35
		capH := boxH * 0.5

		dc.SetRGB(0.1, 0.1, 0.1)
		dc.SetLineWidth(1.5)
		dc.DrawLine(toX(min), midY, toX(q1), midY)
		dc.DrawLine(toX(q3), midY, toX(max), midY)
		dc.DrawLine(toX(min), midY-capH/2, toX(min), midY+capH/2)
		dc.DrawLine(toX(max), midY-capH/2, toX(max), midY+capH/2)
		dc.Stroke()

		dc.SetRGB(0.68, 0.85, 0.92)
		dc.DrawRectangle(toX(q1), midY-boxH/2, toX(q3)-toX(q1), boxH)
		dc.Fill()
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawRectangle(toX(q1), midY-boxH/2, toX(q3)-toX(q1), boxH)
		dc.Stroke()
		dc.DrawLine(toX(med), midY-boxH/2, toX(med), midY+boxH/2)
		dc.Stroke()
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(r.width)/2, marginTop/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart png: %w", err)
	}
	return buf.Bytes(), nil
}

// quantile interpolates linearly between closest ranks over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := q * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// bounds pads the value range a little so points never sit on the border.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(values) == 0 {
		return 0, 1
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

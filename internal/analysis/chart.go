package analysis

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	responderColor    = color.RGBA{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff} // green
	nonResponderColor = color.RGBA{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff} // red
)

// boxGroup holds the per-sample percentages of one
// (population, sample type) combination, split by response.
type boxGroup struct {
	label         string
	responders    []float64
	nonResponders []float64
}

// renderBoxChart draws side-by-side box plots per combination, responders
// in green and non-responders in red, and encodes the figure as PNG.
func renderBoxChart(title string, groups []boxGroup) (*Chart, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("no groups to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Relative frequency (%)"
	p.Y.Min = 0

	boxWidth := vg.Points(16)
	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = g.label
		if len(g.responders) > 0 {
			box, err := plotter.NewBoxPlot(boxWidth, float64(i)-0.18, plotter.Values(g.responders))
			if err != nil {
				return nil, fmt.Errorf("box plot for %s responders: %w", g.label, err)
			}
			box.FillColor = responderColor
			p.Add(box)
		}
		if len(g.nonResponders) > 0 {
			box, err := plotter.NewBoxPlot(boxWidth, float64(i)+0.18, plotter.Values(g.nonResponders))
			if err != nil {
				return nil, fmt.Errorf("box plot for %s non-responders: %w", g.label, err)
			}
			box.FillColor = nonResponderColor
			p.Add(box)
		}
	}
	p.NominalX(labels...)

	width := vg.Points(float64(120*len(groups) + 120))
	height := vg.Points(420)
	writer, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return &Chart{Format: "png", Data: buf.Bytes()}, nil
}

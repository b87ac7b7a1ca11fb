package gesture

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotFormats lists the image formats WritePlot accepts.
var PlotFormats = []string{"png", "svg", "pdf"}

// WritePlot renders a drag plan in screen coordinates (y grows downward):
// the raw trajectory as a line and the speed-shaped points as dots, whose
// spacing shows the speed profile.
func WritePlot(w io.Writer, title string, plan Plan, format string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(plotter.NewGrid())

	raw, err := plotter.NewLine(xys(plan.Raw))
	if err != nil {
		return fmt.Errorf("plot trajectory: %w", err)
	}
	raw.LineStyle.Width = vg.Points(1)
	raw.LineStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}

	shaped, err := plotter.NewScatter(xys(plan.Points))
	if err != nil {
		return fmt.Errorf("plot samples: %w", err)
	}
	shaped.GlyphStyle.Radius = vg.Points(2)
	shaped.GlyphStyle.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}

	p.Add(raw, shaped)
	p.Legend.Add("trajectory", raw)
	p.Legend.Add(fmt.Sprintf("samples (%d)", len(plan.Points)), shaped)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

func xys(points []Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, p := range points {
		out[i].X, out[i].Y = p.X, p.Y
	}
	return out
}

// Package chart renders sweep results as scatter plots with gonum/plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/weiihann/sweepbench/harness"
	"github.com/weiihann/sweepbench/report"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

// ErrNoPoints means every step of a sweep failed, leaving nothing to plot.
var ErrNoPoints = errors.New("no points to plot")

// Point is one plotted step. Label is shown on categorical axes.
type Point struct {
	Label string
	X     float64
	Y     float64
}

// Renderer writes a chart of pts to path.
type Renderer interface {
	Render(path string, pts []Point) error
}

// Formats lists the accepted output file extensions.
func Formats() []string {
	return []string{"png", "svg", "pdf", "eps", "jpg", "jpeg", "tif", "tiff"}
}

// Points turns results into (parameter, seconds) pairs, dropping steps
// without a duration. With numeric set the labels are parsed as X values;
// otherwise X is the step position, starting at 1.
func Points(results []harness.RunResult, numeric bool) ([]Point, error) {
	pts := make([]Point, 0, len(results))

	for i, r := range results {
		d, ok := r.Duration()
		if !ok {
			continue
		}

		x := float64(i + 1)
		if numeric {
			v, err := strconv.ParseFloat(r.Label, 64)
			if err != nil {
				return nil, fmt.Errorf("label %q is not numeric: %w", r.Label, err)
			}

			x = v
		}

		pts = append(pts, Point{Label: r.Label, X: x, Y: d})
	}

	return pts, nil
}

// ScalingPoints returns t1/tN against the thread count for a thread sweep.
// The first step is the baseline and must have succeeded.
func ScalingPoints(results []harness.RunResult) ([]Point, error) {
	speedups, err := report.Speedups(results)
	if err != nil {
		return nil, err
	}

	pts := make([]Point, 0, len(results))

	for i, r := range results {
		if math.IsNaN(speedups[i]) {
			continue
		}

		x, err := strconv.ParseFloat(r.Label, 64)
		if err != nil {
			return nil, fmt.Errorf("label %q is not numeric: %w", r.Label, err)
		}

		pts = append(pts, Point{Label: r.Label, X: x, Y: speedups[i]})
	}

	return pts, nil
}

// Scatter plots points joined by a line. Categorical charts label the X axis
// with the point labels, rotated so long flag names stay readable.
type Scatter struct {
	Title       string
	XLabel      string
	YLabel      string
	Categorical bool
	LogX        bool
	Width       vg.Length
	Height      vg.Length
}

// Render implements Renderer. The image format follows the file extension.
func (s Scatter) Render(path string, pts []Point) error {
	if len(pts) == 0 {
		return ErrNoPoints
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !isFormat(ext) {
		return fmt.Errorf("unsupported chart format %q (want one of %s)",
			ext, strings.Join(Formats(), ", "))
	}

	p, err := s.plot(pts)
	if err != nil {
		return err
	}

	width, height := s.Width, s.Height
	if width == 0 {
		width = 8 * vg.Inch
	}

	if height == 0 {
		height = 5 * vg.Inch
	}

	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}

	return nil
}

func (s Scatter) plot(pts []Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel
	p.Y.Min = 0

	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		if s.LogX && pt.X <= 0 {
			return nil, fmt.Errorf("point %q has x=%g, log axis needs positive values", pt.Label, pt.X)
		}

		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}

	line, scatter, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("build plot: %w", err)
	}

	line.LineStyle.Color = color.RGBA{R: 50, G: 100, B: 200, A: 255}
	line.LineStyle.Width = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{R: 200, G: 50, B: 50, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(plotter.NewGrid(), line, scatter)

	switch {
	case s.Categorical:
		p.X.Tick.Marker = labelTicks(pts)
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = text.XRight
		p.X.Min = pts[0].X - 0.5
		p.X.Max = pts[len(pts)-1].X + 0.5

	case s.LogX:
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	return p, nil
}

// labelTicks places one labelled tick at each point's X position.
type labelTicks []Point

func (t labelTicks) Ticks(lo, hi float64) []plot.Tick {
	ticks := make([]plot.Tick, 0, len(t))

	for _, pt := range t {
		if pt.X < lo || pt.X > hi {
			continue
		}

		ticks = append(ticks, plot.Tick{Value: pt.X, Label: pt.Label})
	}

	return ticks
}

func isFormat(ext string) bool {
	return slices.Contains(Formats(), ext)
}

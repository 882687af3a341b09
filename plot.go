package main

import (
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"

	"linescale-gui/internal/protocol"
	"linescale-gui/internal/recording"
)

// forcePlot draws the readings of the last window as a polyline. It is
// redrawn by a ticker rather than per reading.
type forcePlot struct {
	rec     *recording.Buffer
	window  time.Duration
	content *fyne.Container
	bg      *canvas.Rectangle
	now     func() time.Time
}

func newForcePlot(rec *recording.Buffer, window time.Duration) *forcePlot {
	bg := canvas.NewRectangle(theme.Color(theme.ColorNameInputBackground))
	return &forcePlot{
		rec:     rec,
		window:  window,
		content: container.NewWithoutLayout(bg),
		bg:      bg,
		now:     time.Now,
	}
}

func (p *forcePlot) CanvasObject() fyne.CanvasObject {
	return p.content
}

// redraw must run on the Fyne thread.
func (p *forcePlot) redraw() {
	size := p.content.Size()
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	p.bg.Resize(size)

	now := p.now()
	points := plotPoints(p.rec.Since(now.Add(-p.window)), now, p.window, size)

	objects := make([]fyne.CanvasObject, 0, len(points))
	objects = append(objects, p.bg)
	stroke := theme.Color(theme.ColorNamePrimary)
	for i := 1; i < len(points); i++ {
		l := canvas.NewLine(stroke)
		l.StrokeWidth = 2
		l.Position1 = points[i-1]
		l.Position2 = points[i]
		objects = append(objects, l)
	}
	p.content.Objects = objects
	p.content.Refresh()
}

// plotPoints maps readings onto size. Time runs left to right ending at now;
// the value axis always includes zero.
func plotPoints(readings []protocol.Reading, now time.Time, window time.Duration, size fyne.Size) []fyne.Position {
	if len(readings) == 0 || window <= 0 {
		return nil
	}

	lo, hi := 0.0, 0.0
	for _, r := range readings {
		if r.Value < lo {
			lo = r.Value
		}
		if r.Value > hi {
			hi = r.Value
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	span := hi - lo
	hi += span * 0.05
	lo -= span * 0.05

	start := now.Add(-window)
	points := make([]fyne.Position, 0, len(readings))
	for _, r := range readings {
		x := float32(float64(r.At.Sub(start)) / float64(window) * float64(size.Width))
		y := float32((hi - r.Value) / (hi - lo) * float64(size.Height))
		points = append(points, fyne.NewPos(x, y))
	}
	return points
}

// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// PlotSpec selects the columns to draw. Each Y column gets its own panel,
// side by side, sharing the X column.
type PlotSpec struct {
	X      string
	Y      []string
	Width  vg.Length // per panel; zero means 5 in
	Height vg.Length // zero means 4 in
	DPI    int       // zero means 300
}

var lineColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}

// PlotPNG renders ds according to spec as a PNG.
func PlotPNG(ds *Dataset, spec PlotSpec, w io.Writer) error {
	if len(spec.Y) == 0 {
		return fmt.Errorf("no Y columns to plot")
	}
	xs := ds.Column(spec.X)
	if xs == nil {
		return fmt.Errorf("no column %q", spec.X)
	}
	width, height, dpi := spec.Width, spec.Height, spec.DPI
	if width == 0 {
		width = 5 * vg.Inch
	}
	if height == 0 {
		height = 4 * vg.Inch
	}
	if dpi == 0 {
		dpi = 300
	}

	row := make([]*plot.Plot, 0, len(spec.Y))
	for _, name := range spec.Y {
		ys := ds.Column(name)
		if ys == nil {
			return fmt.Errorf("no column %q", name)
		}
		p := plot.New()
		p.X.Label.Text = spec.X
		p.Y.Label.Text = name

		if len(xs) > 0 {
			pts := make(plotter.XYs, len(xs))
			for i := range xs {
				pts[i].X = xs[i]
				pts[i].Y = ys[i]
			}
			line, points, err := plotter.NewLinePoints(pts)
			if err != nil {
				return fmt.Errorf("%s vs %s: %w", name, spec.X, err)
			}
			line.Color = lineColor
			points.Color = lineColor
			points.Shape = draw.CircleGlyph{}
			p.Add(line, points)
		}
		row = append(row, p)
	}

	img := vgimg.NewWith(
		vgimg.UseWH(width*vg.Length(len(row)), height),
		vgimg.UseDPI(dpi),
	)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(row),
		PadX: vg.Millimeter * 5,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align([][]*plot.Plot{row}, tiles, dc)
	for i, p := range row {
		p.Draw(canvases[0][i])
	}
	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/star/orbitview/internal/orbit"
)

// cellKind selects the style of a canvas cell. Higher kinds win when two
// glyphs land on the same cell.
type cellKind int

const (
	cellEmpty cellKind = iota
	cellGlobe
	cellRim
	cellPath
	cellMarker
	cellObject
	cellSelected
)

var kindStyles = map[cellKind]lipgloss.Style{
	cellEmpty:    lipgloss.NewStyle(),
	cellGlobe:    lipgloss.NewStyle().Foreground(lipgloss.Color("24")),  // deep blue
	cellRim:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),  // sky blue
	cellPath:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // amber
	cellMarker:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")), // coral
	cellObject:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
	cellSelected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
}

type cell struct {
	r    rune
	kind cellKind
}

// camera is an orbit camera around the globe: yaw about the renderer Y axis,
// then pitch about the screen X axis, looking down -Z.
type camera struct {
	yaw, pitch float64
	zoom       float64
}

// project maps a renderer-space point to view space. depth > 0 is toward the
// viewer.
func (c camera) project(p orbit.Position3D) (x, y, depth float64) {
	sy, cy := math.Sincos(c.yaw)
	x = p.X*cy + p.Z*sy
	z := -p.X*sy + p.Z*cy

	sp, cp := math.Sincos(c.pitch)
	y = p.Y*cp - z*sp
	depth = p.Y*sp + z*cp
	return x, y, depth
}

// canvas is a character grid with its own projection.
type canvas struct {
	w, h   int
	cells  [][]cell
	cam    camera
	radius float64 // globe display radius
	scale  float64 // rows per renderer unit
}

func newCanvas(w, h int, cam camera, radius float64) *canvas {
	c := &canvas{w: w, h: h, cam: cam, radius: radius}
	c.cells = make([][]cell, h)
	for y := range c.cells {
		c.cells[y] = make([]cell, w)
		for x := range c.cells[y] {
			c.cells[y][x] = cell{r: ' '}
		}
	}
	// Terminal cells are about twice as tall as wide, so columns use 2x.
	fit := math.Min(float64(w)/4, float64(h)/2)
	c.scale = cam.zoom * fit / (radius * 1.6)
	return c
}

// screen converts view-space coordinates to a cell, reporting false when
// off-canvas.
func (c *canvas) screen(x, y float64) (col, row int, ok bool) {
	col = int(math.Round(float64(c.w)/2 + x*c.scale*2))
	row = int(math.Round(float64(c.h)/2 - y*c.scale))
	return col, row, col >= 0 && col < c.w && row >= 0 && row < c.h
}

// occluded reports whether the globe hides a projected point.
func (c *canvas) occluded(x, y, depth float64) bool {
	return depth < 0 && x*x+y*y < c.radius*c.radius
}

func (c *canvas) set(col, row int, r rune, kind cellKind) {
	if c.cells[row][col].kind > kind {
		return
	}
	c.cells[row][col] = cell{r: r, kind: kind}
}

// plot draws p if it is visible.
func (c *canvas) plot(p orbit.Position3D, r rune, kind cellKind) bool {
	x, y, d := c.cam.project(p)
	if c.occluded(x, y, d) {
		return false
	}
	col, row, ok := c.screen(x, y)
	if !ok {
		return false
	}
	c.set(col, row, r, kind)
	return true
}

// drawGlobe shades the globe disc and its rim.
func (c *canvas) drawGlobe() {
	r2 := c.radius * c.radius
	for row := 0; row < c.h; row++ {
		for col := 0; col < c.w; col++ {
			x := (float64(col) - float64(c.w)/2) / (c.scale * 2)
			y := (float64(c.h)/2 - float64(row)) / c.scale
			if x*x+y*y <= r2 {
				c.set(col, row, '·', cellGlobe)
			}
		}
	}
	steps := int(math.Max(64, 2*math.Pi*c.radius*c.scale*2))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		s, co := math.Sincos(a)
		if col, row, ok := c.screen(co*c.radius, s*c.radius); ok {
			c.set(col, row, '○', cellRim)
		}
	}
}

// drawPath draws a polyline by plotting each vertex and interpolated points
// between them.
func (c *canvas) drawPath(path orbit.Path) {
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		for k := 0; k < 4; k++ {
			t := float64(k) / 4
			c.plot(orbit.Position3D{
				X: a.X + (b.X-a.X)*t,
				Y: a.Y + (b.Y-a.Y)*t,
				Z: a.Z + (b.Z-a.Z)*t,
			}, '∙', cellPath)
		}
	}
}

// String renders the canvas with styles applied to runs of equal kind.
func (c *canvas) String() string {
	var b strings.Builder
	for row, cells := range c.cells {
		if row > 0 {
			b.WriteByte('\n')
		}
		start := 0
		for i := 1; i <= len(cells); i++ {
			if i < len(cells) && cells[i].kind == cells[start].kind {
				continue
			}
			run := make([]rune, 0, i-start)
			for _, cl := range cells[start:i] {
				run = append(run, cl.r)
			}
			b.WriteString(kindStyles[cells[start].kind].Render(string(run)))
			start = i
		}
	}
	return b.String()
}

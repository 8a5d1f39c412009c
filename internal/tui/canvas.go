package tui

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// canvas is a character grid over a world-space window in the XY plane.
type canvas struct {
	cells      [][]rune
	w, h       int
	minX, maxX float64
	minY, maxY float64
}

func newCanvas(w, h int, minX, maxX, minY, maxY float64) *canvas {
	cells := make([][]rune, h)
	for i := range cells {
		cells[i] = []rune(strings.Repeat(" ", w))
	}
	return &canvas{cells: cells, w: w, h: h, minX: minX, maxX: maxX, minY: minY, maxY: maxY}
}

// project maps a world position to a cell. Z is dropped.
func (c *canvas) project(p mgl64.Vec3) (int, int) {
	x := (p.X() - c.minX) / (c.maxX - c.minX) * float64(c.w-1)
	y := (c.maxY - p.Y()) / (c.maxY - c.minY) * float64(c.h-1)
	return int(x + 0.5), int(y + 0.5)
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) point(p mgl64.Vec3, r rune) {
	x, y := c.project(p)
	c.set(x, y, r)
}

func (c *canvas) segment(a, b mgl64.Vec3, r rune) {
	x1, y1 := c.project(a)
	x2, y2 := c.project(b)
	c.line(x1, y1, x2, y2, r)
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// floor draws a horizontal line at world height y.
func (c *canvas) floor(y float64, r rune) {
	_, row := c.project(mgl64.Vec3{c.minX, y, 0})
	for x := 0; x < c.w; x++ {
		c.set(x, row, r)
	}
}

func (c *canvas) rows() []string {
	out := make([]string, c.h)
	for i, row := range c.cells {
		out[i] = string(row)
	}
	return out
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	var sb strings.Builder
	for _, v := range data {
		idx := int((v - minVal) / rang * 7)
		sb.WriteRune(chars[max(0, min(idx, 7))])
	}
	return sb.String()
}

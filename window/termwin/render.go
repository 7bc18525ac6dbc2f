package termwin

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"
)

const halfBlock = "▀"

type rgb struct {
	R, G, B uint8
}

func (c rgb) color() lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// cell is one terminal cell: two stacked pixels.
type cell struct {
	Top, Bottom rgb
}

// fit returns the largest cols x rows cell grid within maxCols x maxRows
// that keeps the frame's aspect ratio. A cell is one pixel wide and two
// pixels tall. Frames smaller than the terminal are not enlarged.
func fit(width, height, maxCols, maxRows int) (int, int) {
	if width <= 0 || height <= 0 || maxCols <= 0 || maxRows <= 0 {
		return 0, 0
	}
	cols, pixRows := width, height
	if cols > maxCols {
		pixRows = pixRows * maxCols / cols
		cols = maxCols
	}
	if pixRows > maxRows*2 {
		cols = cols * maxRows * 2 / pixRows
		pixRows = maxRows * 2
	}
	if cols < 1 {
		cols = 1
	}
	rows := (pixRows + 1) / 2
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// sample scales an RGBA frame to a cols x rows grid of cells with
// nearest-neighbour sampling. Alpha is ignored.
func sample(frame []byte, width, height, cols, rows int) [][]cell {
	if cols <= 0 || rows <= 0 || width <= 0 || height <= 0 || len(frame) < width*height*4 {
		return nil
	}
	src := &image.RGBA{Pix: frame, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	pixel := func(x, y int) rgb {
		i := dst.PixOffset(x, y)
		return rgb{dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2]}
	}
	grid := make([][]cell, rows)
	for r := range grid {
		line := make([]cell, cols)
		for c := range line {
			line[c] = cell{Top: pixel(c, r*2), Bottom: pixel(c, r*2+1)}
		}
		grid[r] = line
	}
	return grid
}

// renderCells draws the grid, one styled run per stretch of identical
// cells.
func renderCells(grid [][]cell) string {
	var b strings.Builder
	for _, line := range grid {
		for start := 0; start < len(line); {
			end := start + 1
			for end < len(line) && line[end] == line[start] {
				end++
			}
			style := lipgloss.NewStyle().
				Foreground(line[start].Top.color()).
				Background(line[start].Bottom.color())
			b.WriteString(style.Render(strings.Repeat(halfBlock, end-start)))
			start = end
		}
		b.WriteByte('\n')
	}
	return b.String()
}

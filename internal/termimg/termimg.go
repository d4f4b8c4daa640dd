// Package termimg draws bitmaps in a terminal using upper half-block cells,
// two pixels per cell.
package termimg

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"
)

const halfBlock = "▀"

// Fit returns the pixel size of an w×h image scaled to fit cols×rows cells,
// keeping its aspect ratio. Each cell holds one pixel across and two down.
func Fit(w, h, cols, rows int) (int, int) {
	if w <= 0 || h <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	maxW, maxH := float64(cols), float64(rows*2)
	scale := min(maxW/float64(w), maxH/float64(h))
	pw := max(1, int(math.Round(float64(w)*scale)))
	ph := max(1, int(math.Round(float64(h)*scale)))
	return pw, ph
}

// Render scales img to fit cols×rows cells and returns it as lines of
// half-block characters.
func Render(img image.Image, cols, rows int) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	pw, ph := Fit(b.Dx(), b.Dy(), cols, rows)
	if pw == 0 {
		return ""
	}

	dst := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var sb strings.Builder
	for y := 0; y < ph; y += 2 {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < pw; x++ {
			style := lipgloss.NewStyle().Foreground(hex(dst.RGBAAt(x, y)))
			if y+1 < ph {
				style = style.Background(hex(dst.RGBAAt(x, y+1)))
			}
			sb.WriteString(style.Render(halfBlock))
		}
	}
	return sb.String()
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

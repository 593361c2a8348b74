package legend

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Format is the image encoding of a rendered legend.
type Format string

// Supported formats.
const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat accepts png and webp, case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatPNG, FormatWebP:
		return f, nil
	}
	return "", fmt.Errorf("unsupported legend format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

// Legend is a titled color scale.
type Legend struct {
	Title string
	Scale *Scale
}

const (
	padding    = 8
	swatch     = 14
	rowHeight  = 20
	lineHeight = 16
	minWidth   = 160
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	ink        = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	border     = color.RGBA{R: 0xd1, G: 0xd5, B: 0xdb, A: 0xff}
)

// Draw paints the legend: the title on top, then one swatch per bin with its range.
func Draw(l Legend) *image.RGBA {
	face := basicfont.Face7x13
	bins := l.Scale.Bins()

	labels := make([]string, len(bins))
	width := minWidth
	if w := textWidth(face, l.Title) + 2*padding; w > width {
		width = w
	}
	for i, b := range bins {
		labels[i] = formatNumber(b.From) + " - " + formatNumber(b.To)
		if w := 2*padding + swatch + 6 + textWidth(face, labels[i]); w > width {
			width = w
		}
	}

	top := padding
	if l.Title != "" {
		top += lineHeight + 4
	}
	height := top + len(bins)*rowHeight + padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, xdraw.Src)

	if l.Title != "" {
		drawText(img, face, l.Title, padding, padding+lineHeight-4)
	}

	for i, b := range bins {
		y := top + i*rowHeight
		c, _ := ParseHex(b.Color)

		box := image.Rect(padding, y, padding+swatch, y+swatch)
		xdraw.Draw(img, box, image.NewUniform(border), image.Point{}, xdraw.Src)
		xdraw.Draw(img, box.Inset(1), image.NewUniform(c), image.Point{}, xdraw.Src)

		drawText(img, face, labels[i], padding+swatch+6, y+swatch-2)
	}

	return img
}

// Render draws l and encodes it to w.
func Render(w io.Writer, l Legend, f Format) error {
	if l.Scale == nil {
		return ErrNoValues
	}
	img := Draw(l)

	switch f {
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: true})
	case FormatPNG, "":
		return png.Encode(w, img)
	}
	return fmt.Errorf("unsupported legend format %q", f)
}

func drawText(dst *image.RGBA, face font.Face, s string, x, y int) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

package device

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	tagColor   = color.RGBA{R: 10, G: 10, B: 10, A: 255}
	labelColor = color.RGBA{R: 255, G: 250, B: 250, A: 255}
)

// ScaleFor derives the pixel-per-point ratio of a screenshot from its width.
// Zero or unknown window widths give 1.
func ScaleFor(imgWidth int, window Size) float64 {
	if window.Width <= 0 || imgWidth <= window.Width {
		return 1
	}
	return float64(imgWidth) / float64(window.Width)
}

// LabelScreenshot draws a numbered box over every element so the model can
// refer to elements by index. Bounds are in logical points and scaled to
// the screenshot's pixels. scale <= 0 derives the scale from window.
func LabelScreenshot(pngData []byte, elems []Element, window Size, scale float64) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	b := src.Bounds()
	img := image.NewRGBA(b)
	draw.Draw(img, b, src, b.Min, draw.Src)

	if scale <= 0 {
		scale = ScaleFor(b.Dx(), window)
	}

	for _, e := range elems {
		r := image.Rect(
			int(float64(e.Bounds.X)*scale),
			int(float64(e.Bounds.Y)*scale),
			int(float64(e.Bounds.X+e.Bounds.Width)*scale),
			int(float64(e.Bounds.Y+e.Bounds.Height)*scale),
		).Add(b.Min).Intersect(b)
		if r.Empty() {
			continue
		}
		strokeRect(img, r, 2, boxColor)
		drawTag(img, r, strconv.Itoa(e.Index))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode labelled screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func strokeRect(img *image.RGBA, r image.Rectangle, width int, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(img, edge.Intersect(img.Bounds()), u, image.Point{}, draw.Src)
	}
}

// drawTag paints the index on a dark plate centred in the box.
func drawTag(img *image.RGBA, r image.Rectangle, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Metrics().Height.Ceil()

	c := image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
	plate := image.Rect(c.X-w/2-2, c.Y-h/2-1, c.X+w/2+3, c.Y+h/2+1).Intersect(img.Bounds())
	draw.Draw(img, plate, image.NewUniform(tagColor), image.Point{}, draw.Src)

	d.Dot = fixed.P(c.X-w/2, c.Y+face.Metrics().Ascent.Ceil()/2)
	d.DrawString(text)
}

package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MarkStatus selects the colour of a region outline.
type MarkStatus int

const (
	MarkOK MarkStatus = iota
	MarkUnchecked
	MarkLowConfidence
	MarkOutOfLimits
	MarkMissing
)

// LowConfidence is the confidence under which an accepted value is still
// flagged to the operator.
const LowConfidence = 0.7

// Palette, as shown on the station's results table.
var (
	colorOK        = mustHex("#90EE90")
	colorLow       = mustHex("#FFFF96")
	colorOut       = mustHex("#FF6464")
	colorMissing   = mustHex("#B4B4B4")
	colorUnchecked = mustHex("#87CEEB")
	colorCaption   = mustHex("#000000")
)

// Mark is one annotated region on the overlay.
type Mark struct {
	Spec       RegionSpec
	Status     MarkStatus
	Text       string
	Confidence float64
}

// Color returns the outline colour for the mark. Accepted readings are
// shaded from amber to green by their confidence.
func (m Mark) Color() color.Color {
	switch m.Status {
	case MarkUnchecked:
		return colorUnchecked
	case MarkLowConfidence:
		return colorLow
	case MarkOutOfLimits:
		return colorOut
	case MarkMissing:
		return colorMissing
	}
	t := (m.Confidence - LowConfidence) / (1 - LowConfidence)
	t = max(0, min(1, t))
	return colorLow.BlendLab(colorOK, t).Clamped()
}

// Annotate draws region outlines and captions over a copy of frame.
//
// Each mark's padded, clamped rectangle is outlined with a 2-pixel border and
// captioned with "<name> <text>" just above it (or inside it when the region
// touches the top edge). Marks whose region clamps to nothing are skipped.
func Annotate(frame image.Image, marks []Mark) *image.RGBA {
	if frame == nil {
		return image.NewRGBA(image.Rectangle{})
	}
	b := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	for _, m := range marks {
		rect, ok := m.Spec.Rect(out.Bounds())
		if !ok {
			continue
		}
		c := m.Color()
		strokeRect(out, rect, 2, c)

		caption := m.Spec.Name
		if m.Text != "" {
			caption += " " + m.Text
		}
		y := rect.Min.Y - 3
		if y < 13 {
			y = rect.Min.Y + 13
		}
		DrawCaption(out, rect.Min.X+2, y, caption, c)
	}
	return out
}

// DrawCaption writes text with the 7x13 basic font, baseline at (x, y), on a
// solid background of bg so it stays readable over any frame content.
func DrawCaption(dst draw.Image, x, y int, text string, bg color.Color) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	box := image.Rect(x-1, y-face.Ascent-1, x+width+1, y+face.Descent+1).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(colorCaption),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func strokeRect(img *image.RGBA, r image.Rectangle, width int, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

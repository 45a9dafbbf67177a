package imaging

import (
	"fmt"
	"image"
	"image/draw"
)

var colorGrid = mustHex("#FF3030")

// Grid draws a coordinate grid over a copy of img, for placing the display
// regions. Lines are drawn every spacing pixels and each intersection on
// every second line is captioned "x,y". A spacing below 10 returns a plain
// copy.
func Grid(img image.Image, spacing int) *image.RGBA {
	if img == nil {
		return image.NewRGBA(image.Rectangle{})
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	if spacing < 10 {
		return out
	}

	width, height := out.Bounds().Dx(), out.Bounds().Dy()
	for x := spacing; x < width; x += spacing {
		for y := 0; y < height; y++ {
			out.Set(x, y, colorGrid)
		}
	}
	for y := spacing; y < height; y += spacing {
		for x := 0; x < width; x++ {
			out.Set(x, y, colorGrid)
		}
	}

	for y := 2 * spacing; y < height; y += 2 * spacing {
		for x := 2 * spacing; x < width; x += 2 * spacing {
			DrawCaption(out, x+2, y+12, fmt.Sprintf("%d,%d", x, y), colorGrid)
		}
	}
	return out
}

package imaging

import (
	"image"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/effect"
)

// Default CLAHE parameters used for display digits.
const (
	DefaultClipLimit = 2.0
	DefaultTileGrid  = 8
)

// Enhance prepares a cropped display field for OCR.
//
// The region is converted to grayscale, contrast-normalized with CLAHE
// (DefaultClipLimit, DefaultTileGrid) and denoised with a 3x3 median filter.
// A nil or empty input is returned as an empty *image.Gray.
func Enhance(img image.Image) *image.Gray {
	gray := ToGray(img)
	if gray.Rect.Empty() {
		return gray
	}
	eq := EqualizeAdaptive(gray, DefaultClipLimit, DefaultTileGrid)
	return ToGray(effect.Median(eq, 1))
}

// ToGray converts any image to an 8-bit grayscale copy with bounds starting at (0,0).
func ToGray(img image.Image) *image.Gray {
	if img == nil {
		return image.NewGray(image.Rectangle{})
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// EqualizeAdaptive performs contrast-limited adaptive histogram equalization.
//
// Parameters:
//   - src: grayscale input; it is not modified.
//   - clipLimit: histogram clip factor relative to a flat histogram. Values
//     below 1 disable clipping (plain per-tile equalization).
//   - grid: number of tiles per axis. It is reduced for regions smaller
//     than grid pixels on a side.
//
// # Algorithm
//
//  1. Split the image into grid x grid tiles and build a 256-bin histogram per tile
//  2. Clip each histogram at clipLimit * tileArea / 256 and spread the excess
//     evenly over all bins
//  3. Turn each clipped histogram into a lookup table via its cumulative sum
//  4. Map every pixel by bilinear interpolation between the lookup tables of
//     the four nearest tile centres, which removes block seams
func EqualizeAdaptive(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return out
	}

	gridX := max(1, min(grid, width))
	gridY := max(1, min(grid, height))
	tileW := (width + gridX - 1) / gridX
	tileH := (height + gridY - 1) / gridY

	at := func(x, y int) uint8 {
		return src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(x+b.Min.X-src.Rect.Min.X)]
	}

	luts := make([][256]uint8, gridX*gridY)
	for ty := 0; ty < gridY; ty++ {
		for tx := 0; tx < gridX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, width), min(y0+tileH, height)

			var hist [256]int
			area := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[at(x, y)]++
					area++
				}
			}
			luts[ty*gridX+tx] = tileLUT(hist, area, clipLimit)
		}
	}

	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(math.Floor(fy))
		wy := fy - float64(ty0)
		ty1 := min(ty0+1, gridY-1)
		ty0 = max(ty0, 0)

		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(math.Floor(fx))
			wx := fx - float64(tx0)
			tx1 := min(tx0+1, gridX-1)
			tx0 = max(tx0, 0)

			v := at(x, y)
			top := (1-wx)*float64(luts[ty0*gridX+tx0][v]) + wx*float64(luts[ty0*gridX+tx1][v])
			bottom := (1-wx)*float64(luts[ty1*gridX+tx0][v]) + wx*float64(luts[ty1*gridX+tx1][v])
			out.Pix[y*out.Stride+x] = uint8(math.Round((1-wy)*top + wy*bottom))
		}
	}

	return out
}

// tileLUT clips a tile histogram and converts it to an equalization table.
func tileLUT(hist [256]int, area int, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	if area == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	if clipLimit >= 1 {
		limit := max(1, int(clipLimit*float64(area)/256))
		excess := 0
		for i, n := range hist {
			if n > limit {
				excess += n - limit
				hist[i] = limit
			}
		}
		bonus, residual := excess/256, excess%256
		for i := range hist {
			hist[i] += bonus
		}
		// Residual goes to evenly spaced bins so the total still equals area.
		if residual > 0 {
			step := max(1, 256/residual)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	scale := 255.0 / float64(area)
	sum := 0
	for i, n := range hist {
		sum += n
		lut[i] = uint8(min(255, math.Round(float64(sum)*scale)))
	}
	return lut
}

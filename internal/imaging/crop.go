package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// RegionSpec is a named rectangle of a frame expected to hold one numeric field.
type RegionSpec struct {
	Name string `json:"name" yaml:"name"`
	X    int    `json:"x" yaml:"x"`
	Y    int    `json:"y" yaml:"y"`
	W    int    `json:"w" yaml:"w"`
	H    int    `json:"h" yaml:"h"`
	Pad  int    `json:"pad" yaml:"pad"`
}

// Rect returns the padded rectangle clamped to bounds.
//
// The result is expressed in the same coordinate space as bounds. The second
// return value is false when nothing of the rectangle remains inside the
// frame (or the padded size is not positive).
func (s RegionSpec) Rect(bounds image.Rectangle) (image.Rectangle, bool) {
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, false
	}

	x1 := max(s.X-s.Pad, 0)
	y1 := max(s.Y-s.Pad, 0)
	x2 := min(s.X+s.W+s.Pad, width)
	y2 := min(s.Y+s.H+s.Pad, height)

	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, false
	}

	return image.Rect(x1, y1, x2, y2).Add(bounds.Min), true
}

// Crop extracts the region described by spec from img.
//
// Parameters:
//   - img: The source frame. Any image.Image; bounds need not start at (0,0).
//   - spec: The region in frame coordinates. Pad grows it on every side
//     before clamping.
//
// Returns:
//   - image.Image: A copy of the clamped region whose bounds start at (0,0).
//   - bool: False for a nil or empty image and for a spec that clamps to
//     zero area. Crop never panics on degenerate input.
func Crop(img image.Image, spec RegionSpec) (image.Image, bool) {
	if img == nil {
		return nil, false
	}
	rect, ok := spec.Rect(img.Bounds())
	if !ok {
		return nil, false
	}
	return imaging.Crop(img, rect), true
}

// Package imaging provides the pixel-level operations of the capture pipeline.
//
// This package crops the configured display fields out of a camera frame,
// prepares a cropped field for OCR, draws the region overlay shown to the
// operator, and reads and writes image artifacts. All operations work with
// standard Go image.Image types and use a coordinate system where (0,0) is at
// the top-left corner, X increases rightward, and Y increases downward.
//
// # Regions
//
// A RegionSpec is a named rectangle (x, y, w, h) plus a symmetric pad. Crop
// grows the rectangle by the pad on every side, then clamps it to the frame:
//   - the top-left corner never leaves [0,width-1] x [0,height-1]
//   - the bottom-right corner never passes the frame edge
//   - a rectangle left with zero area yields "no region", not an error
//
// # OCR Preparation
//
// Enhance converts a region to grayscale, applies contrast-limited adaptive
// histogram equalization (clip limit 2.0 on an 8x8 tile grid) and removes
// speckle with a 3x3 median filter. Display digits photographed through glass
// vary in brightness across the field; equalizing per tile keeps faint
// segments readable without blowing out bright ones.
//
// # Calibration Grid
//
// Grid draws a labelled pixel grid over a frame. Region coordinates in the
// machine file are read off a gridded copy of a saved frame.
//
// # Thread Safety
//
// Every function is stateless and can be called concurrently on different
// images. Returned images are newly allocated; inputs are never modified.
package imaging

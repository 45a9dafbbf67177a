//go:build !cgo

package camera

import "fmt"

// OpenGocv is unavailable without cgo; the station runs with no camera and
// every trigger ends in NO_FRAME.
func OpenGocv(index, width, height int, fps float64) (Device, error) {
	return nil, fmt.Errorf("%w: built without cgo (OpenCV disabled)", ErrNoDevice)
}

//go:build cgo

package camera

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// GocvDevice reads frames from an OpenCV VideoCapture.
type GocvDevice struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// OpenGocv opens the camera at index and requests the given geometry. The
// driver may ignore the request; Source resizes every frame regardless.
func OpenGocv(index, width, height int, fps float64) (Device, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: index %d: %v", ErrNoDevice, index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: index %d", ErrNoDevice, index)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	vc.Set(gocv.VideoCaptureFPS, fps)

	return &GocvDevice{vc: vc, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame.
func (d *GocvDevice) Read() (image.Image, error) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, fmt.Errorf("camera read returned no frame")
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the frame buffer and the capture handle.
func (d *GocvDevice) Close() error {
	d.mat.Close()
	return d.vc.Close()
}

package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// LoadImage decodes an image file (PNG, JPEG, GIF, BMP or TIFF).
//
// It is used to feed saved frames back through recognition, for example the
// latest_captured_frame.jpg artifact written after every capture.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return img, nil
}

// SaveArtifact encodes img to path, creating parent directories.
//
// The format follows the file extension. JPEG artifacts are written at
// quality 95; frame audits need legible digits more than small files.
func SaveArtifact(img image.Image, path string) error {
	if img == nil {
		return fmt.Errorf("no image to save")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}

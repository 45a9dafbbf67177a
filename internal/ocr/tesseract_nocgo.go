//go:build !cgo

package ocr

import (
	"context"
	"fmt"
	"image"
)

// TesseractEngine is a stub in builds without cgo.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine returns the stub engine.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// RecognizeText always fails with ErrEngineUnavailable.
func (e *TesseractEngine) RecognizeText(ctx context.Context, img image.Image, allowed string) ([]Candidate, error) {
	return nil, fmt.Errorf("%w: built without cgo", ErrEngineUnavailable)
}

// Info reports the engine as unavailable.
func (e *TesseractEngine) Info() EngineInfo {
	return EngineInfo{Backend: "none", Language: e.language, Error: "built without cgo"}
}

// Close is a no-op.
func (e *TesseractEngine) Close() error {
	return nil
}

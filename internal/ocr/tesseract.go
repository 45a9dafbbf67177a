//go:build cgo

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognises text with Tesseract through gosseract.
//
// The Tesseract client is created on first use and reused; calls are
// serialised because a client is not safe for concurrent use. Regions are
// treated as a single text line.
type TesseractEngine struct {
	language string

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine creates an engine for the given Tesseract language code
// ("eng" when empty).
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// RecognizeText returns one candidate per recognised word with its
// confidence scaled to [0, 1]. When Tesseract finds text but no word boxes,
// the full text is returned as a single zero-confidence candidate.
func (e *TesseractEngine) RecognizeText(ctx context.Context, img image.Image, allowed string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	client, err := e.clientLocked()
	if err != nil {
		return nil, err
	}
	if err := client.SetWhitelist(allowed); err != nil {
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	candidates := make([]Candidate, 0, len(boxes))
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Text:       box.Word,
			Confidence: box.Confidence / 100.0,
		})
	}
	if len(candidates) == 0 {
		text, err := client.Text()
		if err == nil && strings.TrimSpace(text) != "" {
			candidates = append(candidates, Candidate{Text: text})
		}
	}
	return candidates, nil
}

func (e *TesseractEngine) clientLocked() (*gosseract.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(e.language); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to set language: %v", ErrEngineUnavailable, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to set page segmentation: %v", ErrEngineUnavailable, err)
	}
	e.client = client
	return client, nil
}

// Info reports whether Tesseract is usable.
func (e *TesseractEngine) Info() EngineInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := EngineInfo{Backend: "gosseract", Language: e.language}
	client, err := e.clientLocked()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Available = true
	info.Version = client.Version()
	return info
}

// Close releases the Tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

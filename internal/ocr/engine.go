package ocr

import (
	"context"
	"errors"
	"image"
)

// ErrEngineUnavailable is returned when no OCR backend is compiled in or
// the backend failed to initialise.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// DefaultAllowedChars restricts recognition to characters a numeric display
// can show.
const DefaultAllowedChars = "0123456789.-"

// Candidate is one text span reported by an engine.
type Candidate struct {
	// Text is the raw recognized text, before cleaning.
	Text string `json:"text"`

	// Confidence is the engine's certainty in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Engine recognises text in an image.
//
// Implementations must restrict output to the characters in allowed when it
// is non-empty. They may ignore ctx; callers bound the call themselves.
type Engine interface {
	RecognizeText(ctx context.Context, img image.Image, allowed string) ([]Candidate, error)
}

// EngineInfo describes the OCR backend.
type EngineInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
	Language  string `json:"language,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Best returns the candidate with the highest confidence. Ties keep the
// first candidate. It reports false for an empty list.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// Package ocr turns cropped display regions into numeric readings.
//
// Recognition is split in two layers:
//
//   - An Engine performs raw text recognition on an image restricted to an
//     allow-list of characters and returns every candidate span with its
//     confidence. The production engine is Tesseract via gosseract/v2.
//   - A Recognizer wraps an Engine with the station's interpretation rules:
//     contrast normalisation and median denoising of the region, choice of
//     the highest-confidence candidate, numeric cleaning, the confidence gate
//     and float parsing.
//
// # Prerequisites
//
// Tesseract must be installed on the system for the production engine:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//   - Windows: Download from https://github.com/UB-Mannheim/tesseract/wiki
//
// Builds without cgo get a stub engine that always fails; every slot then
// reads as missing.
//
// # Failure Handling
//
// Recognizer never returns an error. A value below the confidence threshold
// or that does not parse yields a missing reading with the engine's
// confidence; an engine error, a timeout or a panic yields a missing reading
// at confidence 0.
//
// # Timeouts
//
// gosseract calls cannot be interrupted. Each call runs in its own goroutine
// and the Recognizer stops waiting when the configured timeout elapses. At
// most one engine call runs at a time, so a hung call makes later calls time
// out instead of piling up.
package ocr

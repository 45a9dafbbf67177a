package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/logging"
	"github.com/ironsheep/balance-station/internal/reading"
)

var (
	// ErrTimeout is returned when an engine call exceeds Settings.Timeout.
	ErrTimeout = errors.New("ocr call timed out")

	// ErrEngineBusy is returned while an engine call that already timed out
	// is still running. The engine serves one call at a time.
	ErrEngineBusy = errors.New("ocr engine still busy with a timed out call")
)

// Settings controls one recognition pass. They come from the configuration
// snapshot of the cycle that asks.
type Settings struct {
	// Threshold is the minimum confidence for a value to be accepted.
	Threshold float64

	// Timeout bounds each engine call. Zero means no bound.
	Timeout time.Duration

	// AllowedChars is passed to the engine. Empty means DefaultAllowedChars.
	AllowedChars string
}

// Recognizer interprets engine output as readings.
type Recognizer struct {
	engine Engine
	slot   chan struct{}

	mu   sync.Mutex
	hung int // abandoned calls still holding slot
}

// NewRecognizer wraps engine.
func NewRecognizer(engine Engine) *Recognizer {
	return &Recognizer{engine: engine, slot: make(chan struct{}, 1)}
}

// Recognize reads one numeric value from a cropped region.
//
// The region is contrast-normalised and median-filtered, the engine's best
// candidate is cleaned and parsed. Below-threshold or unparsable text gives
// a missing reading that keeps the confidence; any failure gives a missing
// reading at confidence 0.
func (r *Recognizer) Recognize(ctx context.Context, region image.Image, s Settings) (res reading.Reading) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ocr: recovered from panic: %v", p)
			res = reading.Missing(0)
		}
	}()

	if region == nil || region.Bounds().Empty() {
		return reading.Missing(0)
	}

	enhanced := imaging.Enhance(region)
	candidates, err := r.call(ctx, enhanced, s)
	if err != nil {
		log.Printf("ocr: recognition failed: %v", err)
		return reading.Missing(0)
	}

	best, ok := Best(candidates)
	if !ok {
		return reading.Missing(0)
	}
	text := Clean(best.Text)
	logging.Debugf("ocr: best candidate %q (cleaned %q) at %.2f of %d", best.Text, text, best.Confidence, len(candidates))
	if text == "" || best.Confidence < s.Threshold {
		return reading.Missing(best.Confidence)
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return reading.Missing(best.Confidence)
	}
	return reading.Of(value, best.Confidence)
}

// ExtractAll crops every region from frame and recognises it.
//
// Regions are keyed by their Name, which must be a slot key. The result
// always holds all four slots; a slot whose region clamps to nothing, or
// that has no region, is missing at confidence 0. A nil or empty frame, or
// any panic, yields all four slots missing at confidence 0.
func (r *Recognizer) ExtractAll(ctx context.Context, frame image.Image, regions []imaging.RegionSpec, s Settings) (set reading.Set) {
	set = reading.EmptySet()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ocr: extraction aborted: %v", p)
			set = reading.EmptySet()
		}
	}()

	if frame == nil || frame.Bounds().Empty() {
		return set
	}

	for _, spec := range regions {
		slot, err := reading.ParseSlot(spec.Name)
		if err != nil {
			log.Printf("ocr: skipping region: %v", err)
			continue
		}
		crop, ok := imaging.Crop(frame, spec)
		if !ok {
			continue
		}
		set[slot] = r.Recognize(ctx, crop, s)
	}
	return set
}

// call runs the engine bounded by s.Timeout and ctx.
func (r *Recognizer) call(ctx context.Context, img image.Image, s Settings) ([]Candidate, error) {
	if r.engine == nil {
		return nil, ErrEngineUnavailable
	}
	allowed := s.AllowedChars
	if allowed == "" {
		allowed = DefaultAllowedChars
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	// A call that timed out may still hold the engine. Waiting behind it
	// would cost every remaining region its full timeout.
	select {
	case r.slot <- struct{}{}:
	default:
		if r.engineHung() {
			return nil, ErrEngineBusy
		}
		select {
		case r.slot <- struct{}{}:
		case <-ctx.Done():
			return nil, waitErr(ctx)
		}
	}

	type result struct {
		candidates []Candidate
		err        error
	}
	var (
		finished  bool
		abandoned bool
	)
	done := make(chan result, 1)
	go func() {
		defer func() {
			r.mu.Lock()
			finished = true
			if abandoned {
				r.hung--
			}
			r.mu.Unlock()
			<-r.slot
		}()
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		c, err := r.engine.RecognizeText(ctx, img, allowed)
		done <- result{candidates: c, err: err}
	}()

	select {
	case res := <-done:
		return res.candidates, res.err
	case <-ctx.Done():
		r.mu.Lock()
		if !finished {
			abandoned = true
			r.hung++
		}
		r.mu.Unlock()
		return nil, waitErr(ctx)
	}
}

func (r *Recognizer) engineHung() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hung > 0
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

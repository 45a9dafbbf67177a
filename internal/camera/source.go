// Package camera owns the capture device and keeps the most recent frame in
// a single-slot cache.
//
// A Source runs one background loop at the configured frame rate. Each
// iteration acquires an image, resizes it to the fixed station resolution,
// converts it to 8-bit grayscale and overwrites the cached frame. Readers
// always get a private copy; nothing outside the loop writes the cache.
//
// The loop ends on the first failed acquire. Callers see a frame cache that
// stops updating and Info().Connected turning false; a later Start reopens
// the device.
package camera

import (
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	imageproc "github.com/ironsheep/balance-station/internal/imaging"
)

// ErrNoDevice is returned by openers when the camera cannot be opened.
var ErrNoDevice = errors.New("camera device unavailable")

// Device is an opened capture device.
type Device interface {
	// Read blocks until the next frame is available.
	Read() (image.Image, error)
	Close() error
}

// Opener opens the device at index with the requested geometry.
type Opener func(index, width, height int, fps float64) (Device, error)

// Settings configures a Source.
type Settings struct {
	Index       int
	Width       int
	Height      int
	FPS         float64
	StopTimeout time.Duration
}

// Frame is one captured, normalised frame.
type Frame struct {
	Gray       *image.Gray
	CapturedAt time.Time
}

// Info describes the state of the capture source.
type Info struct {
	Connected bool      `json:"connected"`
	Index     int       `json:"index"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FPS       float64   `json:"fps"`
	LastFrame time.Time `json:"last_frame,omitempty"`
}

// Source is the background frame producer.
type Source struct {
	settings Settings
	open     Opener

	mu         sync.Mutex
	frame      *image.Gray
	capturedAt time.Time

	ctl  sync.Mutex
	dev  Device
	stop chan struct{}
	done chan struct{}
}

// NewSource creates a stopped source. Zero settings fall back to 640x640 at
// 30 fps with a 2 second stop timeout.
func NewSource(settings Settings, open Opener) *Source {
	if settings.Width <= 0 {
		settings.Width = 640
	}
	if settings.Height <= 0 {
		settings.Height = 640
	}
	if settings.FPS <= 0 {
		settings.FPS = 30
	}
	if settings.StopTimeout <= 0 {
		settings.StopTimeout = 2 * time.Second
	}
	return &Source{settings: settings, open: open}
}

// Start opens the device and launches the capture loop. It is idempotent:
// calling it while the loop runs returns true without reopening. It returns
// false when the device cannot be opened.
func (s *Source) Start() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.dev != nil {
		select {
		case <-s.done:
			// The loop ended on an acquire failure; release and reopen.
			s.closeDevice(s.dev)
			s.clear()
		default:
			return true
		}
	}

	st := s.settings
	dev, err := s.open(st.Index, st.Width, st.Height, st.FPS)
	if err != nil {
		log.Printf("camera %d: open failed: %v", st.Index, err)
		return false
	}

	s.dev = dev
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(dev, s.stop, s.done)

	log.Printf("camera %d: started at %dx%d, %.0f fps", st.Index, st.Width, st.Height, st.FPS)
	return true
}

// Stop signals the loop, waits up to the stop timeout for it to exit, then
// releases the device and clears the cache. Stopping a stopped source is a
// no-op.
//
// A loop still inside a device read when the timeout expires keeps the
// device; it is closed as soon as that read returns, never under it.
func (s *Source) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.dev == nil {
		return
	}
	dev, done := s.dev, s.done
	close(s.stop)
	select {
	case <-done:
		s.closeDevice(dev)
	case <-time.After(s.settings.StopTimeout):
		log.Printf("camera %d: capture loop did not exit within %v, closing the device when it does", s.settings.Index, s.settings.StopTimeout)
		go func() {
			<-done
			s.closeDevice(dev)
		}()
	}
	s.clear()
}

func (s *Source) closeDevice(dev Device) {
	if err := dev.Close(); err != nil {
		log.Printf("camera %d: close failed: %v", s.settings.Index, err)
	}
}

// clear forgets the device and the cached frame. Caller holds s.ctl.
func (s *Source) clear() {
	s.dev = nil

	s.mu.Lock()
	s.frame = nil
	s.capturedAt = time.Time{}
	s.mu.Unlock()
}

// Current returns a copy of the latest frame, or false if no frame has been
// captured or the source is stopped.
func (s *Source) Current() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil {
		return Frame{}, false
	}
	cp := &image.Gray{
		Pix:    append([]uint8(nil), s.frame.Pix...),
		Stride: s.frame.Stride,
		Rect:   s.frame.Rect,
	}
	return Frame{Gray: cp, CapturedAt: s.capturedAt}, true
}

// Info reports the connection state and geometry.
func (s *Source) Info() Info {
	s.ctl.Lock()
	connected := false
	if s.dev != nil {
		select {
		case <-s.done:
		default:
			connected = true
		}
	}
	s.ctl.Unlock()

	s.mu.Lock()
	last := s.capturedAt
	s.mu.Unlock()

	return Info{
		Connected: connected,
		Index:     s.settings.Index,
		Width:     s.settings.Width,
		Height:    s.settings.Height,
		FPS:       s.settings.FPS,
		LastFrame: last,
	}
}

func (s *Source) loop(dev Device, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.settings.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		img, err := dev.Read()
		if err != nil {
			log.Printf("camera %d: acquire failed, capture loop ending: %v", s.settings.Index, err)
			return
		}
		s.store(normalize(img, s.settings.Width, s.settings.Height), stop)

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// store replaces the cached frame unless the source is being stopped.
func (s *Source) store(frame *image.Gray, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-stop:
		return
	default:
	}
	s.frame = frame
	s.capturedAt = time.Now()
}

// normalize resizes img to width x height and converts it to grayscale.
func normalize(img image.Image, width, height int) *image.Gray {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Linear)
	}
	return imageproc.ToGray(img)
}

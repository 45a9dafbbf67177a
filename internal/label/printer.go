package label

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ironsheep/balance-station/internal/imaging"
)

// ErrNoPrinter means the transport reported no queues.
var ErrNoPrinter = errors.New("no printer queue available")

// Transport delivers raw label commands to a printer queue.
type Transport interface {
	Queues(ctx context.Context) ([]string, error)
	Send(ctx context.Context, queue string, data []byte) error
}

// Settings configures a Printer.
type Settings struct {
	// Name is the preferred queue; the first available queue is used when
	// it is absent.
	Name string

	// OutputDir receives the archived label images and fallback ZPL files.
	OutputDir string

	// Timeout bounds queue lookup plus sending. Zero means 5 seconds.
	Timeout time.Duration

	// RetentionDays is how long artifacts are kept. Zero disables pruning.
	RetentionDays int
}

// Result reports what PrintAndSave achieved.
type Result struct {
	// Printed is true only when the transport accepted the command.
	Printed bool `json:"printed"`

	// Queue is the queue the label was sent to.
	Queue string `json:"queue,omitempty"`

	// ImagePath is the archived QR image, empty if saving failed.
	ImagePath string `json:"image_path,omitempty"`

	// FallbackPath holds the ZPL command when printing failed.
	FallbackPath string `json:"fallback_path,omitempty"`

	// Err is the print failure, if any.
	Err error `json:"-"`
}

// Archived reports whether the label image was saved.
func (r Result) Archived() bool {
	return r.ImagePath != ""
}

// Printer prints labels and keeps their audit artifacts.
type Printer struct {
	transport Transport
	settings  Settings
	now       func() time.Time
}

// Option configures a Printer.
type Option func(*Printer)

// WithClock replaces time.Now for artifact names and pruning.
func WithClock(now func() time.Time) Option {
	return func(p *Printer) { p.now = now }
}

// NewPrinter creates a printer over transport.
func NewPrinter(transport Transport, settings Settings, opts ...Option) *Printer {
	if settings.Timeout <= 0 {
		settings.Timeout = 5 * time.Second
	}
	p := &Printer{transport: transport, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PrintAndSave sends l to the printer and archives its image.
//
// Parameters:
//   - ctx: Bounds the whole call together with Settings.Timeout. Cancelling
//     it abandons a pending print job but still archives the image.
//   - l: The label built by NewLabel. Its payload, ZPL and QR code are used
//     as-is.
//
// Returns:
//   - Result: Printed reports whether the transport accepted the job.
//     ImagePath and FallbackPath name the files written; Err holds the first
//     failure. The method never returns an error separately.
//
// # Archive and Fallback
//
// Old artifacts are pruned first. The image is saved whether or not
// printing worked. When printing fails the ZPL command is written to
// label_YYYYmmdd_HHMMSS.zpl for manual recovery and Printed is false.
//
// # Queue Resolution
//
// The configured queue is used when the transport lists it. Otherwise the
// first available queue is used, and with no queue at all the result
// carries ErrNoPrinter.
func (p *Printer) PrintAndSave(ctx context.Context, l *Label) Result {
	p.Prune()

	var res Result
	queue, err := p.print(ctx, l)
	if err != nil {
		res.Err = err
		log.Printf("label: print failed for %s: %v", l.Payload, err)
		if path, ferr := p.writeFallback(l); ferr != nil {
			log.Printf("label: could not save fallback ZPL: %v", ferr)
		} else {
			res.FallbackPath = path
			log.Printf("label: ZPL saved to %s", path)
		}
	} else {
		res.Printed = true
		res.Queue = queue
		log.Printf("label: printed %s on %q", l.Payload, queue)
	}

	path := filepath.Join(p.settings.OutputDir, fmt.Sprintf("qr_%s.png", p.now().Format("20060102_150405")))
	if err := imaging.SaveArtifact(l.Image(), path); err != nil {
		log.Printf("label: could not save QR image: %v", err)
	} else {
		res.ImagePath = path
	}
	return res
}

func (p *Printer) print(ctx context.Context, l *Label) (string, error) {
	if p.transport == nil {
		return "", ErrNoPrinter
	}
	ctx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
	defer cancel()

	queue, err := p.resolveQueue(ctx)
	if err != nil {
		return "", err
	}

	// The transport may ignore ctx; do not wait past the deadline.
	done := make(chan error, 1)
	go func() { done <- p.transport.Send(ctx, queue, []byte(l.ZPL)) }()
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("send to %q: %w", queue, err)
		}
		return queue, nil
	case <-ctx.Done():
		return "", fmt.Errorf("send to %q: %w", queue, ctx.Err())
	}
}

// resolveQueue picks the configured queue, or the first available one.
func (p *Printer) resolveQueue(ctx context.Context) (string, error) {
	queues, err := p.transport.Queues(ctx)
	if err != nil {
		return "", fmt.Errorf("list printers: %w", err)
	}
	if len(queues) == 0 {
		return "", ErrNoPrinter
	}
	if slices.Contains(queues, p.settings.Name) {
		return p.settings.Name, nil
	}
	log.Printf("label: printer %q not found, using %q", p.settings.Name, queues[0])
	return queues[0], nil
}

func (p *Printer) writeFallback(l *Label) (string, error) {
	if err := os.MkdirAll(p.settings.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.settings.OutputDir, fmt.Sprintf("label_%s.zpl", p.now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(l.ZPL), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Prune deletes artifacts older than the retention window and returns how
// many were removed. Failures are logged.
func (p *Printer) Prune() int {
	if p.settings.RetentionDays <= 0 {
		return 0
	}
	entries, err := os.ReadDir(p.settings.OutputDir)
	if err != nil {
		return 0
	}
	cutoff := p.now().Add(-time.Duration(p.settings.RetentionDays) * 24 * time.Hour)

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.settings.OutputDir, e.Name())); err != nil {
			log.Printf("label: error deleting %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("label: pruned %d old artifacts", removed)
	}
	return removed
}

// Package capture runs the station's capture cycle.
//
// One cycle turns a trigger into a verdict for the controller:
//
//	Idle → Capturing → Extracting → Validating → Printing → AwaitingScan → Idle
//
// The latest camera frame is cropped into the four display regions and
// recognised, the readings are checked against the selected part, a label is
// printed, and the operator must scan it back before the serial is committed
// and the reading stored. Each cycle ends in exactly one Outcome and at most
// one result is sent to the controller.
//
// Only one cycle runs at a time. A trigger that arrives while a cycle is in
// flight is logged and dropped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ironsheep/balance-station/internal/camera"
	"github.com/ironsheep/balance-station/internal/confirm"
	"github.com/ironsheep/balance-station/internal/hwlink"
	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/label"
	"github.com/ironsheep/balance-station/internal/ocr"
	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/sequence"
	"github.com/ironsheep/balance-station/internal/store"
)

// ErrBusy is returned when a cycle is requested while another is running.
var ErrBusy = errors.New("capture cycle already in progress")

// State is the step a cycle is in.
type State int

const (
	Idle State = iota
	Capturing
	Extracting
	Validating
	Printing
	AwaitingScan
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Extracting:
		return "extracting"
	case Validating:
		return "validating"
	case Printing:
		return "printing"
	case AwaitingScan:
		return "awaiting_scan"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is how a cycle ended.
type Outcome int

const (
	// Committed: confirmed by scan, serial committed, reading stored.
	Committed Outcome = iota
	// Invalid: a measurement or configuration problem. Nothing consumed.
	Invalid
	// PrintFailed: no physical label was produced.
	PrintFailed
	// ScanFailed: the label was not confirmed. Serial not consumed.
	ScanFailed
	// NoFrame: the camera had no frame at trigger time.
	NoFrame
	// PersistFailed: confirmed, but the reading could not be stored.
	PersistFailed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Invalid:
		return "invalid"
	case PrintFailed:
		return "print_failed"
	case ScanFailed:
		return "scan_failed"
	case NoFrame:
		return "no_frame"
	case PersistFailed:
		return "persist_failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText lets outcomes appear by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the record of one finished cycle.
type Result struct {
	CycleID       string    `json:"cycle_id"`
	ConfigVersion uint64    `json:"config_version"`
	Outcome       Outcome   `json:"outcome"`
	Reasons       []string  `json:"reasons,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`

	PartCode   string              `json:"part_code,omitempty"`
	PartName   string              `json:"part_name,omitempty"`
	Readings   reading.Set         `json:"readings,omitempty"`
	Validation *reading.Validation `json:"validation,omitempty"`

	Serial  string        `json:"serial,omitempty"`
	Payload string        `json:"payload,omitempty"`
	Print   *label.Result `json:"print,omitempty"`
	Scan    string        `json:"scan,omitempty"`

	// Signal is the result sent to the controller, empty if none was sent.
	Signal string `json:"signal,omitempty"`

	FramePath   string `json:"frame_path,omitempty"`
	OverlayPath string `json:"overlay_path,omitempty"`
}

// Duration returns how long the cycle ran.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Event is delivered to observers on every state change. Result is set on
// the final event of a cycle, whose State is Idle.
type Event struct {
	CycleID string  `json:"cycle_id"`
	State   State   `json:"state"`
	Result  *Result `json:"result,omitempty"`
}

// Observer receives events synchronously on the cycle goroutine and must
// not block.
type Observer func(Event)

// Collaborators. The production types are noted on each.

// FrameProvider supplies the latest frame (*camera.Source).
type FrameProvider interface {
	Current() (camera.Frame, bool)
}

// Recognizer reads the four slots from a frame (*ocr.Recognizer).
type Recognizer interface {
	ExtractAll(ctx context.Context, frame image.Image, regions []imaging.RegionSpec, s ocr.Settings) reading.Set
}

// PartStore looks up part limits (*store.Store).
type PartStore interface {
	GetPart(ctx context.Context, code string) (*reading.PartLimits, error)
}

// ReadingStore persists confirmed readings (*store.Store).
type ReadingStore interface {
	SaveReading(ctx context.Context, r store.Record) (int64, error)
}

// Sequencer issues label serials (*sequence.Sequencer).
type Sequencer interface {
	Peek(hint string) sequence.Ticket
	Commit(t sequence.Ticket) (sequence.State, error)
	RememberPart(code string) error
	LastPart() string
}

// Printer prints and archives labels (*label.Printer).
type Printer interface {
	PrintAndSave(ctx context.Context, l *label.Label) label.Result
}

// ResultSink receives the verdict (*hwlink.Link).
type ResultSink interface {
	SendResult(r hwlink.Result) error
}

// Deps gathers the collaborators of an Orchestrator. Sink may be nil when
// no controller is attached.
type Deps struct {
	Frames     FrameProvider
	Recognizer Recognizer
	Parts      PartStore
	Readings   ReadingStore
	Sequencer  Sequencer
	Printer    Printer
	Sink       ResultSink
}

func (d Deps) check() error {
	switch {
	case d.Frames == nil:
		return errors.New("capture: frame provider is required")
	case d.Recognizer == nil:
		return errors.New("capture: recognizer is required")
	case d.Parts == nil:
		return errors.New("capture: part store is required")
	case d.Readings == nil:
		return errors.New("capture: reading store is required")
	case d.Sequencer == nil:
		return errors.New("capture: sequencer is required")
	case d.Printer == nil:
		return errors.New("capture: printer is required")
	}
	return nil
}

// policyFor maps the configured mismatch policy onto the gate's.
func policyFor(name string) confirm.Policy {
	p, err := confirm.ParsePolicy(name)
	if err != nil {
		return confirm.Retry
	}
	return p
}

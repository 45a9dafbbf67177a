package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/confirm"
	"github.com/ironsheep/balance-station/internal/hwlink"
	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/label"
	"github.com/ironsheep/balance-station/internal/logging"
	"github.com/ironsheep/balance-station/internal/ocr"
	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/store"
)

// Artifact names, written under the configured data directory.
const (
	FrameArtifact   = "latest_captured_frame.jpg"
	OverlayArtifact = "latest_annotated.png"
)

// cycle runs one claimed cycle and releases the orchestrator when done.
// Every collaborator failure ends in an Outcome; nothing escapes.
func (o *Orchestrator) cycle(ctx context.Context) (res Result) {
	snap := o.cfg.Current()
	res = Result{
		CycleID:       uuid.NewString(),
		ConfigVersion: snap.Version,
		StartedAt:     o.now(),
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("capture %s: recovered from panic: %v", short(res.CycleID), p)
			res.Outcome = Invalid
			res.Reasons = append(res.Reasons, fmt.Sprintf("internal error: %v", p))
			if res.Signal == "" {
				o.signal(&res, hwlink.Fail)
			}
		}
		res.FinishedAt = o.now()
		log.Printf("capture %s: %s in %v %v", short(res.CycleID), res.Outcome, res.Duration(), res.Reasons)
		o.release(&res)
	}()

	o.run(ctx, &snap.Config, &res)
	return res
}

func (o *Orchestrator) run(ctx context.Context, cfg *config.Config, res *Result) {
	id := res.CycleID
	part := o.Part()

	o.setState(id, Capturing)
	frame, ok := o.deps.Frames.Current()
	if !ok || frame.Gray == nil {
		res.Outcome = NoFrame
		res.Reasons = []string{"no camera frame available"}
		o.signal(res, hwlink.NoFrame)
		return
	}

	o.setState(id, Extracting)
	regions := cfg.RegionSpecs()
	res.Readings = o.deps.Recognizer.ExtractAll(ctx, frame.Gray, regions, ocr.Settings{
		Threshold:    cfg.OCR.ConfidenceThreshold,
		Timeout:      cfg.OCR.Timeout,
		AllowedChars: cfg.OCR.AllowedChars,
	})
	res.FramePath = o.saveArtifact(id, frame.Gray, filepath.Join(cfg.DataDir, FrameArtifact))
	if logging.DebugEnabled() {
		for _, slot := range reading.Slots {
			r := res.Readings[slot]
			logging.Debugf("capture %s: %s = %s (confidence %.2f)", short(id), slot, slot.Format(r.Value), r.Confidence)
		}
	}

	o.setState(id, Validating)
	limits, err := o.lookupPart(ctx, part)
	if err == nil {
		res.PartCode, res.PartName = limits.Code, limits.Name
		checked, _ := cfg.CheckedSlots()
		v := reading.Validate(res.Readings, limits, checked)
		res.Validation = &v
	}
	res.OverlayPath = o.saveArtifact(id,
		imaging.Annotate(frame.Gray, marks(regions, res.Readings, res.Validation)),
		filepath.Join(cfg.DataDir, OverlayArtifact))

	if err != nil {
		res.Outcome = Invalid
		res.Reasons = []string{fmt.Sprintf("configuration: %v", err)}
		o.signal(res, hwlink.Fail)
		return
	}
	if !res.Validation.Valid {
		res.Outcome = Invalid
		res.Reasons = res.Validation.Failures
		o.signal(res, hwlink.Fail)
		return
	}

	o.setState(id, Printing)
	ticket := o.deps.Sequencer.Peek(limits.Code)
	serial := ticket.Number()
	res.Serial = serial
	res.Payload = label.Payload(serial, ticket.Part, res.Readings)
	logging.Debugf("capture %s: label %s for month %s, payload %q", short(id), serial, ticket.Month, res.Payload)

	lbl, err := label.NewLabel(res.Payload)
	if err != nil {
		res.Outcome = PrintFailed
		res.Reasons = []string{err.Error()}
		o.signal(res, hwlink.Fail)
		return
	}
	printed := o.deps.Printer.PrintAndSave(ctx, lbl)
	res.Print = &printed
	if !printed.Printed && (cfg.Printer.RequirePhysical || !printed.Archived()) {
		res.Outcome = PrintFailed
		res.Reasons = []string{printFailure(printed)}
		o.signal(res, hwlink.Fail)
		return
	}
	if !printed.Printed {
		log.Printf("capture %s: label archived but not printed, waiting for scan anyway", short(id))
	}

	gate := confirm.NewGate(lbl.Payload, policyFor(cfg.Confirm.MismatchPolicy))
	o.openGate(gate)
	o.setState(id, AwaitingScan)
	scan := gate.Wait(ctx, cfg.Confirm.Timeout)
	o.closeGate(gate)
	res.Scan = scan.String()

	if scan != confirm.Matched {
		res.Outcome = ScanFailed
		res.Reasons = []string{"scan " + scan.String()}
		if mm := gate.Mismatches(); len(mm) > 0 {
			log.Printf("capture %s: rejected scans %q", short(id), mm)
		}
		if cfg.Confirm.ScanFailureResult == config.ScanFailureFail {
			o.signal(res, hwlink.Fail)
		}
		return
	}

	if _, err := o.deps.Sequencer.Commit(ticket); err != nil {
		log.Printf("capture %s: failed to commit serial %s: %v", short(id), serial, err)
	}

	rec := store.Record{
		Timestamp: o.now(),
		CycleID:   id,
		PartCode:  limits.Code,
		PartName:  limits.Name,
		Serial:    serial,
		Payload:   res.Payload,
		Values:    res.Readings,
		Valid:     true,
	}
	if _, err := o.deps.Readings.SaveReading(context.WithoutCancel(ctx), rec); err != nil {
		res.Outcome = PersistFailed
		res.Reasons = []string{err.Error()}
		o.signal(res, hwlink.Fail)
		return
	}

	res.Outcome = Committed
	o.signal(res, hwlink.Pass)
}

// lookupPart resolves the selected part. Both an empty selection and an
// unknown code are configuration errors.
func (o *Orchestrator) lookupPart(ctx context.Context, code string) (*reading.PartLimits, error) {
	if code == "" {
		return nil, errors.New("no part selected")
	}
	limits, err := o.deps.Parts.GetPart(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", code, err)
	}
	if limits == nil {
		return nil, fmt.Errorf("part %s not found", code)
	}
	return limits, nil
}

// signal sends r to the controller and records it on res.
func (o *Orchestrator) signal(res *Result, r hwlink.Result) {
	res.Signal = r.String()
	if o.deps.Sink == nil {
		log.Printf("capture %s: no controller attached, %s not sent", short(res.CycleID), r)
		return
	}
	if err := o.deps.Sink.SendResult(r); err != nil {
		log.Printf("capture %s: failed to send %s: %v", short(res.CycleID), r, err)
	}
}

// saveArtifact writes img to path, returning "" on failure.
func (o *Orchestrator) saveArtifact(id string, img image.Image, path string) string {
	if err := imaging.SaveArtifact(img, path); err != nil {
		log.Printf("capture %s: %v", short(id), err)
		return ""
	}
	return path
}

func printFailure(r label.Result) string {
	if r.Err != nil {
		return fmt.Sprintf("label not printed: %v", r.Err)
	}
	return "label not printed"
}

// marks turns readings and their validation into overlay marks.
func marks(regions []imaging.RegionSpec, set reading.Set, v *reading.Validation) []imaging.Mark {
	out := make([]imaging.Mark, 0, len(regions))
	for _, spec := range regions {
		slot := reading.Slot(spec.Name)
		r := set[slot]
		m := imaging.Mark{
			Spec:       spec,
			Text:       slot.Format(r.Value),
			Confidence: r.Confidence,
		}
		var sr reading.SlotResult
		if v != nil {
			sr = v.Slots[slot]
		}
		switch {
		case !r.Present():
			m.Status = imaging.MarkMissing
		case !sr.Checked:
			m.Status = imaging.MarkUnchecked
		case len(sr.Violations) > 0:
			m.Status = imaging.MarkOutOfLimits
		case r.Confidence < imaging.LowConfidence:
			m.Status = imaging.MarkLowConfidence
		default:
			m.Status = imaging.MarkOK
		}
		out = append(out, m)
	}
	return out
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
